// File: internal/server/admin.go
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/irfanfaraaz/sss-backend/internal/ledger"
	"github.com/irfanfaraaz/sss-backend/internal/models"
	"github.com/irfanfaraaz/sss-backend/pkg/utils"
)

// Admin request bodies. Mint falls back to the configured default.
type mintRequest struct {
	Mint      string `json:"mint" validate:"omitempty,pubkey"`
	Recipient string `json:"recipient" validate:"required,pubkey"`
	Amount    string `json:"amount" validate:"required,amount"`
}

type burnRequest struct {
	Mint   string `json:"mint" validate:"omitempty,pubkey"`
	Amount string `json:"amount" validate:"required,amount"`
	From   string `json:"from" validate:"omitempty,pubkey"`
}

type blacklistAddRequest struct {
	Mint    string `json:"mint" validate:"omitempty,pubkey"`
	Address string `json:"address" validate:"required,pubkey"`
	Reason  string `json:"reason" validate:"max=256"`
}

type blacklistRemoveRequest struct {
	Mint    string `json:"mint" validate:"omitempty,pubkey"`
	Address string `json:"address" validate:"required,pubkey"`
}

type seizeRequest struct {
	Mint     string `json:"mint" validate:"omitempty,pubkey"`
	From     string `json:"from" validate:"required,pubkey"`
	Treasury string `json:"treasury" validate:"required,pubkey"`
	Amount   string `json:"amount" validate:"omitempty,amount"`
}

// adminAction describes one administrative request after validation
type adminAction struct {
	op ledger.Operation
	// checkPause rejects the action while the token instance is paused
	checkPause bool
	// screen is the address that must pass screening, if any
	screen string
	// auditFields are recorded next to mint and signature
	auditFields map[string]interface{}
}

func (s *HTTPServer) mintHandler(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	s.execute(w, r, adminAction{
		op: ledger.Operation{
			Action:    ledger.ActionMint,
			Mint:      req.Mint,
			Recipient: req.Recipient,
			Amount:    req.Amount,
		},
		checkPause:  true,
		screen:      req.Recipient,
		auditFields: map[string]interface{}{"recipient": req.Recipient, "amount": req.Amount},
	})
}

func (s *HTTPServer) burnHandler(w http.ResponseWriter, r *http.Request) {
	var req burnRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	fields := map[string]interface{}{"amount": req.Amount}
	if req.From != "" {
		fields["from"] = req.From
	}
	s.execute(w, r, adminAction{
		op: ledger.Operation{
			Action: ledger.ActionBurn,
			Mint:   req.Mint,
			From:   req.From,
			Amount: req.Amount,
		},
		checkPause:  true,
		screen:      req.From,
		auditFields: fields,
	})
}

func (s *HTTPServer) blacklistAddHandler(w http.ResponseWriter, r *http.Request) {
	var req blacklistAddRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	fields := map[string]interface{}{"address": req.Address}
	if req.Reason != "" {
		fields["reason"] = req.Reason
	}
	s.execute(w, r, adminAction{
		op: ledger.Operation{
			Action:  ledger.ActionBlacklistAdd,
			Mint:    req.Mint,
			Address: req.Address,
			Reason:  req.Reason,
		},
		auditFields: fields,
	})
}

func (s *HTTPServer) blacklistRemoveHandler(w http.ResponseWriter, r *http.Request) {
	var req blacklistRemoveRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	s.execute(w, r, adminAction{
		op: ledger.Operation{
			Action:  ledger.ActionBlacklistRemove,
			Mint:    req.Mint,
			Address: req.Address,
		},
		auditFields: map[string]interface{}{"address": req.Address},
	})
}

func (s *HTTPServer) seizeHandler(w http.ResponseWriter, r *http.Request) {
	var req seizeRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	if req.Amount == "" {
		req.Amount = "0"
	}
	s.execute(w, r, adminAction{
		op: ledger.Operation{
			Action:   ledger.ActionSeize,
			Mint:     req.Mint,
			From:     req.From,
			Treasury: req.Treasury,
			Amount:   req.Amount,
		},
		auditFields: map[string]interface{}{"from": req.From, "treasury": req.Treasury, "amount": req.Amount},
	})
}

// decodeRequest parses and validates a JSON body, writing a 400 on failure
func (s *HTTPServer) decodeRequest(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	if err := utils.ValidateStruct(dst); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// execute runs the pause check, screening and submission of an action, then
// records it in the audit log and schedules its webhook
func (s *HTTPServer) execute(w http.ResponseWriter, r *http.Request, action adminAction) {
	ctx := r.Context()
	op := action.op
	op.Mint = s.resolveMint(op.Mint)
	if op.Mint == "" {
		s.writeError(w, r, http.StatusBadRequest, "Mint not set")
		return
	}

	log := requestLogger(ctx, s.logger).WithFields(logrus.Fields{
		"action": op.Action,
		"mint":   op.Mint,
	})

	if action.checkPause {
		cfg, err := ledger.FetchStablecoinConfig(ctx, s.deps.Accounts, op.Mint, s.config.ProgramID)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if cfg.IsPaused {
			s.writeError(w, r, http.StatusBadRequest, "Program is paused")
			return
		}
	}

	if action.screen != "" {
		result := s.deps.Screener.Screen(ctx, op.Mint, action.screen)
		if !result.Allowed {
			log.WithFields(logrus.Fields{
				"address": action.screen,
				"reason":  result.Reason,
			}).Warn("Action blocked by screening")
			s.writeJSON(w, http.StatusForbidden, map[string]interface{}{
				"error":  "Address failed screening",
				"reason": result.Reason,
			})
			return
		}
	}

	signature, err := s.deps.Submitter.Submit(ctx, op)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ledger.ErrSubmitterNotConfigured) {
			status = http.StatusServiceUnavailable
		}
		s.writeError(w, r, status, err.Error())
		return
	}

	payload := make(map[string]interface{}, len(action.auditFields)+2)
	for k, v := range action.auditFields {
		payload[k] = v
	}
	payload["mint"] = op.Mint
	payload["signature"] = signature
	s.deps.Audit.Record(op.Action, payload)

	s.deps.Notifier.Dispatch(models.EventType(op.Action), models.WebhookPayload{
		Mint:      op.Mint,
		Signature: signature,
		Fields:    action.auditFields,
	})

	log.WithField("signature", utils.ShortSignature(signature)).Info("Administrative action submitted")
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"signature": signature})
}
