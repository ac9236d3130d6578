package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfanfaraaz/sss-backend/internal/config"
	"github.com/irfanfaraaz/sss-backend/pkg/utils"
)

// ErrSubmitterNotConfigured is returned when no signer relay is configured
var ErrSubmitterNotConfigured = errors.New("transaction signer is not configured")

// Administrative actions accepted by a Submitter
const (
	ActionMint            = "mint"
	ActionBurn            = "burn"
	ActionBlacklistAdd    = "blacklist_add"
	ActionBlacklistRemove = "blacklist_remove"
	ActionSeize           = "seize"
)

// Operation is one administrative instruction to sign and submit
type Operation struct {
	Action    string `json:"action"`
	Mint      string `json:"mint"`
	Recipient string `json:"recipient,omitempty"`
	From      string `json:"from,omitempty"`
	Address   string `json:"address,omitempty"`
	Treasury  string `json:"treasury,omitempty"`
	Amount    string `json:"amount,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Submitter signs and submits an operation, returning the confirmed signature
type Submitter interface {
	Submit(ctx context.Context, op Operation) (string, error)
}

// RelaySubmitter forwards operations to an external signing relay
type RelaySubmitter struct {
	url    string
	client *http.Client
	logger *logrus.Entry
}

// NewRelaySubmitter creates a submitter posting to url. An empty url yields
// a submitter that always fails with ErrSubmitterNotConfigured.
func NewRelaySubmitter(url string, timeout time.Duration) *RelaySubmitter {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RelaySubmitter{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: utils.ComponentLogger("submitter"),
	}
}

// NewSubmitterFromConfig creates a relay submitter from the signer config
func NewSubmitterFromConfig(cfg *config.SignerConfig) *RelaySubmitter {
	return NewRelaySubmitter(cfg.URL, cfg.Timeout)
}

type relayResponse struct {
	Signature string `json:"signature"`
	Error     string `json:"error"`
}

// Submit posts op to the relay
func (s *RelaySubmitter) Submit(ctx context.Context, op Operation) (string, error) {
	if s.url == "" {
		return "", ErrSubmitterNotConfigured
	}

	body, err := json.Marshal(op)
	if err != nil {
		return "", fmt.Errorf("marshal operation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", utils.NewAppError(utils.ErrCodeBlockchain, "Signer relay unreachable", err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read relay response: %w", err)
	}

	var out relayResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := out.Error
		if msg == "" {
			msg = fmt.Sprintf("signer relay returned status %d", resp.StatusCode)
		}
		return "", errors.New(msg)
	}
	if out.Signature == "" {
		return "", errors.New("signer relay returned no signature")
	}

	s.logger.WithFields(logrus.Fields{
		"action":    op.Action,
		"mint":      op.Mint,
		"signature": out.Signature,
	}).Info("Transaction submitted")
	return out.Signature, nil
}
