// File: internal/server/handlers.go
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/irfanfaraaz/sss-backend/internal/audit"
	"github.com/irfanfaraaz/sss-backend/internal/models"
)

const healthTimeout = 5 * time.Second

// healthHandler reports whether the ledger RPC answers
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := s.deps.Node.HealthCheck(ctx); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"ok":    false,
			"error": err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":  true,
		"rpc": s.config.RPCURL,
	})
}

// statsHandler returns application statistics
func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"timestamp":       time.Now().UTC(),
		"uptime_seconds":  int64(time.Since(s.startTime).Seconds()),
		"events_stored":   s.deps.Events.Len(),
		"audit_records":   s.deps.Audit.Len(),
		"notification":    s.deps.Notifier.GetStats(),
		"ledger":          s.deps.Node.Stats(),
		"metrics_enabled": s.config.EnableMetrics,
	}
	if s.deps.Indexer != nil {
		stats["indexer"] = s.deps.Indexer.GetStats()
		stats["indexer_health"] = s.deps.Indexer.GetHealth()
	}

	s.writeJSON(w, http.StatusOK, stats)
}

// listEventsHandler lists indexed events, newest first
func (s *HTTPServer) listEventsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := models.EventFilter{
		Mint:   strings.TrimSpace(query.Get("mint")),
		Before: strings.TrimSpace(query.Get("before")),
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = l
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": s.deps.Events.Query(filter),
	})
}

type screenRequest struct {
	Address string `json:"address"`
	Mint    string `json:"mint"`
}

// screenHandler checks an address against the blacklist and the
// external verifier. Accepts query parameters or a JSON body.
func (s *HTTPServer) screenHandler(w http.ResponseWriter, r *http.Request) {
	req := screenRequest{
		Address: r.URL.Query().Get("address"),
		Mint:    r.URL.Query().Get("mint"),
	}
	if r.Method == http.MethodPost && r.ContentLength != 0 {
		var body screenRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeError(w, r, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		if body.Address != "" {
			req.Address = body.Address
		}
		if body.Mint != "" {
			req.Mint = body.Mint
		}
	}

	req.Address = strings.TrimSpace(req.Address)
	if req.Address == "" {
		s.writeError(w, r, http.StatusBadRequest, "address is required")
		return
	}

	mint := s.resolveMint(req.Mint)
	s.writeJSON(w, http.StatusOK, s.deps.Screener.Screen(r.Context(), mint, req.Address))
}

// listAuditHandler returns audit records, optionally filtered by action
func (s *HTTPServer) listAuditHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": s.deps.Audit.Filter(r.URL.Query().Get("action")),
	})
}

// exportAuditHandler returns the audit log as a CSV or JSON attachment
func (s *HTTPServer) exportAuditHandler(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = audit.FormatJSON
	}

	var contentType string
	switch format {
	case audit.FormatCSV:
		contentType = "text/csv; charset=utf-8"
	case audit.FormatJSON:
		contentType = "application/json"
	default:
		s.writeError(w, r, http.StatusBadRequest, "format must be csv or json")
		return
	}

	data, err := s.deps.Audit.Export(format)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+audit.ExportFilename(time.Now(), format)+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		requestLogger(r.Context(), s.logger).WithError(err).Warn("Failed to write audit export")
	}
}

// resolveMint falls back to the configured default token instance
func (s *HTTPServer) resolveMint(mint string) string {
	if mint = strings.TrimSpace(mint); mint != "" {
		return mint
	}
	return s.config.DefaultMint
}
