// File: internal/screening/service.go
package screening

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfanfaraaz/sss-backend/internal/config"
	"github.com/irfanfaraaz/sss-backend/internal/ledger"
	"github.com/irfanfaraaz/sss-backend/internal/metrics"
	"github.com/irfanfaraaz/sss-backend/internal/models"
	"github.com/irfanfaraaz/sss-backend/pkg/utils"
)

const (
	DefaultTimeout = 5 * time.Second
	MinTimeout     = 1 * time.Second
	MaxTimeout     = 30 * time.Second
)

// ReasonBlacklisted is returned when the ledger blacklist denies an address
const ReasonBlacklisted = "On blacklist"

// Decision sources for metrics
const (
	SourceBlacklist = "blacklist"
	SourceExternal  = "external"
	SourceDefault   = "default"
)

// Config holds screening configuration
type Config struct {
	ProgramID string
	URL       string
	Method    string
	Timeout   time.Duration
}

// NewConfig converts application config into screening config
func NewConfig(solana *config.SolanaConfig, cfg *config.ScreeningConfig) *Config {
	return &Config{
		ProgramID: solana.ProgramID,
		URL:       cfg.URL,
		Method:    cfg.Method,
		Timeout:   ClampTimeout(time.Duration(cfg.TimeoutMS) * time.Millisecond),
	}
}

// ClampTimeout bounds d to [MinTimeout, MaxTimeout]. Zero and negative
// values clamp to MinTimeout like any other explicit value.
func ClampTimeout(d time.Duration) time.Duration {
	if d < MinTimeout {
		return MinTimeout
	}
	if d > MaxTimeout {
		return MaxTimeout
	}
	return d
}

// Service decides whether an address may take part in a token operation.
// The ledger blacklist is consulted first; an optional external verifier
// is consulted second. Any external failure denies.
type Service struct {
	accounts ledger.AccountReader
	config   *Config
	client   *http.Client
	logger   *logrus.Entry

	metricsManager *metrics.Manager
}

// NewService creates a screening service
func NewService(accounts ledger.AccountReader, cfg *Config) *Service {
	cfg.Method = strings.ToUpper(strings.TrimSpace(cfg.Method))
	if cfg.Method != http.MethodGet {
		cfg.Method = http.MethodPost
	}
	cfg.URL = strings.TrimSpace(cfg.URL)
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	} else {
		cfg.Timeout = ClampTimeout(cfg.Timeout)
	}

	return &Service{
		accounts: accounts,
		config:   cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   utils.ComponentLogger("screening"),
	}
}

// SetMetricsManager sets the metrics manager
func (s *Service) SetMetricsManager(m *metrics.Manager) {
	s.metricsManager = m
}

// Timeout returns the effective external call timeout
func (s *Service) Timeout() time.Duration {
	return s.config.Timeout
}

// Screen checks address against the blacklist for mint and then the
// external verifier. Results are never cached.
func (s *Service) Screen(ctx context.Context, mint, address string) models.ScreeningResult {
	if mint == "" {
		return s.decide(models.ScreeningResult{Allowed: false, Reason: "Mint not set"}, SourceDefault, mint, address)
	}

	entry, err := ledger.FetchBlacklistEntry(ctx, s.accounts, mint, address, s.config.ProgramID)
	switch {
	case err == nil:
		if entry.IsBlacklisted {
			return s.decide(models.ScreeningResult{Allowed: false, Reason: ReasonBlacklisted}, SourceBlacklist, mint, address)
		}
	case errors.Is(err, ledger.ErrAccountNotFound):
	default:
		// unreadable entries count as not blacklisted
		s.logger.WithError(err).WithFields(logrus.Fields{
			"mint":    mint,
			"address": address,
		}).Debug("Blacklist lookup failed, treating as not blacklisted")
	}

	if s.config.URL == "" {
		return s.decide(models.ScreeningResult{Allowed: true}, SourceDefault, mint, address)
	}

	return s.decide(s.callExternal(ctx, mint, address), SourceExternal, mint, address)
}

type externalResponse struct {
	Allowed *bool  `json:"allowed"`
	Reason  string `json:"reason"`
}

func (s *Service) callExternal(ctx context.Context, mint, address string) models.ScreeningResult {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	params := map[string]string{"address": address, "mint": mint}

	var req *http.Request
	var err error
	if s.config.Method == http.MethodGet {
		q := url.Values{}
		q.Set("address", address)
		q.Set("mint", mint)
		target := s.config.URL
		if strings.Contains(target, "?") {
			target += "&" + q.Encode()
		} else {
			target += "?" + q.Encode()
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	} else {
		body, _ := json.Marshal(params)
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(body))
	}
	if err != nil {
		return models.ScreeningResult{Allowed: false, Reason: fmt.Sprintf("Screening call failed: %s", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return models.ScreeningResult{Allowed: false, Reason: fmt.Sprintf("Screening call failed: %s", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.ScreeningResult{Allowed: false, Reason: fmt.Sprintf("Screening service error: %d", resp.StatusCode)}
	}

	var data externalResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return models.ScreeningResult{Allowed: false, Reason: fmt.Sprintf("Screening call failed: %s", err)}
	}

	return models.ScreeningResult{
		Allowed: data.Allowed == nil || *data.Allowed,
		Reason:  data.Reason,
	}
}

func (s *Service) decide(result models.ScreeningResult, source, mint, address string) models.ScreeningResult {
	entry := s.logger.WithFields(logrus.Fields{
		"mint":    mint,
		"address": address,
		"allowed": result.Allowed,
		"source":  source,
	})
	if result.Allowed {
		entry.Debug("Address screened")
	} else {
		entry.WithField("reason", result.Reason).Info("Address denied by screening")
	}

	if s.metricsManager != nil {
		s.metricsManager.GetPrometheusMetrics().RecordScreeningDecision(result.Allowed, source)
	}
	return result
}
