// File: internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/irfanfaraaz/sss-backend/internal/audit"
	"github.com/irfanfaraaz/sss-backend/internal/config"
	"github.com/irfanfaraaz/sss-backend/internal/indexer"
	"github.com/irfanfaraaz/sss-backend/internal/ledger"
	"github.com/irfanfaraaz/sss-backend/internal/metrics"
	"github.com/irfanfaraaz/sss-backend/internal/models"
	"github.com/irfanfaraaz/sss-backend/internal/notification"
	"github.com/irfanfaraaz/sss-backend/pkg/utils"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port          int           `json:"port"`
	Host          string        `json:"host"`
	ReadTimeout   time.Duration `json:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout"`
	EnableMetrics bool          `json:"enable_metrics"`
	APIKey        string        `json:"-"`
	RPCURL        string        `json:"rpc_url"`
	ProgramID     string        `json:"program_id"`
	DefaultMint   string        `json:"default_mint"`
}

// NewServerConfig builds the server configuration from application config
func NewServerConfig(cfg *config.Config) *ServerConfig {
	return &ServerConfig{
		Port:          cfg.Server.Port,
		Host:          cfg.Server.Host,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
		EnableMetrics: cfg.Server.EnableMetrics,
		APIKey:        cfg.Server.APIKey,
		RPCURL:        cfg.Solana.RPCURL,
		ProgramID:     cfg.Solana.ProgramID,
		DefaultMint:   cfg.Solana.DefaultMint,
	}
}

// EventQuerier reads indexed events
type EventQuerier interface {
	Query(filter models.EventFilter) []models.IndexedEvent
	Len() int
}

// Screener decides whether an address may take part in a mint or burn
type Screener interface {
	Screen(ctx context.Context, mint, address string) models.ScreeningResult
}

// Dependencies are the components the HTTP API delegates to
type Dependencies struct {
	Events    EventQuerier
	Node      ledger.NodeMonitor
	Accounts  ledger.AccountReader
	Screener  Screener
	Submitter ledger.Submitter
	Audit     *audit.Log
	Notifier  notification.Notifier
	// Indexer is optional and only feeds /stats
	Indexer *indexer.Indexer
}

// HTTPServer represents the HTTP server
type HTTPServer struct {
	config         *ServerConfig
	server         *http.Server
	router         *mux.Router
	deps           Dependencies
	metricsManager *metrics.Manager
	logger         *logrus.Entry
	startTime      time.Time
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(config *ServerConfig, deps Dependencies, metricsManager *metrics.Manager) (*HTTPServer, error) {
	if deps.Events == nil || deps.Node == nil || deps.Accounts == nil ||
		deps.Screener == nil || deps.Submitter == nil || deps.Audit == nil || deps.Notifier == nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "HTTP server is missing a required dependency")
	}

	server := &HTTPServer{
		config:         config,
		deps:           deps,
		metricsManager: metricsManager,
		logger:         utils.ComponentLogger("http_server"),
		startTime:      time.Now(),
	}

	server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      server.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return server, nil
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	s.router.HandleFunc("/health", s.healthHandler).Methods("GET")
	s.router.HandleFunc("/stats", s.statsHandler).Methods("GET")

	if s.config.EnableMetrics && s.metricsManager != nil {
		s.router.Handle("/metrics", s.metricsManager.Handler()).Methods("GET")
	}

	s.router.HandleFunc("/events", s.listEventsHandler).Methods("GET")
	s.router.HandleFunc("/screen", s.screenHandler).Methods("GET", "POST")

	s.router.HandleFunc("/audit", s.listAuditHandler).Methods("GET")
	s.router.HandleFunc("/audit/export", s.exportAuditHandler).Methods("GET")

	// Administrative actions
	admin := s.router.NewRoute().Subrouter()
	admin.Use(s.apiKeyMiddleware)
	admin.HandleFunc("/mint", s.mintHandler).Methods("POST")
	admin.HandleFunc("/burn", s.burnHandler).Methods("POST")
	admin.HandleFunc("/blacklist/add", s.blacklistAddHandler).Methods("POST")
	admin.HandleFunc("/blacklist/remove", s.blacklistRemoveHandler).Methods("POST")
	admin.HandleFunc("/seize", s.seizeHandler).Methods("POST")
}

// Handler returns the routed handler
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully
func (s *HTTPServer) Run(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
		"auth_enabled":    s.config.APIKey != "",
	}).Info("Starting HTTP server")

	if s.metricsManager != nil {
		s.updateSystemMetrics()
		go s.systemMetricsUpdater(ctx)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-ctx.Done():
		return s.Stop()
	}
}

// systemMetricsUpdater updates system metrics periodically
func (s *HTTPServer) systemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.updateSystemMetrics()
		}
	}
}

func (s *HTTPServer) updateSystemMetrics() {
	s.metricsManager.UpdateSystemMetrics()
	s.metricsManager.GetPrometheusMetrics().UpdateEventStoreSize(s.deps.Events.Len())
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeError writes an {"error": message} response
func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	log := requestLogger(r.Context(), s.logger).WithFields(logrus.Fields{
		"status": status,
		"path":   r.URL.Path,
	})
	if status >= http.StatusInternalServerError {
		log.WithField("error", message).Error("HTTP error")
	} else {
		log.WithField("error", message).Warn("HTTP request rejected")
	}

	s.writeJSON(w, status, map[string]interface{}{"error": message})
}
