// File: internal/indexer/indexer.go
package indexer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfanfaraaz/sss-backend/internal/config"
	"github.com/irfanfaraaz/sss-backend/internal/ledger"
	"github.com/irfanfaraaz/sss-backend/internal/metrics"
	"github.com/irfanfaraaz/sss-backend/internal/models"
	"github.com/irfanfaraaz/sss-backend/pkg/utils"
)

const (
	// DefaultPollInterval between the end of one cycle and the start of the next
	DefaultPollInterval = 8 * time.Second
	// DefaultBatchSize bounds the signatures requested per cycle
	DefaultBatchSize = 20
)

// EventSink receives indexed events. *storage.EventStore satisfies it.
type EventSink interface {
	// Append reports whether ev was inserted; known signatures are ignored
	Append(ctx context.Context, ev models.IndexedEvent) (bool, error)
	Contains(signature string) bool
	Latest() (models.IndexedEvent, bool)
	Len() int
}

// StopFunc prevents future cycles. A cycle in flight is allowed to finish.
type StopFunc func()

// Config holds indexer configuration
type Config struct {
	ProgramID    string        `json:"program_id"`
	PollInterval time.Duration `json:"poll_interval"`
	BatchSize    int           `json:"batch_size"`
}

// NewConfig converts application config into indexer config
func NewConfig(solana *config.SolanaConfig, idx *config.IndexerConfig) *Config {
	return &Config{
		ProgramID:    solana.ProgramID,
		PollInterval: idx.PollInterval(),
		BatchSize:    idx.BatchSize,
	}
}

// Indexer polls the ledger for program transactions and appends them to
// the event store. It is a single worker; cycles never overlap.
type Indexer struct {
	source ledger.SignatureSource
	sink   EventSink
	config *Config
	logger *logrus.Entry

	// after schedules the next cycle; replaced in tests
	after func(time.Duration) <-chan time.Time

	// pollMu serialises cycles so a manual Poll never overlaps the loop
	pollMu sync.Mutex

	mu       sync.RWMutex
	running  bool
	cursor   string
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	stats          *IndexerStats
	metricsManager *metrics.Manager
}

// IndexerStats provides indexing statistics
type IndexerStats struct {
	StartTime      time.Time  `json:"start_time"`
	IsRunning      bool       `json:"is_running"`
	Cursor         string     `json:"cursor"`
	TotalPolls     uint64     `json:"total_polls"`
	TotalIndexed   uint64     `json:"total_indexed"`
	DegradedEvents uint64     `json:"degraded_events"`
	ErrorCount     uint64     `json:"error_count"`
	LastPollTime   *time.Time `json:"last_poll_time,omitempty"`
	LastError      *string    `json:"last_error,omitempty"`
	LastErrorTime  *time.Time `json:"last_error_time,omitempty"`
}

// HealthStatus provides health information
type HealthStatus struct {
	Healthy      bool       `json:"healthy"`
	Running      bool       `json:"running"`
	LastPollTime *time.Time `json:"last_poll_time,omitempty"`
	Issues       []string   `json:"issues,omitempty"`
}

// PollResult describes one completed cycle
type PollResult struct {
	SignaturesFetched int           `json:"signatures_fetched"`
	EventsAppended    int           `json:"events_appended"`
	Degraded          int           `json:"degraded"`
	Cursor            string        `json:"cursor"`
	Duration          time.Duration `json:"duration"`
}

// NewIndexer creates an indexer. The cursor is restored from the newest
// event already in sink.
func NewIndexer(source ledger.SignatureSource, sink EventSink, cfg *Config) *Indexer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	ix := &Indexer{
		source:   source,
		sink:     sink,
		config:   cfg,
		logger:   utils.ComponentLogger("indexer").WithField("program", cfg.ProgramID),
		after:    time.After,
		stopChan: make(chan struct{}),
		stats:    &IndexerStats{StartTime: time.Now()},
	}
	ix.ResetCursor()
	return ix
}

// SetMetricsManager sets the metrics manager for the indexer
func (ix *Indexer) SetMetricsManager(m *metrics.Manager) {
	ix.metricsManager = m
}

// ResetCursor reconstructs the cursor from the newest stored event
func (ix *Indexer) ResetCursor() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if latest, ok := ix.sink.Latest(); ok {
		ix.cursor = latest.Signature
	} else {
		ix.cursor = ""
	}
}

// Cursor returns the newest signature already ingested
func (ix *Indexer) Cursor() string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.cursor
}

// Start runs the first cycle immediately and reschedules after every cycle
// until the returned StopFunc is called or ctx is cancelled.
func (ix *Indexer) Start(ctx context.Context) (StopFunc, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.running {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Indexer already running")
	}

	ix.running = true
	ix.stats.StartTime = time.Now()
	ix.stats.IsRunning = true

	ix.wg.Add(1)
	go ix.loop(ctx)

	ix.logger.WithFields(logrus.Fields{
		"poll_interval": ix.config.PollInterval,
		"batch_size":    ix.config.BatchSize,
		"cursor":        ix.cursor,
	}).Info("Indexer started")

	return func() { ix.signalStop() }, nil
}

// Stop prevents future cycles and waits for an in-flight one to finish
func (ix *Indexer) Stop() error {
	ix.signalStop()
	ix.wg.Wait()
	return nil
}

// IsRunning returns whether the poll loop is active
func (ix *Indexer) IsRunning() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.running
}

func (ix *Indexer) signalStop() {
	ix.stopOnce.Do(func() {
		close(ix.stopChan)
		ix.logger.Info("Indexer stop requested")
	})
}

func (ix *Indexer) loop(ctx context.Context) {
	defer ix.wg.Done()
	defer func() {
		ix.mu.Lock()
		ix.running = false
		ix.stats.IsRunning = false
		ix.mu.Unlock()
		ix.logger.Info("Indexer stopped")
	}()

	for {
		if ix.stopped(ctx) {
			return
		}

		if _, err := ix.Poll(ctx); err != nil {
			ix.logger.WithError(err).Error("Indexer poll failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ix.stopChan:
			return
		case <-ix.after(ix.config.PollInterval):
		}
	}
}

func (ix *Indexer) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-ix.stopChan:
		return true
	default:
		return false
	}
}

// Poll runs one indexing cycle. Only the signature query can fail the
// cycle; per-signature problems degrade that event to a plain transaction.
func (ix *Indexer) Poll(ctx context.Context) (*PollResult, error) {
	ix.pollMu.Lock()
	defer ix.pollMu.Unlock()

	start := time.Now()
	cursor := ix.Cursor()

	opts := &ledger.SignaturesOpts{Limit: ix.config.BatchSize}
	if cursor != "" {
		opts.Before = cursor
	}

	sigs, err := ix.source.GetSignaturesForAddress(ctx, ix.config.ProgramID, opts)
	if err != nil {
		ix.recordPoll("error", time.Since(start))
		ix.recordError(err)
		return nil, utils.NewAppError(utils.ErrCodeBlockchain, "Failed to fetch program signatures", err.Error())
	}

	result := &PollResult{SignaturesFetched: len(sigs)}

	// newest-first from the node; append oldest-first
	for i := len(sigs) - 1; i >= 0; i-- {
		sig := sigs[i]
		if ix.sink.Contains(sig.Signature) {
			cursor = sig.Signature
			ix.setCursor(cursor)
			continue
		}

		ev, degraded := ix.buildEvent(ctx, sig)
		if degraded {
			result.Degraded++
		}

		inserted, err := ix.sink.Append(ctx, ev)
		if err != nil {
			ix.logger.WithError(err).WithField("signature", sig.Signature).Warn("Failed to persist indexed event")
		}
		if inserted {
			result.EventsAppended++
			ix.recordEvent(ev)
		}

		cursor = sig.Signature
		ix.setCursor(cursor)
	}

	if len(sigs) > 0 && cursor == "" {
		cursor = sigs[0].Signature
		ix.setCursor(cursor)
	}

	result.Cursor = cursor
	result.Duration = time.Since(start)
	if result.Degraded > 0 {
		ix.mu.Lock()
		ix.stats.DegradedEvents += uint64(result.Degraded)
		ix.mu.Unlock()
	}
	ix.recordPoll("success", result.Duration)

	if result.EventsAppended > 0 {
		ix.logger.WithFields(logrus.Fields{
			"fetched":  result.SignaturesFetched,
			"appended": result.EventsAppended,
			"degraded": result.Degraded,
			"cursor":   result.Cursor,
		}).Info("Indexed program transactions")
	} else {
		ix.logger.WithField("fetched", result.SignaturesFetched).Debug("No new program transactions")
	}

	return result, nil
}

// buildEvent fetches and classifies one signature. The bool reports
// whether detail fetch failed and the event was degraded.
func (ix *Indexer) buildEvent(ctx context.Context, sig ledger.SignatureInfo) (models.IndexedEvent, bool) {
	ev := models.IndexedEvent{
		Signature: sig.Signature,
		Slot:      sig.Slot,
		BlockTime: sig.BlockTime,
		EventType: models.EventTypeTransaction,
	}

	tx, err := ix.source.GetTransaction(ctx, sig.Signature)
	if err != nil {
		ix.logger.WithError(err).WithField("signature", sig.Signature).Warn("Failed to fetch transaction detail")
		if ix.metricsManager != nil {
			ix.metricsManager.GetPrometheusMetrics().RecordTransactionFetchError()
		}
		return ev, true
	}

	c := Classify(tx)
	ev.EventType = c.EventType
	ev.Mint = c.Mint
	return ev, false
}

func (ix *Indexer) setCursor(sig string) {
	ix.mu.Lock()
	ix.cursor = sig
	ix.stats.Cursor = sig
	ix.mu.Unlock()
}

func (ix *Indexer) recordPoll(status string, d time.Duration) {
	now := time.Now()
	ix.mu.Lock()
	ix.stats.TotalPolls++
	ix.stats.LastPollTime = &now
	ix.mu.Unlock()

	if ix.metricsManager != nil {
		ix.metricsManager.GetPrometheusMetrics().RecordIndexerPoll(status, d)
	}
}

func (ix *Indexer) recordEvent(ev models.IndexedEvent) {
	ix.mu.Lock()
	ix.stats.TotalIndexed++
	ix.mu.Unlock()

	if ix.metricsManager != nil {
		pm := ix.metricsManager.GetPrometheusMetrics()
		pm.RecordEventIndexed(string(ev.EventType), ev.Slot)
		pm.UpdateEventStoreSize(ix.sink.Len())
	}
}

func (ix *Indexer) recordError(err error) {
	now := time.Now()
	msg := err.Error()
	ix.mu.Lock()
	ix.stats.ErrorCount++
	ix.stats.LastError = &msg
	ix.stats.LastErrorTime = &now
	ix.mu.Unlock()
}

// GetStats returns indexer statistics
func (ix *Indexer) GetStats() *IndexerStats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	stats := *ix.stats
	stats.Cursor = ix.cursor
	return &stats
}

// GetHealth returns indexer health. The indexer is unhealthy when it has
// not completed a poll within three intervals while running.
func (ix *Indexer) GetHealth() *HealthStatus {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	h := &HealthStatus{
		Healthy:      true,
		Running:      ix.running,
		LastPollTime: ix.stats.LastPollTime,
	}
	if !ix.running {
		return h
	}
	if ix.stats.LastPollTime != nil && time.Since(*ix.stats.LastPollTime) > 3*ix.config.PollInterval {
		h.Healthy = false
		h.Issues = append(h.Issues, "indexer has not polled recently")
	}
	if ix.stats.LastErrorTime != nil && ix.stats.LastPollTime != nil && !ix.stats.LastErrorTime.Before(*ix.stats.LastPollTime) {
		h.Issues = append(h.Issues, "last poll failed")
	}
	return h
}
