// File: internal/notification/webhook.go
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfanfaraaz/sss-backend/internal/config"
	"github.com/irfanfaraaz/sss-backend/internal/metrics"
	"github.com/irfanfaraaz/sss-backend/internal/models"
	"github.com/irfanfaraaz/sss-backend/pkg/utils"
)

// Webhook request headers
const (
	HeaderIdempotencyKey = "X-Idempotency-Key"
	HeaderSignature      = "X-Webhook-Signature"
)

// DefaultTimeout bounds a single delivery attempt
const DefaultTimeout = 10 * time.Second

// DefaultBackoff is the wait after the 1st, 2nd and 3rd failed attempt
var DefaultBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// DispatcherConfig holds webhook delivery configuration
type DispatcherConfig struct {
	URL       string            `json:"url"`
	EventURLs map[string]string `json:"event_urls"`
	Secret    string            `json:"-"`
	Timeout   time.Duration     `json:"timeout"`
	Backoff   []time.Duration   `json:"backoff"`
}

// NewDispatcherConfig converts application config into dispatcher config
func NewDispatcherConfig(cfg *config.WebhookConfig) *DispatcherConfig {
	urls := make(map[string]string, len(cfg.EventURLs))
	for event, url := range cfg.EventURLs {
		urls[normalizeEvent(event)] = strings.TrimSpace(url)
	}
	return &DispatcherConfig{
		URL:       strings.TrimSpace(cfg.URL),
		EventURLs: urls,
		Secret:    cfg.Secret,
		Timeout:   DefaultTimeout,
		Backoff:   DefaultBackoff,
	}
}

// Dispatcher posts event payloads to configured webhooks. Deliveries run
// in their own goroutines and may outlive the request that triggered them.
type Dispatcher struct {
	config     *DispatcherConfig
	httpClient *http.Client
	logger     *logrus.Entry

	// sleep and now are replaced in tests
	sleep func(time.Duration)
	now   func() time.Time

	wg    sync.WaitGroup
	mu    sync.Mutex
	stats NotificationStats

	inFlight atomic.Int64

	metricsManager *metrics.Manager
}

// NewDispatcher creates a webhook dispatcher
func NewDispatcher(cfg *DispatcherConfig) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.EventURLs == nil {
		cfg.EventURLs = make(map[string]string)
	}

	return &Dispatcher{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		logger: utils.ComponentLogger("webhook"),
		sleep:  time.Sleep,
		now:    time.Now,
	}
}

// SetMetricsManager sets the metrics manager
func (d *Dispatcher) SetMetricsManager(m *metrics.Manager) {
	d.metricsManager = m
}

func normalizeEvent(event string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(event), "-", "_"))
}

// ResolveURL returns the per-event override, else the global URL, else ""
func (d *Dispatcher) ResolveURL(eventType models.EventType) string {
	if url := d.config.EventURLs[normalizeEvent(string(eventType))]; url != "" {
		return url
	}
	return d.config.URL
}

// Dispatch schedules delivery of payload and returns immediately. Returns
// false when no URL is configured for eventType.
func (d *Dispatcher) Dispatch(eventType models.EventType, payload models.WebhookPayload) bool {
	url := d.ResolveURL(eventType)
	if url == "" {
		d.mu.Lock()
		d.stats.TotalSkipped++
		d.mu.Unlock()
		return false
	}

	body, err := json.Marshal(payload.Body(eventType))
	if err != nil {
		d.logger.WithError(err).WithField("event", eventType).Error("Failed to marshal webhook payload")
		return false
	}

	key := payload.Signature
	if key == "" {
		key = fmt.Sprintf("%d-%s", d.now().UnixMilli(), eventType)
	}

	delivery := &Delivery{
		EventType:      eventType,
		URL:            url,
		IdempotencyKey: key,
		State:          StateAttempting,
		StartedAt:      d.now(),
	}

	d.mu.Lock()
	d.stats.TotalDispatched++
	d.mu.Unlock()

	d.wg.Add(1)
	d.inFlight.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.inFlight.Add(-1)
		d.deliver(delivery, body)
	}()
	return true
}

// deliver drives one delivery through its states until done or exhausted
func (d *Dispatcher) deliver(delivery *Delivery, body []byte) *Delivery {
	log := d.logger.WithFields(logrus.Fields{
		"event":           delivery.EventType,
		"url":             delivery.URL,
		"idempotency_key": delivery.IdempotencyKey,
	})

	for {
		switch delivery.State {
		case StateAttempting:
			status, err := d.send(delivery, body)
			delivery.Attempts++
			delivery.LastStatus = status
			if err != nil {
				delivery.LastError = err.Error()
			}

			outcome := attemptOutcome(status, err)
			d.recordAttempt(delivery.EventType, outcome)

			switch {
			case outcome == "success":
				d.finish(delivery, StateDone, "delivered")
				log.WithField("attempts", delivery.Attempts).Debug("Webhook delivered")
			case outcome == "client_error":
				// 4xx will not improve on retry
				d.finish(delivery, StateDone, "rejected")
				log.WithField("status", status).Warn("Webhook rejected by receiver")
			case delivery.Attempts > len(d.config.Backoff):
				d.finish(delivery, StateExhausted, "exhausted")
			default:
				delivery.State = StateWaitingBackoff
			}

		case StateWaitingBackoff:
			wait := d.config.Backoff[delivery.Attempts-1]
			log.WithFields(logrus.Fields{
				"attempt": delivery.Attempts,
				"delay":   wait,
				"status":  delivery.LastStatus,
				"error":   delivery.LastError,
			}).Debug("Webhook attempt failed, retrying")
			d.sleep(wait)
			delivery.State = StateAttempting

		case StateExhausted:
			log.WithFields(logrus.Fields{
				"attempts": delivery.Attempts,
				"status":   delivery.LastStatus,
				"error":    delivery.LastError,
			}).Error("Webhook delivery failed after retries")
			return delivery

		case StateDone:
			return delivery
		}
	}
}

// send performs a single POST and returns the status code
func (d *Dispatcher) send(delivery *Delivery, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.URL, bytes.NewReader(body))
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeInternal, "Failed to create webhook request", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderIdempotencyKey, delivery.IdempotencyKey)
	if d.config.Secret != "" {
		req.Header.Set(HeaderSignature, d.config.Secret)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeExternal, "Failed to send webhook", err.Error())
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, utils.NewAppError(utils.ErrCodeExternal,
			"Webhook returned non-success status",
			fmt.Sprintf("status: %d", resp.StatusCode))
	}
	return resp.StatusCode, nil
}

func attemptOutcome(status int, err error) string {
	switch {
	case err == nil:
		return "success"
	case status == 0:
		return "transport_error"
	case status >= 500:
		return "server_error"
	default:
		return "client_error"
	}
}

func (d *Dispatcher) finish(delivery *Delivery, state DeliveryState, result string) {
	now := d.now()
	delivery.State = state
	delivery.FinishedAt = &now

	d.mu.Lock()
	switch result {
	case "delivered":
		d.stats.TotalDelivered++
	case "rejected":
		d.stats.TotalRejected++
	case "exhausted":
		d.stats.TotalExhausted++
	}
	if delivery.LastError != "" && result != "delivered" {
		msg := delivery.LastError
		d.stats.LastError = &msg
		d.stats.LastErrorTime = &now
	}
	d.mu.Unlock()

	if d.metricsManager != nil {
		d.metricsManager.GetPrometheusMetrics().RecordWebhookDelivery(string(delivery.EventType), result)
	}
}

func (d *Dispatcher) recordAttempt(eventType models.EventType, outcome string) {
	d.mu.Lock()
	d.stats.TotalAttempts++
	d.mu.Unlock()

	if d.metricsManager != nil {
		d.metricsManager.GetPrometheusMetrics().RecordWebhookAttempt(string(eventType), outcome)
	}
}

// Wait blocks until all in-flight deliveries finish or ctx is done
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.logger.WithField("in_flight", d.inFlight.Load()).Warn("Webhook deliveries still in flight at shutdown")
		return ctx.Err()
	}
}

// GetStats returns notification statistics
func (d *Dispatcher) GetStats() *NotificationStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	stats := d.stats
	stats.InFlight = d.inFlight.Load()
	return &stats
}
