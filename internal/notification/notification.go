// File: internal/notification/notification.go
package notification

import (
	"context"
	"time"

	"github.com/irfanfaraaz/sss-backend/internal/models"
)

// Notifier delivers event notifications without blocking the caller
type Notifier interface {
	// Dispatch schedules delivery and reports whether a target was configured
	Dispatch(eventType models.EventType, payload models.WebhookPayload) bool
	// Wait blocks until in-flight deliveries finish or ctx is done
	Wait(ctx context.Context) error
	GetStats() *NotificationStats
}

// DeliveryState is a step of the webhook retry loop
type DeliveryState string

const (
	StateAttempting     DeliveryState = "attempting"
	StateWaitingBackoff DeliveryState = "waiting_backoff"
	StateDone           DeliveryState = "done"
	StateExhausted      DeliveryState = "exhausted"
)

// Delivery tracks one webhook delivery across its attempts
type Delivery struct {
	EventType      models.EventType `json:"event_type"`
	URL            string           `json:"url"`
	IdempotencyKey string           `json:"idempotency_key"`
	State          DeliveryState    `json:"state"`
	Attempts       int              `json:"attempts"`
	LastStatus     int              `json:"last_status,omitempty"`
	LastError      string           `json:"last_error,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	FinishedAt     *time.Time       `json:"finished_at,omitempty"`
}

// NotificationStats provides notification statistics
type NotificationStats struct {
	TotalDispatched uint64     `json:"total_dispatched"`
	TotalSkipped    uint64     `json:"total_skipped"`
	TotalDelivered  uint64     `json:"total_delivered"`
	TotalRejected   uint64     `json:"total_rejected"`
	TotalExhausted  uint64     `json:"total_exhausted"`
	TotalAttempts   uint64     `json:"total_attempts"`
	InFlight        int64      `json:"in_flight"`
	LastError       *string    `json:"last_error,omitempty"`
	LastErrorTime   *time.Time `json:"last_error_time,omitempty"`
}
