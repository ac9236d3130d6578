// File: internal/audit/log.go
package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfanfaraaz/sss-backend/internal/metrics"
	"github.com/irfanfaraaz/sss-backend/internal/models"
	"github.com/irfanfaraaz/sss-backend/pkg/utils"
)

// DefaultCapacity bounds the number of retained audit records
const DefaultCapacity = 10000

// Export formats
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// TimeFormat renders record times as ISO-8601 UTC with milliseconds
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// CSVColumns is the header row of a CSV export. Columns after "event" are
// read from the record payload.
var CSVColumns = []string{"time", "event", "mint", "signature", "recipient", "amount", "from", "address", "reason", "treasury"}

// Log is an in-memory, bounded, append-only record of administrative
// actions. Oldest records are dropped first once the capacity is reached.
type Log struct {
	capacity int
	logger   *logrus.Entry
	now      func() time.Time

	mu      sync.RWMutex
	records []models.AuditEvent

	metricsManager *metrics.Manager
}

// Option configures a Log
type Option func(*Log)

// WithCapacity sets the maximum number of retained records
func WithCapacity(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// NewLog creates an empty audit log
func NewLog(opts ...Option) *Log {
	l := &Log{
		capacity: DefaultCapacity,
		logger:   utils.ComponentLogger("audit"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetMetricsManager sets the metrics manager
func (l *Log) SetMetricsManager(m *metrics.Manager) {
	l.metricsManager = m
}

// Record appends an entry stamped with the current time and mirrors it to
// the structured log
func (l *Log) Record(event string, payload map[string]interface{}) models.AuditEvent {
	copied := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		copied[k] = v
	}
	record := models.AuditEvent{
		Time:    l.now().UTC(),
		Event:   event,
		Payload: copied,
	}

	l.mu.Lock()
	l.records = append(l.records, record)
	if len(l.records) > l.capacity {
		// drop the oldest, reallocating so the backing array does not grow forever
		l.records = append([]models.AuditEvent(nil), l.records[len(l.records)-l.capacity:]...)
	}
	l.mu.Unlock()

	fields := logrus.Fields{}
	for k, v := range copied {
		fields[k] = v
	}
	fields["audit_event"] = event
	l.logger.WithFields(fields).Info("Audit")

	if l.metricsManager != nil {
		l.metricsManager.GetPrometheusMetrics().RecordAuditEvent(event)
	}
	return record
}

// List returns all records in insertion order
func (l *Log) List() []models.AuditEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.AuditEvent, len(l.records))
	copy(out, l.records)
	return out
}

// Filter returns the records whose event equals action; an empty action
// returns everything
func (l *Log) Filter(action string) []models.AuditEvent {
	if action == "" {
		return l.List()
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.AuditEvent, 0)
	for _, r := range l.records {
		if r.Event == action {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of retained records
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Export renders all records as "json" (an array of records) or "csv"
func (l *Log) Export(format string) ([]byte, error) {
	return ExportRecords(l.List(), format)
}

// ExportRecords renders records in the given format
func ExportRecords(records []models.AuditEvent, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatJSON, "":
		data, err := json.Marshal(jsonRecords(records))
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to encode audit log", err.Error())
		}
		return data, nil
	case FormatCSV:
		return exportCSV(records)
	default:
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Unsupported export format", format)
	}
}

// ExportFilename returns audit-<YYYY-MM-DDTHH-MM-SS>.<format>
func ExportFilename(now time.Time, format string) string {
	return fmt.Sprintf("audit-%s.%s", now.UTC().Format("2006-01-02T15-04-05"), strings.ToLower(format))
}

type jsonRecord struct {
	Time    string                 `json:"time"`
	Event   string                 `json:"event"`
	Payload map[string]interface{} `json:"payload"`
}

func jsonRecords(records []models.AuditEvent) []jsonRecord {
	out := make([]jsonRecord, len(records))
	for i, r := range records {
		payload := r.Payload
		if payload == nil {
			payload = map[string]interface{}{}
		}
		out[i] = jsonRecord{Time: r.Time.UTC().Format(TimeFormat), Event: r.Event, Payload: payload}
	}
	return out
}

func exportCSV(records []models.AuditEvent) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(CSVColumns); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to write audit CSV", err.Error())
	}
	row := make([]string, len(CSVColumns))
	for _, r := range records {
		row[0] = r.Time.UTC().Format(TimeFormat)
		row[1] = r.Event
		for i, col := range CSVColumns[2:] {
			row[i+2] = payloadString(r.Payload, col)
		}
		if err := w.Write(row); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to write audit CSV", err.Error())
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to write audit CSV", err.Error())
	}
	return buf.Bytes(), nil
}

func payloadString(payload map[string]interface{}, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
