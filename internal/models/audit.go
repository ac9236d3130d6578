package models

import "time"

// AuditEvent records one administrative action confirmed on the ledger
type AuditEvent struct {
	Time    time.Time              `json:"time"`
	Event   string                 `json:"event"`
	Payload map[string]interface{} `json:"payload"`
}
