package models

// ScreeningResult is the outcome of an address admission check.
// Computed per call and never cached.
type ScreeningResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// WebhookPayload carries the data of one webhook delivery
type WebhookPayload struct {
	Mint      string
	Signature string
	Slot      uint64
	// Fields holds event-specific values (recipient, amount, ...)
	Fields map[string]interface{}
}

// Body merges the payload fields with the event type into a request body
func (p WebhookPayload) Body(eventType EventType) map[string]interface{} {
	body := make(map[string]interface{}, len(p.Fields)+4)
	for k, v := range p.Fields {
		body[k] = v
	}
	if p.Mint != "" {
		body["mint"] = p.Mint
	}
	if p.Signature != "" {
		body["signature"] = p.Signature
	}
	if p.Slot != 0 {
		body["slot"] = p.Slot
	}
	body["event"] = string(eventType)
	return body
}
