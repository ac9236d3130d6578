package models

// EventType classifies an indexed program transaction
type EventType string

const (
	EventTypeMint            EventType = "mint"
	EventTypeBurn            EventType = "burn"
	EventTypeBlacklistAdd    EventType = "blacklist_add"
	EventTypeBlacklistRemove EventType = "blacklist_remove"
	EventTypeSeize           EventType = "seize"
	// Freeze and thaw are only emitted as webhook events
	EventTypeFreeze EventType = "freeze"
	EventTypeThaw   EventType = "thaw"
	// EventTypeTransaction is the fallback when no instruction marker matches
	EventTypeTransaction EventType = "transaction"
)

// IndexedEvent is one observed transaction of the program.
// Field names follow the persisted events file format.
type IndexedEvent struct {
	Signature string    `json:"signature"`
	Slot      uint64    `json:"slot"`
	BlockTime *int64    `json:"blockTime,omitempty"`
	Mint      string    `json:"mint,omitempty"`
	EventType EventType `json:"eventType"`
}

// EventFilter for querying the event store
type EventFilter struct {
	Mint   string `json:"mint,omitempty"`
	Before string `json:"before,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}
