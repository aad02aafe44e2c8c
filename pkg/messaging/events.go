package messaging

import (
	"time"

	"github.com/google/uuid"
)

// Subjects published by the vault. Indexers subscribe to
// SubjectVaultAll for the whole stream.
const (
	SubjectVaultAll = "vault.>"

	EventTypeAppRegistered = "vault.app.registered"
	EventTypeSessionClosed = "vault.session.closed"
	EventTypeSettled       = "vault.currency.settled"
	EventTypeSynced        = "vault.currency.synced"
	EventTypeFeeCollected  = "vault.fee.collected"
)

// AppRegisteredEvent is emitted once per app, on first registration.
type AppRegisteredEvent struct {
	EventID   uuid.UUID `json:"event_id"`
	App       string    `json:"app"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionClosedEvent is emitted after a lock session settles and releases.
type SessionClosedEvent struct {
	EventID   uuid.UUID `json:"event_id"`
	Holder    string    `json:"holder"`
	Duration  string    `json:"duration"`
	Timestamp time.Time `json:"timestamp"`
}

// SettledEvent records a settle call: the settler was credited with
// the paid amount (base units).
type SettledEvent struct {
	EventID   uuid.UUID `json:"event_id"`
	Settler   string    `json:"settler"`
	Currency  string    `json:"currency"`
	Paid      string    `json:"paid"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncedEvent records a reserve snapshot refresh.
type SyncedEvent struct {
	EventID   uuid.UUID `json:"event_id"`
	Currency  string    `json:"currency"`
	Balance   string    `json:"balance"`
	Timestamp time.Time `json:"timestamp"`
}

// FeeCollectedEvent records an app withdrawing accrued fees from its
// settled reserve.
type FeeCollectedEvent struct {
	EventID   uuid.UUID `json:"event_id"`
	App       string    `json:"app"`
	Currency  string    `json:"currency"`
	Amount    string    `json:"amount"`
	Recipient string    `json:"recipient"`
	Timestamp time.Time `json:"timestamp"`
}
