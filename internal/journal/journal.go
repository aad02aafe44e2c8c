// Package journal persists an audit trail of vault activity to
// Postgres. It consumes the vault's event stream; it is never in the
// mutation path, so a journal outage cannot abort a session.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/terminal-bench/assetvault/pkg/messaging"
)

// Journal writes vault events to audit tables.
type Journal struct {
	db *sql.DB
}

// New creates a journal over db.
func New(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Start subscribes to the vault event subjects within a queue group so
// that multiple journal instances share the work.
func (j *Journal) Start(nc *messaging.Client) error {
	subs := map[string]func(*nats.Msg){
		messaging.EventTypeAppRegistered: j.handleAppRegistered,
		messaging.EventTypeSessionClosed: j.handleSessionClosed,
		messaging.EventTypeSettled:       j.handleSettled,
		messaging.EventTypeFeeCollected:  j.handleFeeCollected,
	}
	for subject, handler := range subs {
		if err := nc.QueueSubscribe(subject, "journal", handler); err != nil {
			return fmt.Errorf("failed to subscribe journal to %s: %w", subject, err)
		}
	}
	return nil
}

func (j *Journal) handleAppRegistered(msg *nats.Msg) {
	var event messaging.AppRegisteredEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return
	}
	ctx, cancel := opCtx()
	defer cancel()

	if _, err := j.db.ExecContext(ctx,
		`INSERT INTO vault_apps (id, address, registered_at)
		 VALUES ($1, $2, $3) ON CONFLICT (address) DO NOTHING`,
		event.EventID, event.App, event.Timestamp,
	); err != nil {
		log.Printf("journal: failed to record app registration: %v", err)
	}
}

func (j *Journal) handleSessionClosed(msg *nats.Msg) {
	var event messaging.SessionClosedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return
	}
	ctx, cancel := opCtx()
	defer cancel()

	if _, err := j.db.ExecContext(ctx,
		`INSERT INTO vault_sessions (id, holder, duration, closed_at)
		 VALUES ($1, $2, $3, $4)`,
		event.EventID, event.Holder, event.Duration, event.Timestamp,
	); err != nil {
		log.Printf("journal: failed to record session: %v", err)
	}
}

func (j *Journal) handleSettled(msg *nats.Msg) {
	var event messaging.SettledEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return
	}
	ctx, cancel := opCtx()
	defer cancel()

	if _, err := j.db.ExecContext(ctx,
		`INSERT INTO vault_settlements (id, settler, currency, paid, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		event.EventID, event.Settler, event.Currency, event.Paid, event.Timestamp,
	); err != nil {
		log.Printf("journal: failed to record settlement: %v", err)
	}
}

func (j *Journal) handleFeeCollected(msg *nats.Msg) {
	var event messaging.FeeCollectedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return
	}
	ctx, cancel := opCtx()
	defer cancel()

	if _, err := j.db.ExecContext(ctx,
		`INSERT INTO vault_fees (id, app, currency, amount, recipient, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.EventID, event.App, event.Currency, event.Amount, event.Recipient, event.Timestamp,
	); err != nil {
		log.Printf("journal: failed to record fee collection: %v", err)
	}
}

// Sessions returns the most recent closed sessions for the HTTP surface.
func (j *Journal) Sessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, holder, duration, closed_at
		 FROM vault_sessions ORDER BY closed_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		if err := rows.Scan(&rec.ID, &rec.Holder, &rec.Duration, &rec.ClosedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SessionRecord is a persisted closed session.
type SessionRecord struct {
	ID       uuid.UUID `json:"id"`
	Holder   string    `json:"holder"`
	Duration string    `json:"duration"`
	ClosedAt time.Time `json:"closed_at"`
}

func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
