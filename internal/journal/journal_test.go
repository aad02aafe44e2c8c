package journal

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/assetvault/pkg/messaging"
)

// unreachableDB opens a connection that fails on first use; port 1 is
// never listening, so every exec errors immediately.
func unreachableDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("postgres", "host=127.0.0.1 port=1 sslmode=disable connect_timeout=1")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	return &buf
}

func TestInsertFailureIsLoggedNotFatal(t *testing.T) {
	j := New(unreachableDB(t))
	buf := captureLog(t)

	event := messaging.SettledEvent{
		EventID:   uuid.New(),
		Settler:   "trader",
		Currency:  "USD",
		Paid:      "100",
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(event)
	require.NoError(t, err)

	// A journal outage must be visible in the logs but can never
	// propagate back into the vault's mutation path.
	require.NotPanics(t, func() {
		j.handleSettled(&nats.Msg{Data: data})
	})
	assert.Contains(t, buf.String(), "journal: failed to record settlement")
}

func TestEveryHandlerSurvivesAnInsertFailure(t *testing.T) {
	j := New(unreachableDB(t))
	buf := captureLog(t)

	marshal := func(v interface{}) []byte {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		return data
	}

	now := time.Now()
	j.handleAppRegistered(&nats.Msg{Data: marshal(messaging.AppRegisteredEvent{
		EventID: uuid.New(), App: "amm", Timestamp: now,
	})})
	j.handleSessionClosed(&nats.Msg{Data: marshal(messaging.SessionClosedEvent{
		EventID: uuid.New(), Holder: "trader", Duration: "1ms", Timestamp: now,
	})})
	j.handleFeeCollected(&nats.Msg{Data: marshal(messaging.FeeCollectedEvent{
		EventID: uuid.New(), App: "amm", Currency: "USD", Amount: "5", Recipient: "sink", Timestamp: now,
	})})

	assert.Contains(t, buf.String(), "failed to record app registration")
	assert.Contains(t, buf.String(), "failed to record session")
	assert.Contains(t, buf.String(), "failed to record fee collection")
}

func TestMalformedEventIsDropped(t *testing.T) {
	// The database is never touched when decoding fails.
	j := New(nil)
	require.NotPanics(t, func() {
		j.handleSettled(&nats.Msg{Data: []byte("not json")})
		j.handleAppRegistered(&nats.Msg{Data: []byte("not json")})
		j.handleSessionClosed(&nats.Msg{Data: []byte("not json")})
		j.handleFeeCollected(&nats.Msg{Data: []byte("not json")})
	})
}
