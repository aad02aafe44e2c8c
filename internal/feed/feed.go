// Package feed streams vault events to external indexers over
// WebSocket. It consumes the NATS event stream and fans out to
// subscribers; dropped frames are acceptable, the journal is the
// durable record.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"github.com/terminal-bench/assetvault/pkg/messaging"
)

// Update is one event frame delivered to subscribers.
type Update struct {
	Subject   string          `json:"subject"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Subscriber is one connected indexer.
type Subscriber struct {
	ID      uuid.UUID
	Updates chan Update
	Done    chan struct{}
}

// Feed fans vault events out to WebSocket subscribers.
type Feed struct {
	msgClient   *messaging.Client
	mu          sync.RWMutex
	subscribers map[uuid.UUID]*Subscriber
	updates     chan Update
	shutdown    chan struct{}
	wg          sync.WaitGroup
}

// NewFeed creates a feed over the given event bus client.
func NewFeed(msgClient *messaging.Client) *Feed {
	return &Feed{
		msgClient:   msgClient,
		subscribers: make(map[uuid.UUID]*Subscriber),
		updates:     make(chan Update, 64),
		shutdown:    make(chan struct{}),
	}
}

// Start subscribes to the vault event stream and begins broadcasting.
func (f *Feed) Start() error {
	if err := f.msgClient.Subscribe(messaging.SubjectVaultAll, f.handleEvent); err != nil {
		return fmt.Errorf("failed to subscribe to vault events: %w", err)
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			select {
			case update := <-f.updates:
				f.broadcast(update)
			case <-f.shutdown:
				return
			}
		}
	}()
	return nil
}

// Stop stops the broadcast loop.
func (f *Feed) Stop() {
	close(f.shutdown)
	f.wg.Wait()
}

func (f *Feed) handleEvent(msg *nats.Msg) {
	update := Update{
		Subject:   msg.Subject,
		Data:      json.RawMessage(msg.Data),
		Timestamp: time.Now(),
	}
	select {
	case f.updates <- update:
	default:
		// Feed is lossy under backpressure.
	}
}

// Subscribe registers a new subscriber.
func (f *Feed) Subscribe() *Subscriber {
	sub := &Subscriber{
		ID:      uuid.New(),
		Updates: make(chan Update, 16),
		Done:    make(chan struct{}),
	}

	f.mu.Lock()
	f.subscribers[sub.ID] = sub
	f.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscriber.
func (f *Feed) Unsubscribe(subID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if sub, exists := f.subscribers[subID]; exists {
		close(sub.Done)
		delete(f.subscribers, subID)
	}
}

func (f *Feed) broadcast(update Update) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, sub := range f.subscribers {
		select {
		case sub.Updates <- update:
		case <-sub.Done:
		default:
		}
	}
}

// ServeWS pumps feed updates over a WebSocket connection until the
// peer disconnects or ctx is cancelled.
func (f *Feed) ServeWS(ctx context.Context, conn *websocket.Conn) {
	sub := f.Subscribe()
	defer func() {
		f.Unsubscribe(sub.ID)
		conn.Close()
	}()

	// Reads are only consumed for connection liveness.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case update := <-sub.Updates:
			data, err := json.Marshal(update)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-readDone:
			return
		case <-sub.Done:
			return
		case <-ctx.Done():
			return
		}
	}
}
