// Package telemetry writes vault activity measurements to InfluxDB.
// Like the journal it consumes the event stream and never sits in the
// mutation path.
package telemetry

import (
	"context"
	"encoding/json"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxapi "github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/nats-io/nats.go"

	"github.com/terminal-bench/assetvault/pkg/messaging"
)

// Recorder writes session and settlement measurements.
type Recorder struct {
	client influxdb2.Client
	write  influxapi.WriteAPIBlocking
}

// NewRecorder connects to InfluxDB.
func NewRecorder(url, token, org, bucket string) *Recorder {
	client := influxdb2.NewClient(url, token)
	return &Recorder{
		client: client,
		write:  client.WriteAPIBlocking(org, bucket),
	}
}

// Start subscribes to the vault event subjects.
func (r *Recorder) Start(nc *messaging.Client) error {
	if err := nc.Subscribe(messaging.EventTypeSessionClosed, r.handleSessionClosed); err != nil {
		return err
	}
	return nc.Subscribe(messaging.EventTypeSettled, r.handleSettled)
}

// Close releases the InfluxDB client.
func (r *Recorder) Close() {
	r.client.Close()
}

func (r *Recorder) handleSessionClosed(msg *nats.Msg) {
	var event messaging.SessionClosedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return
	}
	duration, err := time.ParseDuration(event.Duration)
	if err != nil {
		return
	}

	point := influxdb2.NewPoint("vault_session",
		map[string]string{"holder": event.Holder},
		map[string]interface{}{"duration_ms": float64(duration.Microseconds()) / 1000.0},
		event.Timestamp,
	)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.write.WritePoint(ctx, point)
}

func (r *Recorder) handleSettled(msg *nats.Msg) {
	var event messaging.SettledEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return
	}

	point := influxdb2.NewPoint("vault_settlement",
		map[string]string{"currency": event.Currency, "settler": event.Settler},
		map[string]interface{}{"paid": event.Paid},
		event.Timestamp,
	)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.write.WritePoint(ctx, point)
}
