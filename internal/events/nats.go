package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// NatsConfig configures the JetStream-backed Publisher.
type NatsConfig struct {
	URL        string        // e.g. "nats://nats:4222"
	StreamName string        // default "REFACTORCTL"
	Timeout    time.Duration // connect timeout, default 10s
}

// NatsPublisher publishes StatusChanged events to JetStream subject
// "project.status_changed", using LimitsPolicy retention so any number
// of downstream consumers (audit log, dashboards) can fan out from it.
type NatsPublisher struct {
	conn       *nats.Conn
	js         nats.JetStreamContext
	streamName string
}

// NewNatsPublisher connects, ensures the stream exists, and returns a Publisher.
func NewNatsPublisher(cfg NatsConfig) (*NatsPublisher, error) {
	if cfg.URL == "" {
		cfg.URL = "nats://localhost:4222"
	}
	if cfg.StreamName == "" {
		cfg.StreamName = "REFACTORCTL"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("nats reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	p := &NatsPublisher{conn: nc, js: js, streamName: cfg.StreamName}
	if err := p.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	log.Printf("connected to nats at %s with stream %s", cfg.URL, cfg.StreamName)
	return p, nil
}

func (p *NatsPublisher) ensureStream() error {
	cfg := &nats.StreamConfig{
		Name:      p.streamName,
		Subjects:  []string{"project.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
		Replicas:  1,
		Discard:   nats.DiscardOld,
	}
	if _, err := p.js.StreamInfo(p.streamName); err != nil {
		_, err := p.js.AddStream(cfg)
		return err
	}
	_, err := p.js.UpdateStream(cfg)
	return err
}

// PublishStatusChanged publishes evt to Subject. A publish error is
// logged, never propagated: an event-bus outage must not fail a status
// transition that has already committed to the project store.
func (p *NatsPublisher) PublishStatusChanged(ctx context.Context, evt StatusChanged) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("events: marshal status_changed for %s: %v", evt.ProjectID, err)
		return
	}
	if _, err := p.js.Publish(Subject, data, nats.Context(ctx)); err != nil {
		log.Printf("events: publish status_changed for %s: %v", evt.ProjectID, err)
	}
}

func (p *NatsPublisher) Close() error {
	p.conn.Close()
	return nil
}
