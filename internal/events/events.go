// Package events publishes project lifecycle notifications onto a
// message bus. Publishing is best-effort: a broker outage degrades to
// structured logging rather than blocking a status transition.
package events

import (
	"context"
	"time"
)

// StatusChanged is published every time a project's status transitions.
type StatusChanged struct {
	ProjectID string
	Status    string
	At        time.Time
}

// Subject is the NATS subject StatusChanged events are published on.
const Subject = "project.status_changed"

// Publisher is implemented by anything that can announce a status
// change. It must never return an error that the state machine is
// expected to handle; failures are swallowed and logged internally.
type Publisher interface {
	PublishStatusChanged(ctx context.Context, evt StatusChanged)
	Close() error
}

// NoopPublisher discards every event. Used when no message bus is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishStatusChanged(context.Context, StatusChanged) {}
func (NoopPublisher) Close() error                                       { return nil }
