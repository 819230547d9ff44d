package events

import (
	"context"
	"errors"

	"update-user-service/internal/domain"
)

var (
	// ErrPublish wraps failures while handing an event to the broker.
	ErrPublish = errors.New("publish event")
	// ErrNotReady is returned when the broker connection was never established.
	ErrNotReady = errors.New("event publisher not connected")
	// ErrQueueFull is returned when the dispatch buffer has no room left.
	ErrQueueFull = errors.New("event queue full")
	// ErrClosed is returned after the dispatcher has been shut down.
	ErrClosed = errors.New("event dispatcher closed")
)

// Publisher delivers change events. Callers treat every error as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, eventType domain.EventType, payload any) error
}
