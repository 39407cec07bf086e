package domain

import (
	"context"
	"time"
)

// InvalidationKind names what an invalidation event refers to.
type InvalidationKind string

const (
	// InvalidateUser means a user's profile or owned collections changed upstream.
	InvalidateUser InvalidationKind = "user.updated"
	// InvalidateThread means the comments of a discussion or camera changed upstream.
	InvalidateThread InvalidationKind = "thread.changed"
	// InvalidateAll drops every cached entry.
	InvalidateAll InvalidationKind = "cache.flush"
)

// InvalidationEvent is the payload published on the event bus when the
// authoritative copy of an entity changes.
type InvalidationEvent struct {
	EventID   string           `json:"event_id"`
	EventTime time.Time        `json:"event_time"`
	Kind      InvalidationKind `json:"kind"`
	UserID    string           `json:"user_id,omitempty"`  // set for user.updated
	Thread    *ThreadRef       `json:"thread,omitempty"`   // set for thread.changed
	ActorID   string           `json:"actor_id,omitempty"` // user whose action caused the change, if known
}

// InvalidationHandler applies one invalidation event.
type InvalidationHandler interface {
	HandleInvalidation(ctx context.Context, event InvalidationEvent) error
}

// EventSubscriber delivers invalidation events to a handler until stopped.
type EventSubscriber interface {
	SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error
	Stop() error
}
