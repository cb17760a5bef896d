// Package integration defines the outbound seams: event publishing, webhook
// fan-out, and the external AI analysis service.
package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event names published to the broker and forwarded to subscribers.
const (
	EventConversationCreated = "conversation.created"
	EventMessageReceived     = "message.received"
	EventMessageEdited       = "message.edited"
	EventReactionUpdated     = "reaction.updated"
	EventTicketOpened        = "ticket.opened"
	EventTicketClosed        = "ticket.closed"
	EventTicketAssigned      = "ticket.assigned"
	EventFeedbackReceived    = "feedback.received"
	EventInstanceStatus      = "instance.status"
)

// Event is one integration event fanned out to the broker and to webhook
// subscribers.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	Name       string         `json:"event"`
	InstanceID uuid.UUID      `json:"instance_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload"`
}

// IEventPublisher pushes events to the message broker. Implementations must
// tolerate broker outages without failing the caller.
type IEventPublisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// IAnalysisClient talks to the external AI service. All calls are best
// effort and invoked off the webhook hot path.
type IAnalysisClient interface {
	RequestAnalysis(ctx context.Context, conversationID uuid.UUID, kind string) error
	RequestTranscription(ctx context.Context, messageID uuid.UUID, mediaKey string) error
}

// IDispatcher forwards events to registered webhook subscriber URLs.
type IDispatcher interface {
	Forward(ctx context.Context, event Event) error
}

// Subscription is one registered webhook receiver. Events lists the event
// names it wants; empty means all.
type Subscription struct {
	ID        uuid.UUID
	URL       string
	Secret    string
	Events    []string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Matches reports whether the subscription wants the named event.
func (s Subscription) Matches(event string) bool {
	if !s.Active {
		return false
	}
	if len(s.Events) == 0 {
		return true
	}
	for _, e := range s.Events {
		if e == event {
			return true
		}
	}
	return false
}

// CreateSubscriptionRequest is the admin payload for registering a webhook
// receiver.
type CreateSubscriptionRequest struct {
	URL    string   `json:"url"`
	Secret string   `json:"secret,omitempty"`
	Events []string `json:"events,omitempty"`
}

// ISubscriptionRepository persists webhook subscriptions.
type ISubscriptionRepository interface {
	Create(ctx context.Context, s *Subscription) error
	List(ctx context.Context) ([]Subscription, error)
	ListForEvent(ctx context.Context, event string) ([]Subscription, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
