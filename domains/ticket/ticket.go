package ticket

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Ticket statuses.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusClosed     = "closed"
)

// Ticket is one service episode bound to a conversation. At most one
// non-closed ticket exists per conversation at any time.
type Ticket struct {
	ID              uuid.UUID
	ConversationID  uuid.UUID
	SectorID        *uuid.UUID
	Status          string
	Sequence        int64
	Priority        string
	Category        string
	CreatedAt       time.Time
	FirstResponseAt *time.Time
	ClosedAt        *time.Time
	ClosedBy        string
}

// EnsureResult reports the outcome of EnsureTicket. Ticket is nil when the
// sector has ticket generation disabled.
type EnsureResult struct {
	Ticket         *Ticket
	WelcomeMessage string
	Created        bool
}

// IUsecase drives the ticket lifecycle.
type IUsecase interface {
	EnsureTicket(ctx context.Context, conversationID uuid.UUID, sectorID *uuid.UUID, forceNew bool) (*EnsureResult, error)
	RecordFirstResponse(ctx context.Context, ticketID uuid.UUID) (bool, error)
	TouchTicket(ctx context.Context, ticketID uuid.UUID) error
	CloseTicket(ctx context.Context, ticketID uuid.UUID, closedBy string) error
}

// IRepository persists tickets.
type IRepository interface {
	FindOpenByConversation(ctx context.Context, conversationID uuid.UUID) (*Ticket, error)
	HasAnyForConversation(ctx context.Context, conversationID uuid.UUID) (bool, error)
	// Create assigns the next per-deployment sequence number inside the
	// same transaction as the insert.
	Create(ctx context.Context, t *Ticket) error
	GetByID(ctx context.Context, id uuid.UUID) (*Ticket, error)
	// SetFirstResponse stamps first_response_at and moves open ->
	// in_progress, but only when first_response_at is still unset.
	// Reports whether the row changed.
	SetFirstResponse(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	Close(ctx context.Context, id uuid.UUID, closedBy string, at time.Time) error
	// FindClosedSince returns the most recently closed ticket for the
	// conversation whose closed_at is after the cutoff, or nil.
	FindClosedSince(ctx context.Context, conversationID uuid.UUID, cutoff time.Time) (*Ticket, error)
}
