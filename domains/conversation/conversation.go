package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Conversation status values.
const (
	StatusActive   = "active"
	StatusClosed   = "closed"
	StatusArchived = "archived"
)

// Message kinds.
const (
	KindText     = "text"
	KindImage    = "image"
	KindAudio    = "audio"
	KindVideo    = "video"
	KindDocument = "document"
	KindSticker  = "sticker"
	KindContact  = "contact"
	KindReaction = "reaction"
	KindSystem   = "system"
)

// Delivery statuses for agent-originated messages.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
	StatusReceived  = "received"
)

// StatusRank orders delivery statuses so updates can only ever advance.
// Unknown statuses rank zero and never win.
func StatusRank(status string) int {
	switch status {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// Conversation is the single thread between one contact and one channel
// instance.
type Conversation struct {
	ID            uuid.UUID
	InstanceID    uuid.UUID
	ContactID     uuid.UUID
	Status        string
	SectorID      *uuid.UUID
	AgentID       *uuid.UUID
	LastMessageAt *time.Time
	Preview       string
	UnreadCount   int
	Metadata      map[string]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Message is one immutable exchanged message. ProviderID is the external
// system's id and the idempotence key within a conversation.
type Message struct {
	ID              uuid.UUID
	ConversationID  uuid.UUID
	TicketID        *uuid.UUID
	ProviderID      string
	SenderJID       string
	Content         string
	Kind            string
	MediaKey        string
	MimeType        string
	FromAgent       bool
	Status          string
	QuotedProviderID string
	SystemEvent     string // ticket_opened / ticket_closed markers
	EditedAt        *time.Time
	OriginalContent string
	Timestamp       time.Time
	LastActivityAt  *time.Time
	CreatedAt       time.Time
}

// TrackResult reports what FindOrCreate did. ShouldOpenNewTicket is set
// only for system-driven reopens, never for agent-driven manual reopens,
// which go through a different path and keep their ticket.
type TrackResult struct {
	Conversation        *Conversation
	IsNew               bool
	WasReopened         bool
	ShouldOpenNewTicket bool
	SectorID            *uuid.UUID
}

// IUsecase tracks conversation lifecycle per (instance, contact) pair.
type IUsecase interface {
	FindOrCreate(ctx context.Context, instanceID, contactID uuid.UUID) (*TrackResult, error)
}

// IRepository persists conversations.
type IRepository interface {
	FindByInstanceAndContact(ctx context.Context, instanceID, contactID uuid.UUID) (*Conversation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error)
	Create(ctx context.Context, c *Conversation) error
	// Reactivate flips a closed/archived conversation back to active.
	Reactivate(ctx context.Context, id uuid.UUID) error
	// RegisterMessage updates last-message timestamp and preview, bumping
	// the unread counter when incrementUnread is set.
	RegisterMessage(ctx context.Context, id uuid.UUID, at time.Time, preview string, incrementUnread bool) error
	AssignAgent(ctx context.Context, id uuid.UUID, agentID uuid.UUID) error
	// MarkRead zeroes the unread counter, called when an agent opens the
	// conversation.
	MarkRead(ctx context.Context, id uuid.UUID) error
}

// IMessageRepository persists messages.
type IMessageRepository interface {
	// Upsert inserts the message unless one with the same
	// (conversation, provider id) already exists. Reports whether a new
	// row was created; redelivered events must come back created=false.
	Upsert(ctx context.Context, m *Message) (created bool, err error)
	GetByProviderID(ctx context.Context, providerID string) (*Message, error)
	// AdvanceStatus applies a delivery status to an agent-originated
	// message, only ever moving forward (sent -> delivered -> read).
	AdvanceStatus(ctx context.Context, providerID, status string) (updated bool, err error)
	// ApplyEdit overwrites content and stamps the edit markers. The very
	// first edit also records the original content on the row.
	ApplyEdit(ctx context.Context, id uuid.UUID, newContent string, editedAt time.Time, originalContent string) error
	CountInboundSince(ctx context.Context, conversationID uuid.UUID, after *time.Time) (int64, error)
	// LastSystemMarker returns the newest system marker message of the
	// given event type for a conversation, or nil.
	LastSystemMarker(ctx context.Context, conversationID uuid.UUID, systemEvent string) (*Message, error)
	// TouchTicketActivity stamps the activity timestamp on every message
	// belonging to the ticket.
	TouchTicketActivity(ctx context.Context, ticketID uuid.UUID, at time.Time) error
	CountByConversation(ctx context.Context, conversationID uuid.UUID) (int64, error)
}
