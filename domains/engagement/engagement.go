// Package engagement holds the satellite records hanging off messages and
// tickets: reactions, edit history, satisfaction feedback, and AI analysis
// run markers.
package engagement

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Analysis kinds tracked by the downstream trigger coordinator.
const (
	AnalysisSentiment      = "sentiment"
	AnalysisCategorization = "categorization"
)

// Reaction is the current reaction of one reactor on one message.
// Last write wins; an empty emoji removes the reaction.
type Reaction struct {
	ID                uuid.UUID
	ConversationID    uuid.UUID
	TargetProviderID  string
	Reactor           string
	Emoji             string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// EditHistory is one append-only record of a message's content before an
// edit overwrote it. IsOriginal marks the very first content, which is
// preserved indefinitely.
type EditHistory struct {
	ID              uuid.UUID
	MessageID       uuid.UUID
	PreviousContent string
	IsOriginal      bool
	EditedAt        time.Time
}

// Feedback is one satisfaction rating (1-5) tied to a closed ticket.
type Feedback struct {
	ID             uuid.UUID
	TicketID       uuid.UUID
	ConversationID uuid.UUID
	Rating         int
	CreatedAt      time.Time
}

// AnalysisResult marks one completed AI analysis run for a conversation.
// The result payload itself is written by the external service through the
// CRM API; this core only needs the timestamps for thresholding.
type AnalysisResult struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Kind           string
	Result         string
	CreatedAt      time.Time
}

// IUsecase coordinates the downstream triggers evaluated after each
// persisted message: analysis thresholds, transcription, reactions, edit
// history, and feedback capture.
type IUsecase interface {
	// MaybeTriggerAnalysis submits sentiment and categorization runs when
	// enough inbound messages accumulated since the previous run.
	MaybeTriggerAnalysis(ctx context.Context, conversationID uuid.UUID) error
	// MaybeTriggerTranscription submits a transcription for audio
	// messages carrying a media reference.
	MaybeTriggerTranscription(ctx context.Context, messageID uuid.UUID, kind, mediaKey string) error
	ApplyReaction(ctx context.Context, conversationID uuid.UUID, targetProviderID, reactor, emoji string) error
	ApplyEdit(ctx context.Context, targetProviderID, newContent string, editedAt time.Time) error
	// CaptureFeedback records a satisfaction rating when the trimmed
	// content is a single digit 1-5 and a ticket closed recently enough.
	CaptureFeedback(ctx context.Context, conversationID uuid.UUID, content string, at time.Time) (bool, error)
}

// IRepository persists engagement records.
type IRepository interface {
	// UpsertReaction stores the reactor's latest reaction on a message,
	// replacing any previous one (keyed by target provider id + reactor).
	UpsertReaction(ctx context.Context, r *Reaction) error
	RemoveReaction(ctx context.Context, conversationID uuid.UUID, targetProviderID, reactor string) error
	ListReactions(ctx context.Context, targetProviderID string) ([]Reaction, error)

	AppendEditHistory(ctx context.Context, h *EditHistory) error
	HasOriginalEdit(ctx context.Context, messageID uuid.UUID) (bool, error)
	ListEditHistory(ctx context.Context, messageID uuid.UUID) ([]EditHistory, error)

	CreateFeedback(ctx context.Context, f *Feedback) error
	HasFeedback(ctx context.Context, ticketID uuid.UUID) (bool, error)

	LastAnalysisAt(ctx context.Context, conversationID uuid.UUID, kind string) (*time.Time, error)
	RecordAnalysis(ctx context.Context, r *AnalysisResult) error
}
