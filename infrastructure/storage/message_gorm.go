package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zapdesk/zapdesk/domains/conversation"
	pkgError "github.com/zapdesk/zapdesk/pkg/apperror"
)

type messageModel struct {
	ID               string     `gorm:"primaryKey;column:id"`
	ConversationID   string     `gorm:"column:conversation_id;not null;index;uniqueIndex:idx_msg_provider"`
	TicketID         *string    `gorm:"column:ticket_id;index"`
	ProviderID       string     `gorm:"column:provider_id;not null;uniqueIndex:idx_msg_provider;index"`
	SenderJID        string     `gorm:"column:sender_jid"`
	Content          string     `gorm:"column:content;type:text"`
	Kind             string     `gorm:"column:kind;default:'text'"`
	MediaKey         string     `gorm:"column:media_key"`
	MimeType         string     `gorm:"column:mime_type"`
	FromAgent        bool       `gorm:"column:from_agent;default:false"`
	Status           string     `gorm:"column:status"`
	QuotedProviderID string     `gorm:"column:quoted_provider_id"`
	SystemEvent      string     `gorm:"column:system_event;index"`
	EditedAt         *time.Time `gorm:"column:edited_at"`
	OriginalContent  string     `gorm:"column:original_content;type:text"`
	Timestamp        time.Time  `gorm:"column:timestamp;not null;index"`
	LastActivityAt   *time.Time `gorm:"column:last_activity_at"`
	CreatedAt        time.Time  `gorm:"column:created_at;not null"`
}

func (messageModel) TableName() string { return "messages" }

type MessageGormRepository struct {
	db *gorm.DB
}

func NewMessageGormRepository(db *gorm.DB) *MessageGormRepository {
	return &MessageGormRepository{db: db}
}

func (r *MessageGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&messageModel{})
}

// Upsert inserts the message unless the (conversation, provider id) pair is
// already stored. Redeliveries resolve to created=false without touching
// the existing row.
func (r *MessageGormRepository) Upsert(ctx context.Context, msg *conversation.Message) (bool, error) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	m := toMessageModel(*msg)
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "provider_id"}},
			DoNothing: true,
		}).
		Create(&m)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *MessageGormRepository) GetByProviderID(ctx context.Context, providerID string) (*conversation.Message, error) {
	var m messageModel
	err := r.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgError.NotFoundError("message not found")
		}
		return nil, err
	}
	msg := fromMessageModel(m)
	return &msg, nil
}

// AdvanceStatus moves an agent-originated message's delivery status forward.
// A late event carrying a lower-ranked status leaves the row untouched.
func (r *MessageGormRepository) AdvanceStatus(ctx context.Context, providerID, status string) (bool, error) {
	newRank := conversation.StatusRank(status)
	if newRank == 0 && status != conversation.StatusFailed {
		return false, nil
	}

	var m messageModel
	err := r.db.WithContext(ctx).
		Where("provider_id = ? AND from_agent = ?", providerID, true).
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, err
	}

	if status != conversation.StatusFailed && conversation.StatusRank(m.Status) >= newRank {
		return false, nil
	}

	res := r.db.WithContext(ctx).Model(&messageModel{}).
		Where("id = ? AND status = ?", m.ID, m.Status).
		Update("status", status)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *MessageGormRepository) ApplyEdit(ctx context.Context, id uuid.UUID, newContent string, editedAt time.Time, originalContent string) error {
	updates := map[string]interface{}{
		"content":   newContent,
		"edited_at": editedAt,
	}
	if originalContent != "" {
		updates["original_content"] = originalContent
	}
	return r.db.WithContext(ctx).Model(&messageModel{}).
		Where("id = ?", id.String()).
		Updates(updates).Error
}

func (r *MessageGormRepository) CountInboundSince(ctx context.Context, conversationID uuid.UUID, after *time.Time) (int64, error) {
	q := r.db.WithContext(ctx).Model(&messageModel{}).
		Where("conversation_id = ? AND from_agent = ? AND system_event = ''",
			conversationID.String(), false)
	if after != nil {
		q = q.Where("timestamp > ?", *after)
	}
	var count int64
	err := q.Count(&count).Error
	return count, err
}

func (r *MessageGormRepository) LastSystemMarker(ctx context.Context, conversationID uuid.UUID, systemEvent string) (*conversation.Message, error) {
	var m messageModel
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND system_event = ?", conversationID.String(), systemEvent).
		Order("timestamp DESC").
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgError.NotFoundError("marker not found")
		}
		return nil, err
	}
	msg := fromMessageModel(m)
	return &msg, nil
}

func (r *MessageGormRepository) TouchTicketActivity(ctx context.Context, ticketID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&messageModel{}).
		Where("ticket_id = ?", ticketID.String()).
		Update("last_activity_at", at).Error
}

func (r *MessageGormRepository) CountByConversation(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&messageModel{}).
		Where("conversation_id = ?", conversationID.String()).
		Count(&count).Error
	return count, err
}

func toMessageModel(msg conversation.Message) messageModel {
	return messageModel{
		ID:               msg.ID.String(),
		ConversationID:   msg.ConversationID.String(),
		TicketID:         uuidPtrString(msg.TicketID),
		ProviderID:       msg.ProviderID,
		SenderJID:        msg.SenderJID,
		Content:          msg.Content,
		Kind:             msg.Kind,
		MediaKey:         msg.MediaKey,
		MimeType:         msg.MimeType,
		FromAgent:        msg.FromAgent,
		Status:           msg.Status,
		QuotedProviderID: msg.QuotedProviderID,
		SystemEvent:      msg.SystemEvent,
		EditedAt:         msg.EditedAt,
		OriginalContent:  msg.OriginalContent,
		Timestamp:        msg.Timestamp,
		LastActivityAt:   msg.LastActivityAt,
		CreatedAt:        msg.CreatedAt,
	}
}

func fromMessageModel(m messageModel) conversation.Message {
	return conversation.Message{
		ID:               parseUUID(m.ID),
		ConversationID:   parseUUID(m.ConversationID),
		TicketID:         stringPtrUUID(m.TicketID),
		ProviderID:       m.ProviderID,
		SenderJID:        m.SenderJID,
		Content:          m.Content,
		Kind:             m.Kind,
		MediaKey:         m.MediaKey,
		MimeType:         m.MimeType,
		FromAgent:        m.FromAgent,
		Status:           m.Status,
		QuotedProviderID: m.QuotedProviderID,
		SystemEvent:      m.SystemEvent,
		EditedAt:         m.EditedAt,
		OriginalContent:  m.OriginalContent,
		Timestamp:        m.Timestamp,
		LastActivityAt:   m.LastActivityAt,
		CreatedAt:        m.CreatedAt,
	}
}
