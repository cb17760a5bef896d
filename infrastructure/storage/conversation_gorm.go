package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zapdesk/zapdesk/domains/conversation"
	pkgError "github.com/zapdesk/zapdesk/pkg/apperror"
)

type conversationModel struct {
	ID            string     `gorm:"primaryKey;column:id"`
	InstanceID    string     `gorm:"column:instance_id;not null;uniqueIndex:idx_conv_pair"`
	ContactID     string     `gorm:"column:contact_id;not null;uniqueIndex:idx_conv_pair"`
	Status        string     `gorm:"column:status;default:'active';index"`
	SectorID      *string    `gorm:"column:sector_id"`
	AgentID       *string    `gorm:"column:agent_id"`
	LastMessageAt *time.Time `gorm:"column:last_message_at"`
	Preview       string     `gorm:"column:preview"`
	UnreadCount   int        `gorm:"column:unread_count;default:0"`
	Metadata      string     `gorm:"column:metadata;type:text"` // JSON
	CreatedAt     time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;not null"`
}

func (conversationModel) TableName() string { return "conversations" }

type ConversationGormRepository struct {
	db *gorm.DB
}

func NewConversationGormRepository(db *gorm.DB) *ConversationGormRepository {
	return &ConversationGormRepository{db: db}
}

func (r *ConversationGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&conversationModel{})
}

func (r *ConversationGormRepository) FindByInstanceAndContact(ctx context.Context, instanceID, contactID uuid.UUID) (*conversation.Conversation, error) {
	var m conversationModel
	err := r.db.WithContext(ctx).
		Where("instance_id = ? AND contact_id = ?", instanceID.String(), contactID.String()).
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgError.NotFoundError("conversation not found")
		}
		return nil, err
	}
	c := fromConversationModel(m)
	return &c, nil
}

func (r *ConversationGormRepository) GetByID(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error) {
	var m conversationModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id.String()).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgError.NotFoundError("conversation not found")
		}
		return nil, err
	}
	c := fromConversationModel(m)
	return &c, nil
}

func (r *ConversationGormRepository) Create(ctx context.Context, c *conversation.Conversation) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = conversation.StatusActive
	}
	m := toConversationModel(*c)
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *ConversationGormRepository) Reactivate(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&conversationModel{}).
		Where("id = ?", id.String()).
		Updates(map[string]interface{}{
			"status":     conversation.StatusActive,
			"updated_at": time.Now(),
		}).Error
}

func (r *ConversationGormRepository) RegisterMessage(ctx context.Context, id uuid.UUID, at time.Time, preview string, incrementUnread bool) error {
	updates := map[string]interface{}{
		"last_message_at": at,
		"preview":         preview,
		"updated_at":      time.Now(),
	}
	if incrementUnread {
		updates["unread_count"] = gorm.Expr("unread_count + 1")
	}
	return r.db.WithContext(ctx).Model(&conversationModel{}).
		Where("id = ?", id.String()).
		Updates(updates).Error
}

func (r *ConversationGormRepository) MarkRead(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&conversationModel{}).
		Where("id = ?", id.String()).
		Updates(map[string]interface{}{
			"unread_count": 0,
			"updated_at":   time.Now(),
		}).Error
}

func (r *ConversationGormRepository) AssignAgent(ctx context.Context, id uuid.UUID, agentID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&conversationModel{}).
		Where("id = ?", id.String()).
		Updates(map[string]interface{}{
			"agent_id":   agentID.String(),
			"updated_at": time.Now(),
		}).Error
}

func toConversationModel(c conversation.Conversation) conversationModel {
	metadata, _ := json.Marshal(c.Metadata)
	return conversationModel{
		ID:            c.ID.String(),
		InstanceID:    c.InstanceID.String(),
		ContactID:     c.ContactID.String(),
		Status:        c.Status,
		SectorID:      uuidPtrString(c.SectorID),
		AgentID:       uuidPtrString(c.AgentID),
		LastMessageAt: c.LastMessageAt,
		Preview:       c.Preview,
		UnreadCount:   c.UnreadCount,
		Metadata:      string(metadata),
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func fromConversationModel(m conversationModel) conversation.Conversation {
	var metadata map[string]string
	if m.Metadata != "" && m.Metadata != "null" {
		_ = json.Unmarshal([]byte(m.Metadata), &metadata)
	}
	return conversation.Conversation{
		ID:            parseUUID(m.ID),
		InstanceID:    parseUUID(m.InstanceID),
		ContactID:     parseUUID(m.ContactID),
		Status:        m.Status,
		SectorID:      stringPtrUUID(m.SectorID),
		AgentID:       stringPtrUUID(m.AgentID),
		LastMessageAt: m.LastMessageAt,
		Preview:       m.Preview,
		UnreadCount:   m.UnreadCount,
		Metadata:      metadata,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
