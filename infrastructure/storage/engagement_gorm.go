package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zapdesk/zapdesk/domains/engagement"
)

type reactionModel struct {
	ID               string    `gorm:"primaryKey;column:id"`
	ConversationID   string    `gorm:"column:conversation_id;not null;index"`
	TargetProviderID string    `gorm:"column:target_provider_id;not null;uniqueIndex:idx_reaction_key"`
	Reactor          string    `gorm:"column:reactor;not null;uniqueIndex:idx_reaction_key"`
	Emoji            string    `gorm:"column:emoji;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;not null"`
	UpdatedAt        time.Time `gorm:"column:updated_at;not null"`
}

func (reactionModel) TableName() string { return "reactions" }

type editHistoryModel struct {
	ID              string    `gorm:"primaryKey;column:id"`
	MessageID       string    `gorm:"column:message_id;not null;index"`
	PreviousContent string    `gorm:"column:previous_content;type:text"`
	IsOriginal      bool      `gorm:"column:is_original;default:false"`
	EditedAt        time.Time `gorm:"column:edited_at;not null"`
}

func (editHistoryModel) TableName() string { return "message_edit_history" }

type feedbackModel struct {
	ID             string    `gorm:"primaryKey;column:id"`
	TicketID       string    `gorm:"column:ticket_id;not null;uniqueIndex"`
	ConversationID string    `gorm:"column:conversation_id;not null;index"`
	Rating         int       `gorm:"column:rating;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
}

func (feedbackModel) TableName() string { return "feedbacks" }

type analysisResultModel struct {
	ID             string    `gorm:"primaryKey;column:id"`
	ConversationID string    `gorm:"column:conversation_id;not null;index:idx_analysis_conv_kind"`
	Kind           string    `gorm:"column:kind;not null;index:idx_analysis_conv_kind"`
	Result         string    `gorm:"column:result;type:text"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
}

func (analysisResultModel) TableName() string { return "analysis_results" }

type EngagementGormRepository struct {
	db *gorm.DB
}

func NewEngagementGormRepository(db *gorm.DB) *EngagementGormRepository {
	return &EngagementGormRepository{db: db}
}

func (r *EngagementGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(
		&reactionModel{},
		&editHistoryModel{},
		&feedbackModel{},
		&analysisResultModel{},
	)
}

// UpsertReaction replaces any previous reaction by the same reactor on the
// same target message. Last write wins.
func (r *EngagementGormRepository) UpsertReaction(ctx context.Context, reaction *engagement.Reaction) error {
	if reaction.ID == uuid.Nil {
		reaction.ID = uuid.New()
	}
	now := time.Now()
	if reaction.CreatedAt.IsZero() {
		reaction.CreatedAt = now
	}
	reaction.UpdatedAt = now
	m := reactionModel{
		ID:               reaction.ID.String(),
		ConversationID:   reaction.ConversationID.String(),
		TargetProviderID: reaction.TargetProviderID,
		Reactor:          reaction.Reactor,
		Emoji:            reaction.Emoji,
		CreatedAt:        reaction.CreatedAt,
		UpdatedAt:        reaction.UpdatedAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "target_provider_id"}, {Name: "reactor"}},
			DoUpdates: clause.AssignmentColumns([]string{"emoji", "updated_at"}),
		}).
		Create(&m).Error
}

func (r *EngagementGormRepository) RemoveReaction(ctx context.Context, conversationID uuid.UUID, targetProviderID, reactor string) error {
	return r.db.WithContext(ctx).
		Where("conversation_id = ? AND target_provider_id = ? AND reactor = ?",
			conversationID.String(), targetProviderID, reactor).
		Delete(&reactionModel{}).Error
}

func (r *EngagementGormRepository) ListReactions(ctx context.Context, targetProviderID string) ([]engagement.Reaction, error) {
	var models []reactionModel
	err := r.db.WithContext(ctx).
		Where("target_provider_id = ?", targetProviderID).
		Order("updated_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]engagement.Reaction, len(models))
	for i, m := range models {
		res[i] = engagement.Reaction{
			ID:               parseUUID(m.ID),
			ConversationID:   parseUUID(m.ConversationID),
			TargetProviderID: m.TargetProviderID,
			Reactor:          m.Reactor,
			Emoji:            m.Emoji,
			CreatedAt:        m.CreatedAt,
			UpdatedAt:        m.UpdatedAt,
		}
	}
	return res, nil
}

func (r *EngagementGormRepository) AppendEditHistory(ctx context.Context, h *engagement.EditHistory) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	m := editHistoryModel{
		ID:              h.ID.String(),
		MessageID:       h.MessageID.String(),
		PreviousContent: h.PreviousContent,
		IsOriginal:      h.IsOriginal,
		EditedAt:        h.EditedAt,
	}
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *EngagementGormRepository) HasOriginalEdit(ctx context.Context, messageID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&editHistoryModel{}).
		Where("message_id = ? AND is_original = ?", messageID.String(), true).
		Count(&count).Error
	return count > 0, err
}

func (r *EngagementGormRepository) ListEditHistory(ctx context.Context, messageID uuid.UUID) ([]engagement.EditHistory, error) {
	var models []editHistoryModel
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID.String()).
		Order("edited_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]engagement.EditHistory, len(models))
	for i, m := range models {
		res[i] = engagement.EditHistory{
			ID:              parseUUID(m.ID),
			MessageID:       parseUUID(m.MessageID),
			PreviousContent: m.PreviousContent,
			IsOriginal:      m.IsOriginal,
			EditedAt:        m.EditedAt,
		}
	}
	return res, nil
}

// CreateFeedback relies on the unique ticket index to reject a second
// rating for the same ticket.
func (r *EngagementGormRepository) CreateFeedback(ctx context.Context, f *engagement.Feedback) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	m := feedbackModel{
		ID:             f.ID.String(),
		TicketID:       f.TicketID.String(),
		ConversationID: f.ConversationID.String(),
		Rating:         f.Rating,
		CreatedAt:      f.CreatedAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ticket_id"}},
			DoNothing: true,
		}).
		Create(&m).Error
}

func (r *EngagementGormRepository) HasFeedback(ctx context.Context, ticketID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&feedbackModel{}).
		Where("ticket_id = ?", ticketID.String()).
		Count(&count).Error
	return count > 0, err
}

func (r *EngagementGormRepository) LastAnalysisAt(ctx context.Context, conversationID uuid.UUID, kind string) (*time.Time, error) {
	var m analysisResultModel
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND kind = ?", conversationID.String(), kind).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	t := m.CreatedAt
	return &t, nil
}

func (r *EngagementGormRepository) RecordAnalysis(ctx context.Context, res *engagement.AnalysisResult) error {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now()
	}
	m := analysisResultModel{
		ID:             res.ID.String(),
		ConversationID: res.ConversationID.String(),
		Kind:           res.Kind,
		Result:         res.Result,
		CreatedAt:      res.CreatedAt,
	}
	return r.db.WithContext(ctx).Create(&m).Error
}
