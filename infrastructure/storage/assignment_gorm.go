package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zapdesk/zapdesk/domains/assignment"
	pkgError "github.com/zapdesk/zapdesk/pkg/apperror"
)

type assignmentRuleModel struct {
	ID         string    `gorm:"primaryKey;column:id"`
	InstanceID string    `gorm:"column:instance_id;not null;index"`
	SectorID   *string   `gorm:"column:sector_id;index"`
	Strategy   string    `gorm:"column:strategy;not null"`
	AgentID    *string   `gorm:"column:agent_id"`
	AgentIDs   string    `gorm:"column:agent_ids;type:text"` // JSON array
	LastIndex  int       `gorm:"column:last_index;default:-1"`
	Active     bool      `gorm:"column:active;default:true"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null"`
}

func (assignmentRuleModel) TableName() string { return "assignment_rules" }

type assignmentHistoryModel struct {
	ID             string    `gorm:"primaryKey;column:id"`
	ConversationID string    `gorm:"column:conversation_id;not null;index"`
	FromAgentID    *string   `gorm:"column:from_agent_id"`
	ToAgentID      string    `gorm:"column:to_agent_id;not null"`
	Reason         string    `gorm:"column:reason"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
}

func (assignmentHistoryModel) TableName() string { return "assignment_history" }

type AssignmentGormRepository struct {
	db *gorm.DB
}

func NewAssignmentGormRepository(db *gorm.DB) *AssignmentGormRepository {
	return &AssignmentGormRepository{db: db}
}

func (r *AssignmentGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(
		&assignmentRuleModel{},
		&assignmentHistoryModel{},
	)
}

func (r *AssignmentGormRepository) FindSectorRule(ctx context.Context, instanceID, sectorID uuid.UUID) (*assignment.Rule, error) {
	var m assignmentRuleModel
	err := r.db.WithContext(ctx).
		Where("instance_id = ? AND sector_id = ? AND active = ?",
			instanceID.String(), sectorID.String(), true).
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgError.NotFoundError("no sector rule")
		}
		return nil, err
	}
	rule := fromAssignmentRuleModel(m)
	return &rule, nil
}

func (r *AssignmentGormRepository) FindInstanceRule(ctx context.Context, instanceID uuid.UUID) (*assignment.Rule, error) {
	var m assignmentRuleModel
	err := r.db.WithContext(ctx).
		Where("instance_id = ? AND sector_id IS NULL AND active = ?", instanceID.String(), true).
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgError.NotFoundError("no instance rule")
		}
		return nil, err
	}
	rule := fromAssignmentRuleModel(m)
	return &rule, nil
}

func (r *AssignmentGormRepository) GetRule(ctx context.Context, id uuid.UUID) (*assignment.Rule, error) {
	var m assignmentRuleModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id.String()).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgError.NotFoundError("rule not found")
		}
		return nil, err
	}
	rule := fromAssignmentRuleModel(m)
	return &rule, nil
}

func (r *AssignmentGormRepository) CreateRule(ctx context.Context, rule *assignment.Rule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	m := toAssignmentRuleModel(*rule)
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *AssignmentGormRepository) ListRules(ctx context.Context, instanceID uuid.UUID) ([]assignment.Rule, error) {
	var models []assignmentRuleModel
	err := r.db.WithContext(ctx).
		Where("instance_id = ?", instanceID.String()).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]assignment.Rule, len(models))
	for i, m := range models {
		res[i] = fromAssignmentRuleModel(m)
	}
	return res, nil
}

// AdvanceCursor is a compare-and-swap on the rotation cursor. The update
// only lands when the stored index still equals the value the caller read,
// so two concurrent assignments cannot consume the same slot.
func (r *AssignmentGormRepository) AdvanceCursor(ctx context.Context, ruleID uuid.UUID, from, to int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&assignmentRuleModel{}).
		Where("id = ? AND last_index = ?", ruleID.String(), from).
		Updates(map[string]interface{}{
			"last_index": to,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *AssignmentGormRepository) RecordHistory(ctx context.Context, h *assignment.History) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}
	m := assignmentHistoryModel{
		ID:             h.ID.String(),
		ConversationID: h.ConversationID.String(),
		FromAgentID:    uuidPtrString(h.FromAgentID),
		ToAgentID:      h.ToAgentID.String(),
		Reason:         h.Reason,
		CreatedAt:      h.CreatedAt,
	}
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *AssignmentGormRepository) ListHistory(ctx context.Context, conversationID uuid.UUID) ([]assignment.History, error) {
	var models []assignmentHistoryModel
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID.String()).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]assignment.History, len(models))
	for i, m := range models {
		res[i] = assignment.History{
			ID:             parseUUID(m.ID),
			ConversationID: parseUUID(m.ConversationID),
			FromAgentID:    stringPtrUUID(m.FromAgentID),
			ToAgentID:      parseUUID(m.ToAgentID),
			Reason:         m.Reason,
			CreatedAt:      m.CreatedAt,
		}
	}
	return res, nil
}

func toAssignmentRuleModel(rule assignment.Rule) assignmentRuleModel {
	ids := make([]string, len(rule.AgentIDs))
	for i, id := range rule.AgentIDs {
		ids[i] = id.String()
	}
	agentIDs, _ := json.Marshal(ids)
	return assignmentRuleModel{
		ID:         rule.ID.String(),
		InstanceID: rule.InstanceID.String(),
		SectorID:   uuidPtrString(rule.SectorID),
		Strategy:   rule.Strategy,
		AgentID:    uuidPtrString(rule.AgentID),
		AgentIDs:   string(agentIDs),
		LastIndex:  rule.LastIndex,
		Active:     rule.Active,
		CreatedAt:  rule.CreatedAt,
		UpdatedAt:  rule.UpdatedAt,
	}
}

func fromAssignmentRuleModel(m assignmentRuleModel) assignment.Rule {
	var rawIDs []string
	if m.AgentIDs != "" && m.AgentIDs != "null" {
		_ = json.Unmarshal([]byte(m.AgentIDs), &rawIDs)
	}
	ids := make([]uuid.UUID, 0, len(rawIDs))
	for _, raw := range rawIDs {
		if id, err := uuid.Parse(raw); err == nil {
			ids = append(ids, id)
		}
	}
	return assignment.Rule{
		ID:         parseUUID(m.ID),
		InstanceID: parseUUID(m.InstanceID),
		SectorID:   stringPtrUUID(m.SectorID),
		Strategy:   m.Strategy,
		AgentID:    stringPtrUUID(m.AgentID),
		AgentIDs:   ids,
		LastIndex:  m.LastIndex,
		Active:     m.Active,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}
