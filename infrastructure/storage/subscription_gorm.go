package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zapdesk/zapdesk/domains/integration"
)

type subscriptionModel struct {
	ID        string    `gorm:"primaryKey;column:id"`
	URL       string    `gorm:"column:url;not null"`
	Secret    string    `gorm:"column:secret"`
	Events    string    `gorm:"column:events;type:text"` // JSON array
	Active    bool      `gorm:"column:active;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (subscriptionModel) TableName() string { return "webhook_subscriptions" }

type SubscriptionGormRepository struct {
	db *gorm.DB
}

func NewSubscriptionGormRepository(db *gorm.DB) *SubscriptionGormRepository {
	return &SubscriptionGormRepository{db: db}
}

func (r *SubscriptionGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&subscriptionModel{})
}

func (r *SubscriptionGormRepository) Create(ctx context.Context, s *integration.Subscription) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	events, _ := json.Marshal(s.Events)
	m := subscriptionModel{
		ID:        s.ID.String(),
		URL:       s.URL,
		Secret:    s.Secret,
		Events:    string(events),
		Active:    s.Active,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *SubscriptionGormRepository) List(ctx context.Context) ([]integration.Subscription, error) {
	var models []subscriptionModel
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]integration.Subscription, len(models))
	for i, m := range models {
		res[i] = fromSubscriptionModel(m)
	}
	return res, nil
}

// ListForEvent filters in memory; subscription counts are small and the
// event list is stored as JSON.
func (r *SubscriptionGormRepository) ListForEvent(ctx context.Context, event string) ([]integration.Subscription, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]integration.Subscription, 0, len(all))
	for _, s := range all {
		if s.Matches(event) {
			res = append(res, s)
		}
	}
	return res, nil
}

func (r *SubscriptionGormRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&subscriptionModel{}, "id = ?", id.String()).Error
}

func fromSubscriptionModel(m subscriptionModel) integration.Subscription {
	var events []string
	if m.Events != "" && m.Events != "null" {
		_ = json.Unmarshal([]byte(m.Events), &events)
	}
	return integration.Subscription{
		ID:        parseUUID(m.ID),
		URL:       m.URL,
		Secret:    m.Secret,
		Events:    events,
		Active:    m.Active,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
