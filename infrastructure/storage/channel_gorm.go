package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zapdesk/zapdesk/domains/channel"
	pkgError "github.com/zapdesk/zapdesk/pkg/apperror"
)

type instanceModel struct {
	ID              string     `gorm:"primaryKey;column:id"`
	Name            string     `gorm:"column:name;not null;uniqueIndex"`
	ExternalID      string     `gorm:"column:external_id;index"`
	Status          string     `gorm:"column:status;default:'disconnected'"`
	DefaultSectorID *string    `gorm:"column:default_sector_id"`
	LastSeenAt      *time.Time `gorm:"column:last_seen_at"`
	CreatedAt       time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;not null"`
}

func (instanceModel) TableName() string { return "instances" }

type sectorModel struct {
	ID             string    `gorm:"primaryKey;column:id"`
	Name           string    `gorm:"column:name;not null"`
	Active         bool      `gorm:"column:active;default:true"`
	TicketsEnabled bool      `gorm:"column:tickets_enabled;default:true"`
	WelcomeMessage string    `gorm:"column:welcome_message"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time `gorm:"column:updated_at;not null"`
}

func (sectorModel) TableName() string { return "sectors" }

type sectorAgentModel struct {
	SectorID  string    `gorm:"primaryKey;column:sector_id"`
	AgentID   string    `gorm:"primaryKey;column:agent_id"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (sectorAgentModel) TableName() string { return "sector_agents" }

type ChannelGormRepository struct {
	db *gorm.DB
}

func NewChannelGormRepository(db *gorm.DB) *ChannelGormRepository {
	return &ChannelGormRepository{db: db}
}

func (r *ChannelGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(
		&instanceModel{},
		&sectorModel{},
		&sectorAgentModel{},
	)
}

func (r *ChannelGormRepository) FindInstanceBySource(ctx context.Context, source string) (*channel.Instance, error) {
	var m instanceModel
	err := r.db.WithContext(ctx).
		Where("name = ? OR external_id = ?", source, source).
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgError.NotFoundError("instance not found")
		}
		return nil, err
	}
	inst := fromInstanceModel(m)
	return &inst, nil
}

func (r *ChannelGormRepository) GetInstance(ctx context.Context, id uuid.UUID) (*channel.Instance, error) {
	var m instanceModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id.String()).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgError.NotFoundError("instance not found")
		}
		return nil, err
	}
	inst := fromInstanceModel(m)
	return &inst, nil
}

func (r *ChannelGormRepository) UpdateInstanceStatus(ctx context.Context, id uuid.UUID, status string) error {
	return r.db.WithContext(ctx).Model(&instanceModel{}).
		Where("id = ?", id.String()).
		Updates(map[string]interface{}{
			"status":       status,
			"last_seen_at": time.Now(),
			"updated_at":   time.Now(),
		}).Error
}

func (r *ChannelGormRepository) CreateInstance(ctx context.Context, inst *channel.Instance) error {
	if inst.ID == uuid.Nil {
		inst.ID = uuid.New()
	}
	now := time.Now()
	inst.CreatedAt = now
	inst.UpdatedAt = now
	m := toInstanceModel(*inst)
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *ChannelGormRepository) GetSector(ctx context.Context, id uuid.UUID) (*channel.RoutingSector, error) {
	var m sectorModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id.String()).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgError.NotFoundError("sector not found")
		}
		return nil, err
	}
	s := fromSectorModel(m)
	return &s, nil
}

func (r *ChannelGormRepository) CreateSector(ctx context.Context, s *channel.RoutingSector) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	m := toSectorModel(*s)
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *ChannelGormRepository) ListSectors(ctx context.Context) ([]channel.RoutingSector, error) {
	var models []sectorModel
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]channel.RoutingSector, len(models))
	for i, m := range models {
		res[i] = fromSectorModel(m)
	}
	return res, nil
}

func (r *ChannelGormRepository) ListSectorAgents(ctx context.Context, sectorID uuid.UUID) ([]uuid.UUID, error) {
	var models []sectorAgentModel
	err := r.db.WithContext(ctx).
		Where("sector_id = ?", sectorID.String()).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]uuid.UUID, len(models))
	for i, m := range models {
		res[i] = parseUUID(m.AgentID)
	}
	return res, nil
}

func (r *ChannelGormRepository) AddSectorAgent(ctx context.Context, sectorID, agentID uuid.UUID) error {
	m := sectorAgentModel{
		SectorID:  sectorID.String(),
		AgentID:   agentID.String(),
		CreatedAt: time.Now(),
	}
	return r.db.WithContext(ctx).Create(&m).Error
}

func toInstanceModel(i channel.Instance) instanceModel {
	return instanceModel{
		ID:              i.ID.String(),
		Name:            i.Name,
		ExternalID:      i.ExternalID,
		Status:          i.Status,
		DefaultSectorID: uuidPtrString(i.DefaultSectorID),
		LastSeenAt:      i.LastSeenAt,
		CreatedAt:       i.CreatedAt,
		UpdatedAt:       i.UpdatedAt,
	}
}

func fromInstanceModel(m instanceModel) channel.Instance {
	return channel.Instance{
		ID:              parseUUID(m.ID),
		Name:            m.Name,
		ExternalID:      m.ExternalID,
		Status:          m.Status,
		DefaultSectorID: stringPtrUUID(m.DefaultSectorID),
		LastSeenAt:      m.LastSeenAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func toSectorModel(s channel.RoutingSector) sectorModel {
	return sectorModel{
		ID:             s.ID.String(),
		Name:           s.Name,
		Active:         s.Active,
		TicketsEnabled: s.TicketsEnabled,
		WelcomeMessage: s.WelcomeMessage,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func fromSectorModel(m sectorModel) channel.RoutingSector {
	return channel.RoutingSector{
		ID:             parseUUID(m.ID),
		Name:           m.Name,
		Active:         m.Active,
		TicketsEnabled: m.TicketsEnabled,
		WelcomeMessage: m.WelcomeMessage,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
