package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zapdesk/zapdesk/domains/contact"
	pkgError "github.com/zapdesk/zapdesk/pkg/apperror"
)

type contactModel struct {
	ID         string    `gorm:"primaryKey;column:id"`
	InstanceID string    `gorm:"column:instance_id;not null;uniqueIndex:idx_contact_phone;uniqueIndex:idx_contact_lid"`
	Phone      string    `gorm:"column:phone;not null;uniqueIndex:idx_contact_phone"`
	Lid        *string   `gorm:"column:lid;uniqueIndex:idx_contact_lid"`
	Name       string    `gorm:"column:name"`
	IsGroup    bool      `gorm:"column:is_group;default:false"`
	Metadata   string    `gorm:"column:metadata;type:text"` // JSON
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null"`
}

func (contactModel) TableName() string { return "contacts" }

type ContactGormRepository struct {
	db *gorm.DB
}

func NewContactGormRepository(db *gorm.DB) *ContactGormRepository {
	return &ContactGormRepository{db: db}
}

func (r *ContactGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&contactModel{})
}

func (r *ContactGormRepository) FindByPhoneVariants(ctx context.Context, instanceID uuid.UUID, variants []string) (*contact.Contact, error) {
	if len(variants) == 0 {
		return nil, pkgError.NotFoundError("contact not found")
	}
	var models []contactModel
	err := r.db.WithContext(ctx).
		Where("instance_id = ? AND phone IN ?", instanceID.String(), variants).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	// Honor variant preference order, not row order.
	for _, v := range variants {
		for _, m := range models {
			if m.Phone == v {
				c := fromContactModel(m)
				return &c, nil
			}
		}
	}
	return nil, pkgError.NotFoundError("contact not found")
}

func (r *ContactGormRepository) FindByLid(ctx context.Context, instanceID uuid.UUID, lid string) (*contact.Contact, error) {
	var m contactModel
	err := r.db.WithContext(ctx).
		Where("instance_id = ? AND lid = ?", instanceID.String(), lid).
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgError.NotFoundError("contact not found")
		}
		return nil, err
	}
	c := fromContactModel(m)
	return &c, nil
}

func (r *ContactGormRepository) GetByID(ctx context.Context, id uuid.UUID) (*contact.Contact, error) {
	var m contactModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id.String()).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgError.NotFoundError("contact not found")
		}
		return nil, err
	}
	c := fromContactModel(m)
	return &c, nil
}

func (r *ContactGormRepository) Create(ctx context.Context, c *contact.Contact) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	m := toContactModel(*c)
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *ContactGormRepository) UpdatePhone(ctx context.Context, id uuid.UUID, phone string) error {
	return r.db.WithContext(ctx).Model(&contactModel{}).
		Where("id = ?", id.String()).
		Updates(map[string]interface{}{"phone": phone, "updated_at": time.Now()}).Error
}

func (r *ContactGormRepository) UpdateLid(ctx context.Context, id uuid.UUID, lid string) error {
	return r.db.WithContext(ctx).Model(&contactModel{}).
		Where("id = ?", id.String()).
		Updates(map[string]interface{}{"lid": lid, "updated_at": time.Now()}).Error
}

func (r *ContactGormRepository) UpdateName(ctx context.Context, id uuid.UUID, name string) error {
	return r.db.WithContext(ctx).Model(&contactModel{}).
		Where("id = ?", id.String()).
		Updates(map[string]interface{}{"name": name, "updated_at": time.Now()}).Error
}

func toContactModel(c contact.Contact) contactModel {
	metadata, _ := json.Marshal(c.Metadata)
	var lid *string
	if c.Lid != "" {
		l := c.Lid
		lid = &l
	}
	return contactModel{
		ID:         c.ID.String(),
		InstanceID: c.InstanceID.String(),
		Phone:      c.Phone,
		Lid:        lid,
		Name:       c.Name,
		IsGroup:    c.IsGroup,
		Metadata:   string(metadata),
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

func fromContactModel(m contactModel) contact.Contact {
	var metadata map[string]string
	if m.Metadata != "" && m.Metadata != "null" {
		_ = json.Unmarshal([]byte(m.Metadata), &metadata)
	}
	var lid string
	if m.Lid != nil {
		lid = *m.Lid
	}
	return contact.Contact{
		ID:         parseUUID(m.ID),
		InstanceID: parseUUID(m.InstanceID),
		Phone:      m.Phone,
		Lid:        lid,
		Name:       m.Name,
		IsGroup:    m.IsGroup,
		Metadata:   metadata,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}
