package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zapdesk/zapdesk/domains/ticket"
	pkgError "github.com/zapdesk/zapdesk/pkg/apperror"
)

type ticketModel struct {
	ID              string     `gorm:"primaryKey;column:id"`
	ConversationID  string     `gorm:"column:conversation_id;not null;index"`
	SectorID        *string    `gorm:"column:sector_id"`
	Status          string     `gorm:"column:status;default:'open';index"`
	Sequence        int64      `gorm:"column:sequence;not null;uniqueIndex"`
	Priority        string     `gorm:"column:priority;default:'normal'"`
	Category        string     `gorm:"column:category;default:'general'"`
	CreatedAt       time.Time  `gorm:"column:created_at;not null"`
	FirstResponseAt *time.Time `gorm:"column:first_response_at"`
	ClosedAt        *time.Time `gorm:"column:closed_at"`
	ClosedBy        string     `gorm:"column:closed_by"`
}

func (ticketModel) TableName() string { return "tickets" }

type TicketGormRepository struct {
	db *gorm.DB
}

func NewTicketGormRepository(db *gorm.DB) *TicketGormRepository {
	return &TicketGormRepository{db: db}
}

func (r *TicketGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&ticketModel{})
}

func (r *TicketGormRepository) FindOpenByConversation(ctx context.Context, conversationID uuid.UUID) (*ticket.Ticket, error) {
	var m ticketModel
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND status <> ?", conversationID.String(), ticket.StatusClosed).
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgError.NotFoundError("no open ticket")
		}
		return nil, err
	}
	t := fromTicketModel(m)
	return &t, nil
}

func (r *TicketGormRepository) HasAnyForConversation(ctx context.Context, conversationID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&ticketModel{}).
		Where("conversation_id = ?", conversationID.String()).
		Count(&count).Error
	return count > 0, err
}

// Create claims the next sequence number and inserts the ticket in one
// transaction so concurrent creations never collide on sequence.
func (r *TicketGormRepository) Create(ctx context.Context, t *ticket.Ticket) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.Status == "" {
		t.Status = ticket.StatusOpen
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxSeq int64
		if err := tx.Model(&ticketModel{}).
			Select("COALESCE(MAX(sequence), 0)").
			Scan(&maxSeq).Error; err != nil {
			return err
		}
		t.Sequence = maxSeq + 1
		m := toTicketModel(*t)
		return tx.Create(&m).Error
	})
}

func (r *TicketGormRepository) GetByID(ctx context.Context, id uuid.UUID) (*ticket.Ticket, error) {
	var m ticketModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id.String()).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgError.NotFoundError("ticket not found")
		}
		return nil, err
	}
	t := fromTicketModel(m)
	return &t, nil
}

// SetFirstResponse stamps the first-response time and opens the in-progress
// phase, guarded so only the first call ever changes the row.
func (r *TicketGormRepository) SetFirstResponse(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&ticketModel{}).
		Where("id = ? AND first_response_at IS NULL", id.String()).
		Updates(map[string]interface{}{
			"first_response_at": at,
			"status":            ticket.StatusInProgress,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *TicketGormRepository) Close(ctx context.Context, id uuid.UUID, closedBy string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&ticketModel{}).
		Where("id = ? AND status <> ?", id.String(), ticket.StatusClosed).
		Updates(map[string]interface{}{
			"status":    ticket.StatusClosed,
			"closed_at": at,
			"closed_by": closedBy,
		}).Error
}

func (r *TicketGormRepository) FindClosedSince(ctx context.Context, conversationID uuid.UUID, cutoff time.Time) (*ticket.Ticket, error) {
	var m ticketModel
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND status = ? AND closed_at > ?",
			conversationID.String(), ticket.StatusClosed, cutoff).
		Order("closed_at DESC").
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgError.NotFoundError("no recently closed ticket")
		}
		return nil, err
	}
	t := fromTicketModel(m)
	return &t, nil
}

func toTicketModel(t ticket.Ticket) ticketModel {
	return ticketModel{
		ID:              t.ID.String(),
		ConversationID:  t.ConversationID.String(),
		SectorID:        uuidPtrString(t.SectorID),
		Status:          t.Status,
		Sequence:        t.Sequence,
		Priority:        t.Priority,
		Category:        t.Category,
		CreatedAt:       t.CreatedAt,
		FirstResponseAt: t.FirstResponseAt,
		ClosedAt:        t.ClosedAt,
		ClosedBy:        t.ClosedBy,
	}
}

func fromTicketModel(m ticketModel) ticket.Ticket {
	return ticket.Ticket{
		ID:              parseUUID(m.ID),
		ConversationID:  parseUUID(m.ConversationID),
		SectorID:        stringPtrUUID(m.SectorID),
		Status:          m.Status,
		Sequence:        m.Sequence,
		Priority:        m.Priority,
		Category:        m.Category,
		CreatedAt:       m.CreatedAt,
		FirstResponseAt: m.FirstResponseAt,
		ClosedAt:        m.ClosedAt,
		ClosedBy:        m.ClosedBy,
	}
}
