package contact

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Contact is a unique remote party on one channel instance. Phone holds the
// canonical normalized digits; Lid is the provider's alternate identifier
// when known.
type Contact struct {
	ID         uuid.UUID
	InstanceID uuid.UUID
	Phone      string
	Lid        string
	Name       string
	IsGroup    bool
	Metadata   map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ResolveInput carries everything the identity resolver needs to find or
// create the contact behind a raw sender identifier.
type ResolveInput struct {
	InstanceID    uuid.UUID
	RawIdentifier string
	DisplayName   string
	IsGroup       bool
	IsOutbound    bool
	AlternateID   string
}

// IUsecase resolves raw sender identifiers to durable contacts.
type IUsecase interface {
	Resolve(ctx context.Context, in ResolveInput) (*Contact, error)
}

// IRepository persists contacts. Uniqueness is enforced per
// (instance, phone) and per (instance, lid).
type IRepository interface {
	// FindByPhoneVariants returns the first contact whose stored phone
	// matches any of the given variants, in variant order.
	FindByPhoneVariants(ctx context.Context, instanceID uuid.UUID, variants []string) (*Contact, error)
	FindByLid(ctx context.Context, instanceID uuid.UUID, lid string) (*Contact, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Contact, error)
	Create(ctx context.Context, c *Contact) error
	UpdatePhone(ctx context.Context, id uuid.UUID, phone string) error
	UpdateLid(ctx context.Context, id uuid.UUID, lid string) error
	UpdateName(ctx context.Context, id uuid.UUID, name string) error
}
