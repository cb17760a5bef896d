package channel

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Instance is one connected messaging account/session managed by the
// platform. Inbound events reference it by Name or ExternalID.
type Instance struct {
	ID              uuid.UUID
	Name            string
	ExternalID      string
	Status          string
	DefaultSectorID *uuid.UUID
	LastSeenAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const (
	InstanceStatusConnected    = "connected"
	InstanceStatusDisconnected = "disconnected"
	InstanceStatusConnecting   = "connecting"
)

// RoutingSector is a department/queue used for ticket policy and agent
// affinity.
type RoutingSector struct {
	ID             uuid.UUID
	Name           string
	Active         bool
	TicketsEnabled bool
	WelcomeMessage string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CreateSectorRequest is the admin payload for registering a routing
// sector.
type CreateSectorRequest struct {
	Name           string `json:"name"`
	TicketsEnabled bool   `json:"tickets_enabled"`
	WelcomeMessage string `json:"welcome_message"`
}

// IRepository provides channel-instance and routing-sector lookups.
type IRepository interface {
	// FindInstanceBySource resolves a raw webhook source string against
	// instance name first, then external identifier.
	FindInstanceBySource(ctx context.Context, source string) (*Instance, error)
	GetInstance(ctx context.Context, id uuid.UUID) (*Instance, error)
	UpdateInstanceStatus(ctx context.Context, id uuid.UUID, status string) error
	CreateInstance(ctx context.Context, instance *Instance) error

	GetSector(ctx context.Context, id uuid.UUID) (*RoutingSector, error)
	CreateSector(ctx context.Context, sector *RoutingSector) error
	ListSectors(ctx context.Context) ([]RoutingSector, error)
	// ListSectorAgents returns the agent ids belonging to a sector, used
	// for round-robin affinity filtering.
	ListSectorAgents(ctx context.Context, sectorID uuid.UUID) ([]uuid.UUID, error)
	AddSectorAgent(ctx context.Context, sectorID, agentID uuid.UUID) error
}
