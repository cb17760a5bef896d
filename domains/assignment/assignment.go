package assignment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Assignment strategies.
const (
	StrategyFixed      = "fixed"
	StrategyRoundRobin = "round_robin"
)

// Rule configures auto-assignment for a channel instance, optionally scoped
// to one routing sector. For round-robin, LastIndex is the persisted
// rotation cursor and the only field the engine itself mutates.
type Rule struct {
	ID         uuid.UUID
	InstanceID uuid.UUID
	SectorID   *uuid.UUID
	Strategy   string
	AgentID    *uuid.UUID  // fixed strategy
	AgentIDs   []uuid.UUID // round-robin strategy, ordered
	LastIndex  int
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// History is one audit record of an assignment decision.
type History struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	FromAgentID    *uuid.UUID
	ToAgentID      uuid.UUID
	Reason         string
	CreatedAt      time.Time
}

// CreateRuleRequest is the admin payload for configuring an assignment
// rule.
type CreateRuleRequest struct {
	InstanceID string   `json:"instance_id"`
	SectorID   string   `json:"sector_id,omitempty"`
	Strategy   string   `json:"strategy"`
	AgentID    string   `json:"agent_id,omitempty"`
	AgentIDs   []string `json:"agent_ids,omitempty"`
}

// IUsecase picks an agent for a conversation according to the configured
// rules. Returns nil when no rule applies and the conversation stays
// queued.
type IUsecase interface {
	Assign(ctx context.Context, instanceID, conversationID uuid.UUID, sectorID *uuid.UUID) (*uuid.UUID, error)
}

// IRepository persists assignment rules and audit history.
type IRepository interface {
	// FindSectorRule returns the active rule scoped to the given sector.
	FindSectorRule(ctx context.Context, instanceID, sectorID uuid.UUID) (*Rule, error)
	// FindInstanceRule returns the active instance-wide rule (no sector).
	FindInstanceRule(ctx context.Context, instanceID uuid.UUID) (*Rule, error)
	GetRule(ctx context.Context, id uuid.UUID) (*Rule, error)
	CreateRule(ctx context.Context, rule *Rule) error
	ListRules(ctx context.Context, instanceID uuid.UUID) ([]Rule, error)
	// AdvanceCursor moves the round-robin cursor from the observed value
	// to the next one in a single conditional update. Returns false when
	// a concurrent assignment already consumed the slot.
	AdvanceCursor(ctx context.Context, ruleID uuid.UUID, from, to int) (bool, error)
	RecordHistory(ctx context.Context, h *History) error
	ListHistory(ctx context.Context, conversationID uuid.UUID) ([]History, error)
}
