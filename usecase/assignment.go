package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	domainAssignment "github.com/zapdesk/zapdesk/domains/assignment"
	domainChannel "github.com/zapdesk/zapdesk/domains/channel"
	domainConversation "github.com/zapdesk/zapdesk/domains/conversation"
	pkgError "github.com/zapdesk/zapdesk/pkg/apperror"
)

// cursorRetries bounds the compare-and-swap loop under concurrent
// new-conversation bursts.
const cursorRetries = 5

type serviceAssignment struct {
	assignmentRepo   domainAssignment.IRepository
	channelRepo      domainChannel.IRepository
	conversationRepo domainConversation.IRepository
}

func NewAssignmentService(
	assignmentRepo domainAssignment.IRepository,
	channelRepo domainChannel.IRepository,
	conversationRepo domainConversation.IRepository,
) domainAssignment.IUsecase {
	return &serviceAssignment{
		assignmentRepo:   assignmentRepo,
		channelRepo:      channelRepo,
		conversationRepo: conversationRepo,
	}
}

// Assign picks an agent for a fresh conversation. Sector-scoped rules win
// over instance-wide ones; with no rule at all the conversation stays
// queued and nil is returned.
func (service *serviceAssignment) Assign(ctx context.Context, instanceID, conversationID uuid.UUID, sectorID *uuid.UUID) (*uuid.UUID, error) {
	rule, err := service.findRule(ctx, instanceID, sectorID)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		logrus.Debugf("[ASSIGN] No rule for conversation %s; leaving queued", conversationID)
		return nil, nil
	}

	var agentID *uuid.UUID
	switch rule.Strategy {
	case domainAssignment.StrategyFixed:
		agentID = rule.AgentID
	case domainAssignment.StrategyRoundRobin:
		agentID, err = service.roundRobin(ctx, rule, sectorID)
		if err != nil {
			return nil, err
		}
	default:
		return nil, pkgError.InternalError("unknown assignment strategy: " + rule.Strategy)
	}

	if agentID == nil {
		return nil, nil
	}

	if err := service.conversationRepo.AssignAgent(ctx, conversationID, *agentID); err != nil {
		return nil, err
	}
	if err := service.assignmentRepo.RecordHistory(ctx, &domainAssignment.History{
		ConversationID: conversationID,
		ToAgentID:      *agentID,
		Reason:         "auto:" + rule.Strategy,
	}); err != nil {
		logrus.Warnf("[ASSIGN] Failed recording history for %s: %v", conversationID, err)
	}

	logrus.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"agent_id":        agentID,
		"strategy":        rule.Strategy,
	}).Info("[ASSIGN] Conversation assigned")
	return agentID, nil
}

func (service *serviceAssignment) findRule(ctx context.Context, instanceID uuid.UUID, sectorID *uuid.UUID) (*domainAssignment.Rule, error) {
	if sectorID != nil {
		rule, err := service.assignmentRepo.FindSectorRule(ctx, instanceID, *sectorID)
		if err == nil {
			return rule, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}
	rule, err := service.assignmentRepo.FindInstanceRule(ctx, instanceID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return rule, nil
}

// roundRobin advances the persisted cursor with a compare-and-swap so two
// concurrent conversations never land on the same rotation slot. On a CAS
// miss the rule is re-read and the step retried.
func (service *serviceAssignment) roundRobin(ctx context.Context, rule *domainAssignment.Rule, sectorID *uuid.UUID) (*uuid.UUID, error) {
	agents := service.filterBySector(ctx, rule.AgentIDs, sectorID)
	if len(agents) == 0 {
		return nil, nil
	}

	for attempt := 0; attempt < cursorRetries; attempt++ {
		next := (rule.LastIndex + 1) % len(agents)
		ok, err := service.assignmentRepo.AdvanceCursor(ctx, rule.ID, rule.LastIndex, next)
		if err != nil {
			return nil, err
		}
		if ok {
			agent := agents[next]
			return &agent, nil
		}

		fresh, err := service.assignmentRepo.GetRule(ctx, rule.ID)
		if err != nil {
			return nil, err
		}
		rule = fresh
	}
	return nil, pkgError.InternalError("round-robin cursor contention exceeded retry budget")
}

// filterBySector keeps only agents belonging to the sector, unless the
// intersection would be empty, in which case the full list stays in play.
func (service *serviceAssignment) filterBySector(ctx context.Context, agents []uuid.UUID, sectorID *uuid.UUID) []uuid.UUID {
	if sectorID == nil || len(agents) == 0 {
		return agents
	}
	members, err := service.channelRepo.ListSectorAgents(ctx, *sectorID)
	if err != nil {
		logrus.Warnf("[ASSIGN] Failed listing sector agents for %s: %v", sectorID, err)
		return agents
	}
	memberSet := make(map[uuid.UUID]bool, len(members))
	for _, m := range members {
		memberSet[m] = true
	}
	filtered := make([]uuid.UUID, 0, len(agents))
	for _, a := range agents {
		if memberSet[a] {
			filtered = append(filtered, a)
		}
	}
	if len(filtered) == 0 {
		return agents
	}
	return filtered
}
