package usecase

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainAssignment "github.com/zapdesk/zapdesk/domains/assignment"
)

func TestAssignFixedStrategy(t *testing.T) {
	env := newTestEnv(t)
	inst := env.seedInstance(t, nil)
	svc := NewAssignmentService(env.assignmentRepo, env.channelRepo, env.conversationRepo)
	ctx := context.Background()

	agent := uuid.New()
	require.NoError(t, env.assignmentRepo.CreateRule(ctx, &domainAssignment.Rule{
		InstanceID: inst.ID,
		Strategy:   domainAssignment.StrategyFixed,
		AgentID:    &agent,
		LastIndex:  -1,
		Active:     true,
	}))

	conv := env.seedConversation(t, inst.ID, nil)
	got, err := svc.Assign(ctx, inst.ID, conv.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, agent, *got)

	stored, err := env.conversationRepo.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.AgentID)
	assert.Equal(t, agent, *stored.AgentID)

	history, err := env.assignmentRepo.ListHistory(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "auto:fixed", history[0].Reason)
}

func TestAssignRoundRobinRotatesFairly(t *testing.T) {
	env := newTestEnv(t)
	inst := env.seedInstance(t, nil)
	svc := NewAssignmentService(env.assignmentRepo, env.channelRepo, env.conversationRepo)
	ctx := context.Background()

	agents := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	rule := &domainAssignment.Rule{
		InstanceID: inst.ID,
		Strategy:   domainAssignment.StrategyRoundRobin,
		AgentIDs:   agents,
		LastIndex:  -1,
		Active:     true,
	}
	require.NoError(t, env.assignmentRepo.CreateRule(ctx, rule))

	var got []uuid.UUID
	for i := 0; i < 4; i++ {
		conv := env.seedConversation(t, inst.ID, nil)
		agentID, err := svc.Assign(ctx, inst.ID, conv.ID, nil)
		require.NoError(t, err)
		require.NotNil(t, agentID)
		got = append(got, *agentID)
	}

	// Full rotation, then wrap back to the first agent.
	assert.Equal(t, []uuid.UUID{agents[0], agents[1], agents[2], agents[0]}, got)

	fresh, err := env.assignmentRepo.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, fresh.LastIndex)
}

func TestAssignNoRuleLeavesConversationQueued(t *testing.T) {
	env := newTestEnv(t)
	inst := env.seedInstance(t, nil)
	svc := NewAssignmentService(env.assignmentRepo, env.channelRepo, env.conversationRepo)
	ctx := context.Background()

	conv := env.seedConversation(t, inst.ID, nil)
	got, err := svc.Assign(ctx, inst.ID, conv.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	stored, err := env.conversationRepo.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.AgentID)
}

func TestAssignSectorRuleWinsOverInstanceRule(t *testing.T) {
	env := newTestEnv(t)
	sector := env.seedSector(t, true, "")
	inst := env.seedInstance(t, &sector.ID)
	svc := NewAssignmentService(env.assignmentRepo, env.channelRepo, env.conversationRepo)
	ctx := context.Background()

	instanceAgent := uuid.New()
	sectorAgent := uuid.New()
	require.NoError(t, env.assignmentRepo.CreateRule(ctx, &domainAssignment.Rule{
		InstanceID: inst.ID,
		Strategy:   domainAssignment.StrategyFixed,
		AgentID:    &instanceAgent,
		LastIndex:  -1,
		Active:     true,
	}))
	require.NoError(t, env.assignmentRepo.CreateRule(ctx, &domainAssignment.Rule{
		InstanceID: inst.ID,
		SectorID:   &sector.ID,
		Strategy:   domainAssignment.StrategyFixed,
		AgentID:    &sectorAgent,
		LastIndex:  -1,
		Active:     true,
	}))

	conv := env.seedConversation(t, inst.ID, &sector.ID)
	got, err := svc.Assign(ctx, inst.ID, conv.ID, &sector.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sectorAgent, *got)

	other := env.seedConversation(t, inst.ID, nil)
	got, err = svc.Assign(ctx, inst.ID, other.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, instanceAgent, *got)
}

func TestAssignRoundRobinFiltersBySectorMembership(t *testing.T) {
	env := newTestEnv(t)
	sector := env.seedSector(t, true, "")
	inst := env.seedInstance(t, &sector.ID)
	svc := NewAssignmentService(env.assignmentRepo, env.channelRepo, env.conversationRepo)
	ctx := context.Background()

	inSector := uuid.New()
	outsider := uuid.New()
	require.NoError(t, env.channelRepo.AddSectorAgent(ctx, sector.ID, inSector))
	require.NoError(t, env.assignmentRepo.CreateRule(ctx, &domainAssignment.Rule{
		InstanceID: inst.ID,
		SectorID:   &sector.ID,
		Strategy:   domainAssignment.StrategyRoundRobin,
		AgentIDs:   []uuid.UUID{outsider, inSector},
		LastIndex:  -1,
		Active:     true,
	}))

	for i := 0; i < 2; i++ {
		conv := env.seedConversation(t, inst.ID, &sector.ID)
		got, err := svc.Assign(ctx, inst.ID, conv.ID, &sector.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, inSector, *got)
	}
}
