package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainChannel "github.com/zapdesk/zapdesk/domains/channel"
	domainConversation "github.com/zapdesk/zapdesk/domains/conversation"
	domainTicket "github.com/zapdesk/zapdesk/domains/ticket"
	infraIntegration "github.com/zapdesk/zapdesk/infrastructure/integration"
	"github.com/zapdesk/zapdesk/pkg/tasks"
)

func setupTicketTest(t *testing.T, ticketsEnabled bool) (*testEnv, domainTicket.IUsecase, *tasks.Recorder, *domainConversation.Conversation, *domainChannel.RoutingSector) {
	t.Helper()
	env := newTestEnv(t)
	sector := env.seedSector(t, ticketsEnabled, "Hi! An agent will be with you shortly.")
	inst := env.seedInstance(t, &sector.ID)
	conv := env.seedConversation(t, inst.ID, &sector.ID)

	rec := &tasks.Recorder{}
	events := NewEventEmitter(infraIntegration.NoopPublisher{}, nil, rec)
	svc := NewTicketService(env.ticketRepo, env.messageRepo, env.conversationRepo, env.channelRepo, events)
	return env, svc, rec, conv, sector
}

func TestEnsureTicketIsSingletonPerConversation(t *testing.T) {
	_, svc, rec, conv, sector := setupTicketTest(t, true)
	ctx := context.Background()

	first, err := svc.EnsureTicket(ctx, conv.ID, &sector.ID, false)
	require.NoError(t, err)
	require.NotNil(t, first.Ticket)
	assert.True(t, first.Created)
	assert.Equal(t, int64(1), first.Ticket.Sequence)
	assert.Equal(t, sector.WelcomeMessage, first.WelcomeMessage)
	assert.Contains(t, rec.Names(), "broker:ticket.opened")

	second, err := svc.EnsureTicket(ctx, conv.ID, &sector.ID, false)
	require.NoError(t, err)
	require.NotNil(t, second.Ticket)
	assert.False(t, second.Created)
	assert.Equal(t, first.Ticket.ID, second.Ticket.ID)
}

func TestEnsureTicketRespectsSectorToggle(t *testing.T) {
	_, svc, _, conv, sector := setupTicketTest(t, false)
	ctx := context.Background()

	res, err := svc.EnsureTicket(ctx, conv.ID, &sector.ID, false)
	require.NoError(t, err)
	assert.Nil(t, res.Ticket)
	assert.False(t, res.Created)

	// No sector at all behaves the same.
	res, err = svc.EnsureTicket(ctx, conv.ID, nil, false)
	require.NoError(t, err)
	assert.Nil(t, res.Ticket)
}

func TestEnsureTicketClosedEpisodeNeedsReopen(t *testing.T) {
	_, svc, rec, conv, sector := setupTicketTest(t, true)
	ctx := context.Background()

	first, err := svc.EnsureTicket(ctx, conv.ID, &sector.ID, false)
	require.NoError(t, err)
	require.NoError(t, svc.CloseTicket(ctx, first.Ticket.ID, "agent-1"))
	assert.Contains(t, rec.Names(), "broker:ticket.closed")

	// Closed episode: messages on the still-active conversation do not
	// open a new ticket.
	res, err := svc.EnsureTicket(ctx, conv.ID, &sector.ID, false)
	require.NoError(t, err)
	assert.Nil(t, res.Ticket)

	// A reopen forces a new episode with a fresh id and a higher sequence.
	reopened, err := svc.EnsureTicket(ctx, conv.ID, &sector.ID, true)
	require.NoError(t, err)
	require.NotNil(t, reopened.Ticket)
	assert.True(t, reopened.Created)
	assert.NotEqual(t, first.Ticket.ID, reopened.Ticket.ID)
	assert.Equal(t, int64(2), reopened.Ticket.Sequence)
}

func TestTicketMarkersStayOrderedOnReopen(t *testing.T) {
	env, svc, _, conv, sector := setupTicketTest(t, true)
	ctx := context.Background()

	first, err := svc.EnsureTicket(ctx, conv.ID, &sector.ID, false)
	require.NoError(t, err)
	require.NoError(t, svc.CloseTicket(ctx, first.Ticket.ID, "agent-1"))

	_, err = svc.EnsureTicket(ctx, conv.ID, &sector.ID, true)
	require.NoError(t, err)

	closed, err := env.messageRepo.LastSystemMarker(ctx, conv.ID, markerTicketClosed)
	require.NoError(t, err)
	opened, err := env.messageRepo.LastSystemMarker(ctx, conv.ID, markerTicketOpened)
	require.NoError(t, err)

	// Even when both land in the same instant the opened marker sorts
	// after the closed one.
	assert.True(t, opened.Timestamp.After(closed.Timestamp))
}

func TestRecordFirstResponseHappensOnce(t *testing.T) {
	env, svc, _, conv, sector := setupTicketTest(t, true)
	ctx := context.Background()

	res, err := svc.EnsureTicket(ctx, conv.ID, &sector.ID, false)
	require.NoError(t, err)

	changed, err := svc.RecordFirstResponse(ctx, res.Ticket.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = svc.RecordFirstResponse(ctx, res.Ticket.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	stored, err := env.ticketRepo.GetByID(ctx, res.Ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domainTicket.StatusInProgress, stored.Status)
	require.NotNil(t, stored.FirstResponseAt)
}

func TestCloseTicketStampsClosure(t *testing.T) {
	env, svc, _, conv, sector := setupTicketTest(t, true)
	ctx := context.Background()

	res, err := svc.EnsureTicket(ctx, conv.ID, &sector.ID, false)
	require.NoError(t, err)
	require.NoError(t, svc.CloseTicket(ctx, res.Ticket.ID, "agent-7"))

	stored, err := env.ticketRepo.GetByID(ctx, res.Ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domainTicket.StatusClosed, stored.Status)
	assert.Equal(t, "agent-7", stored.ClosedBy)
	require.NotNil(t, stored.ClosedAt)
}
