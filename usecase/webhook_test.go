package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainAssignment "github.com/zapdesk/zapdesk/domains/assignment"
	domainChannel "github.com/zapdesk/zapdesk/domains/channel"
	domainConversation "github.com/zapdesk/zapdesk/domains/conversation"
	domainTicket "github.com/zapdesk/zapdesk/domains/ticket"
	domainWebhook "github.com/zapdesk/zapdesk/domains/webhook"
	infraIntegration "github.com/zapdesk/zapdesk/infrastructure/integration"
	"github.com/zapdesk/zapdesk/pkg/phonenum"
	"github.com/zapdesk/zapdesk/pkg/tasks"
)

func setupWebhookTest(t *testing.T) (*testEnv, domainWebhook.IUsecase, *tasks.Recorder) {
	t.Helper()
	env := newTestEnv(t)
	rec := &tasks.Recorder{}
	client := &stubAnalysisClient{}
	events := NewEventEmitter(infraIntegration.NoopPublisher{}, nil, rec)

	identity := NewIdentityService(env.contactRepo)
	assign := NewAssignmentService(env.assignmentRepo, env.channelRepo, env.conversationRepo)
	convSvc := NewConversationService(env.conversationRepo, env.channelRepo, assign, events)
	ticketSvc := NewTicketService(env.ticketRepo, env.messageRepo, env.conversationRepo, env.channelRepo, events)
	triggers := NewTriggerService(env.engagementRepo, env.messageRepo, env.ticketRepo, client, rec, 5, 24*time.Hour)
	svc := NewWebhookService(env.channelRepo, identity, convSvc, ticketSvc, triggers, env.messageRepo, env.conversationRepo, nil, nil, events)
	return env, svc, rec
}

func textEnvelope(instance, providerID, remoteJID, text string, fromMe bool) domainWebhook.Envelope {
	data := fmt.Sprintf(
		`{"key":{"id":%q,"remoteJid":%q,"fromMe":%t},"pushName":"Alice","messageTimestamp":%d,"message":{"conversation":%q}}`,
		providerID, remoteJID, fromMe, time.Now().Unix(), text,
	)
	return domainWebhook.Envelope{Event: "messages.upsert", Instance: instance, Data: json.RawMessage(data)}
}

func TestProcessMessageBuildsFullPipeline(t *testing.T) {
	env, svc, rec := setupWebhookTest(t)
	ctx := context.Background()
	sector := env.seedSector(t, true, "Welcome!")
	inst := env.seedInstance(t, &sector.ID)

	require.NoError(t, svc.Process(ctx, textEnvelope("main", "MSG1", "554812345678@s.whatsapp.net", "hi there", false)))

	// Contact resolved under the canonical 13-digit phone.
	cont, err := env.contactRepo.FindByPhoneVariants(ctx, inst.ID, phonenum.Variants("5548912345678"))
	require.NoError(t, err)
	assert.Equal(t, "Alice", cont.Name)

	conv, err := env.conversationRepo.FindByInstanceAndContact(ctx, inst.ID, cont.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, conv.UnreadCount)
	assert.Equal(t, "hi there", conv.Preview)

	ticket, err := env.ticketRepo.FindOpenByConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ticket.Sequence)

	msg, err := env.messageRepo.GetByProviderID(ctx, "MSG1")
	require.NoError(t, err)
	require.NotNil(t, msg.TicketID)
	assert.Equal(t, ticket.ID, *msg.TicketID)
	assert.Equal(t, domainConversation.StatusReceived, msg.Status)

	assert.Contains(t, rec.Names(), "broker:conversation.created")
	assert.Contains(t, rec.Names(), "broker:message.received")
	assert.Contains(t, rec.Names(), "broker:ticket.opened")
}

func TestProcessNewConversationAutoAssigns(t *testing.T) {
	env, svc, rec := setupWebhookTest(t)
	ctx := context.Background()
	sector := env.seedSector(t, true, "")
	inst := env.seedInstance(t, &sector.ID)

	agent := uuid.New()
	require.NoError(t, env.assignmentRepo.CreateRule(ctx, &domainAssignment.Rule{
		InstanceID: inst.ID,
		Strategy:   domainAssignment.StrategyFixed,
		AgentID:    &agent,
		LastIndex:  -1,
		Active:     true,
	}))

	require.NoError(t, svc.Process(ctx, textEnvelope("main", "MSG1", "5548912345678@s.whatsapp.net", "hi", false)))

	cont, err := env.contactRepo.FindByPhoneVariants(ctx, inst.ID, []string{"5548912345678"})
	require.NoError(t, err)
	conv, err := env.conversationRepo.FindByInstanceAndContact(ctx, inst.ID, cont.ID)
	require.NoError(t, err)
	require.NotNil(t, conv.AgentID)
	assert.Equal(t, agent, *conv.AgentID)

	assert.Contains(t, rec.Names(), "broker:ticket.assigned")
}

func TestProcessRedeliveryIsIdempotent(t *testing.T) {
	env, svc, _ := setupWebhookTest(t)
	ctx := context.Background()
	sector := env.seedSector(t, true, "")
	inst := env.seedInstance(t, &sector.ID)

	envelope := textEnvelope("main", "MSG1", "5548912345678@s.whatsapp.net", "hello", false)
	require.NoError(t, svc.Process(ctx, envelope))
	require.NoError(t, svc.Process(ctx, envelope))

	cont, err := env.contactRepo.FindByPhoneVariants(ctx, inst.ID, []string{"5548912345678"})
	require.NoError(t, err)
	conv, err := env.conversationRepo.FindByInstanceAndContact(ctx, inst.ID, cont.ID)
	require.NoError(t, err)

	// One message plus the ticket-opened marker, nothing doubled.
	count, err := env.messageRepo.CountByConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, 1, conv.UnreadCount)
}

func TestProcessUnknownInstanceIsAcked(t *testing.T) {
	_, svc, _ := setupWebhookTest(t)
	err := svc.Process(context.Background(), textEnvelope("ghost", "MSG1", "5548912345678@s.whatsapp.net", "hi", false))
	assert.NoError(t, err)
}

func TestProcessStatusNeverRegresses(t *testing.T) {
	env, svc, _ := setupWebhookTest(t)
	ctx := context.Background()
	inst := env.seedInstance(t, nil)
	conv := env.seedConversation(t, inst.ID, nil)

	agentMsg := &domainConversation.Message{
		ConversationID: conv.ID,
		ProviderID:     "OUT1",
		Content:        "how can I help?",
		Kind:           domainConversation.KindText,
		FromAgent:      true,
		Status:         domainConversation.StatusSent,
		Timestamp:      time.Now(),
	}
	created, err := env.messageRepo.Upsert(ctx, agentMsg)
	require.NoError(t, err)
	require.True(t, created)

	statusEnvelope := func(ack int) domainWebhook.Envelope {
		return domainWebhook.Envelope{
			Event:    "messages.update",
			Instance: "main",
			Data:     json.RawMessage(fmt.Sprintf(`{"keyId":"OUT1","ack":%d}`, ack)),
		}
	}

	require.NoError(t, svc.Process(ctx, statusEnvelope(3)))
	stored, err := env.messageRepo.GetByProviderID(ctx, "OUT1")
	require.NoError(t, err)
	assert.Equal(t, domainConversation.StatusRead, stored.Status)

	// A late delivered ack must not undo read.
	require.NoError(t, svc.Process(ctx, statusEnvelope(2)))
	stored, err = env.messageRepo.GetByProviderID(ctx, "OUT1")
	require.NoError(t, err)
	assert.Equal(t, domainConversation.StatusRead, stored.Status)
}

func TestProcessConnectionStateUpdatesInstance(t *testing.T) {
	env, svc, rec := setupWebhookTest(t)
	ctx := context.Background()

	inst := &domainChannel.Instance{
		Name:   "main",
		Status: domainChannel.InstanceStatusDisconnected,
	}
	require.NoError(t, env.channelRepo.CreateInstance(ctx, inst))

	require.NoError(t, svc.Process(ctx, domainWebhook.Envelope{
		Event:    "connection.update",
		Instance: "main",
		Data:     json.RawMessage(`{"state":"open"}`),
	}))

	stored, err := env.channelRepo.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, domainChannel.InstanceStatusConnected, stored.Status)
	require.NotNil(t, stored.LastSeenAt)
	assert.Contains(t, rec.Names(), "broker:instance.status")
}

func TestProcessReactionUpsert(t *testing.T) {
	env, svc, _ := setupWebhookTest(t)
	ctx := context.Background()
	env.seedInstance(t, nil)

	require.NoError(t, svc.Process(ctx, textEnvelope("main", "MSG1", "5548912345678@s.whatsapp.net", "react to me", false)))

	reaction := domainWebhook.Envelope{
		Event:    "messages.upsert",
		Instance: "main",
		Data: json.RawMessage(fmt.Sprintf(
			`{"key":{"id":"R1","remoteJid":"5548912345678@s.whatsapp.net"},"messageTimestamp":%d,"message":{"reactionMessage":{"key":{"id":"MSG1"},"text":"👍"}}}`,
			time.Now().Unix(),
		)),
	}
	require.NoError(t, svc.Process(ctx, reaction))

	reactions, err := env.engagementRepo.ListReactions(ctx, "MSG1")
	require.NoError(t, err)
	require.Len(t, reactions, 1)
	assert.Equal(t, "👍", reactions[0].Emoji)
	assert.Equal(t, "5548912345678@s.whatsapp.net", reactions[0].Reactor)
}

func TestProcessReopenClosedConversationForcesNewTicket(t *testing.T) {
	env, svc, _ := setupWebhookTest(t)
	ctx := context.Background()
	sector := env.seedSector(t, true, "")
	inst := env.seedInstance(t, &sector.ID)

	require.NoError(t, svc.Process(ctx, textEnvelope("main", "MSG1", "5548912345678@s.whatsapp.net", "first contact", false)))

	cont, err := env.contactRepo.FindByPhoneVariants(ctx, inst.ID, []string{"5548912345678"})
	require.NoError(t, err)
	conv, err := env.conversationRepo.FindByInstanceAndContact(ctx, inst.ID, cont.ID)
	require.NoError(t, err)
	first, err := env.ticketRepo.FindOpenByConversation(ctx, conv.ID)
	require.NoError(t, err)

	// Close the episode and the conversation itself.
	require.NoError(t, env.ticketRepo.Close(ctx, first.ID, "agent", time.Now()))
	require.NoError(t, env.db.WithContext(ctx).Exec(
		"UPDATE conversations SET status = ? WHERE id = ?",
		domainConversation.StatusClosed, conv.ID.String(),
	).Error)

	require.NoError(t, svc.Process(ctx, textEnvelope("main", "MSG2", "5548912345678@s.whatsapp.net", "hello again", false)))

	reopened, err := env.conversationRepo.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domainConversation.StatusActive, reopened.Status)

	fresh, err := env.ticketRepo.FindOpenByConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, fresh.ID)
	assert.Equal(t, first.Sequence+1, fresh.Sequence)
	assert.Equal(t, domainTicket.StatusOpen, fresh.Status)
}
