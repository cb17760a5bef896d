package usecase

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	domainChannel "github.com/zapdesk/zapdesk/domains/channel"
	domainConversation "github.com/zapdesk/zapdesk/domains/conversation"
	"github.com/zapdesk/zapdesk/infrastructure/storage"
)

type testEnv struct {
	db               *gorm.DB
	channelRepo      *storage.ChannelGormRepository
	contactRepo      *storage.ContactGormRepository
	conversationRepo *storage.ConversationGormRepository
	messageRepo      *storage.MessageGormRepository
	ticketRepo       *storage.TicketGormRepository
	assignmentRepo   *storage.AssignmentGormRepository
	engagementRepo   *storage.EngagementGormRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	env := &testEnv{
		db:               db,
		channelRepo:      storage.NewChannelGormRepository(db),
		contactRepo:      storage.NewContactGormRepository(db),
		conversationRepo: storage.NewConversationGormRepository(db),
		messageRepo:      storage.NewMessageGormRepository(db),
		ticketRepo:       storage.NewTicketGormRepository(db),
		assignmentRepo:   storage.NewAssignmentGormRepository(db),
		engagementRepo:   storage.NewEngagementGormRepository(db),
	}

	ctx := context.Background()
	for _, init := range []func(context.Context) error{
		env.channelRepo.Init, env.contactRepo.Init, env.conversationRepo.Init,
		env.messageRepo.Init, env.ticketRepo.Init, env.assignmentRepo.Init,
		env.engagementRepo.Init,
	} {
		require.NoError(t, init(ctx))
	}
	return env
}

func (e *testEnv) seedInstance(t *testing.T, defaultSectorID *uuid.UUID) *domainChannel.Instance {
	t.Helper()
	inst := &domainChannel.Instance{
		Name:            "main",
		ExternalID:      "inst-main",
		Status:          domainChannel.InstanceStatusConnected,
		DefaultSectorID: defaultSectorID,
	}
	require.NoError(t, e.channelRepo.CreateInstance(context.Background(), inst))
	return inst
}

func (e *testEnv) seedSector(t *testing.T, ticketsEnabled bool, welcome string) *domainChannel.RoutingSector {
	t.Helper()
	sector := &domainChannel.RoutingSector{
		Name:           "support",
		Active:         true,
		TicketsEnabled: ticketsEnabled,
		WelcomeMessage: welcome,
	}
	require.NoError(t, e.channelRepo.CreateSector(context.Background(), sector))
	return sector
}

func (e *testEnv) seedConversation(t *testing.T, instanceID uuid.UUID, sectorID *uuid.UUID) *domainConversation.Conversation {
	t.Helper()
	conv := &domainConversation.Conversation{
		InstanceID: instanceID,
		ContactID:  uuid.New(),
		Status:     domainConversation.StatusActive,
		SectorID:   sectorID,
	}
	require.NoError(t, e.conversationRepo.Create(context.Background(), conv))
	return conv
}

func (e *testEnv) seedInboundMessage(t *testing.T, conversationID uuid.UUID, providerID, content string, at time.Time) *domainConversation.Message {
	t.Helper()
	msg := &domainConversation.Message{
		ConversationID: conversationID,
		ProviderID:     providerID,
		Content:        content,
		Kind:           domainConversation.KindText,
		Status:         domainConversation.StatusReceived,
		Timestamp:      at,
	}
	created, err := e.messageRepo.Upsert(context.Background(), msg)
	require.NoError(t, err)
	require.True(t, created)
	return msg
}

type stubAnalysisClient struct {
	analyses       []string
	transcriptions []string
}

func (s *stubAnalysisClient) RequestAnalysis(_ context.Context, _ uuid.UUID, kind string) error {
	s.analyses = append(s.analyses, kind)
	return nil
}

func (s *stubAnalysisClient) RequestTranscription(_ context.Context, _ uuid.UUID, mediaKey string) error {
	s.transcriptions = append(s.transcriptions, mediaKey)
	return nil
}
