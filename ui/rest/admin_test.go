package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	domainConversation "github.com/zapdesk/zapdesk/domains/conversation"
	"github.com/zapdesk/zapdesk/infrastructure/storage"
	"github.com/zapdesk/zapdesk/pkg/utils"
)

func setupAdminTest(t *testing.T) (*fiber.App, *storage.ConversationGormRepository) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	channelRepo := storage.NewChannelGormRepository(db)
	assignmentRepo := storage.NewAssignmentGormRepository(db)
	subscriptionRepo := storage.NewSubscriptionGormRepository(db)
	conversationRepo := storage.NewConversationGormRepository(db)

	ctx := context.Background()
	for _, init := range []func(context.Context) error{
		channelRepo.Init, assignmentRepo.Init, subscriptionRepo.Init, conversationRepo.Init,
	} {
		require.NoError(t, init(ctx))
	}

	app := fiber.New()
	InitRestAdmin(app, channelRepo, assignmentRepo, subscriptionRepo, conversationRepo, nil, nil)
	return app, conversationRepo
}

func seedAdminConversation(t *testing.T, repo *storage.ConversationGormRepository) *domainConversation.Conversation {
	t.Helper()
	conv := &domainConversation.Conversation{
		InstanceID: uuid.New(),
		ContactID:  uuid.New(),
		Status:     domainConversation.StatusActive,
	}
	require.NoError(t, repo.Create(context.Background(), conv))
	require.NoError(t, repo.RegisterMessage(context.Background(), conv.ID, time.Now(), "latest message", true))
	return conv
}

func TestGetConversationReturnsPreviewAndUnread(t *testing.T) {
	app, repo := setupAdminTest(t)
	conv := seedAdminConversation(t, repo)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/admin/conversations/"+conv.ID.String(), nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		utils.ResponseData
		Results domainConversation.Conversation `json:"results"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "latest message", body.Results.Preview)
	assert.Equal(t, 1, body.Results.UnreadCount)
}

func TestMarkConversationReadClearsUnread(t *testing.T) {
	app, repo := setupAdminTest(t)
	conv := seedAdminConversation(t, repo)

	resp, err := app.Test(httptest.NewRequest("POST", "/api/admin/conversations/"+conv.ID.String()+"/read", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	stored, err := repo.GetByID(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.UnreadCount)
}

func TestGetConversationRejectsBadID(t *testing.T) {
	app, _ := setupAdminTest(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/admin/conversations/not-a-uuid", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
