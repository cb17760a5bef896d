package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainWebhook "github.com/zapdesk/zapdesk/domains/webhook"
)

type stubWebhookService struct {
	err  error
	seen []domainWebhook.Envelope
}

func (s *stubWebhookService) Process(_ context.Context, env domainWebhook.Envelope) error {
	s.seen = append(s.seen, env)
	return s.err
}

func postWebhook(t *testing.T, app *fiber.App, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("POST", "/webhook/evolution", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(raw, &parsed))
	return resp.StatusCode, parsed
}

func TestWebhookReceiveAcksValidEnvelope(t *testing.T) {
	app := fiber.New()
	stub := &stubWebhookService{}
	InitRestWebhook(app, stub)

	status, body := postWebhook(t, app, `{"event":"messages.upsert","instance":"main","data":{}}`)
	assert.Equal(t, 200, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "messages.upsert", body["event"])
	require.Len(t, stub.seen, 1)
	assert.Equal(t, "main", stub.seen[0].Instance)
}

func TestWebhookReceiveAcksMalformedBody(t *testing.T) {
	app := fiber.New()
	stub := &stubWebhookService{}
	InitRestWebhook(app, stub)

	status, body := postWebhook(t, app, `this is not json`)
	assert.Equal(t, 200, status)
	assert.Equal(t, false, body["success"])
	assert.Empty(t, stub.seen)
}

func TestWebhookReceiveAcksProcessingFailure(t *testing.T) {
	app := fiber.New()
	stub := &stubWebhookService{err: errors.New("database down")}
	InitRestWebhook(app, stub)

	status, body := postWebhook(t, app, `{"event":"messages.upsert","instance":"main","data":{}}`)
	assert.Equal(t, 200, status)
	assert.Equal(t, false, body["success"])
	require.Len(t, stub.seen, 1)
}
