package integration

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapdesk/zapdesk/core/config"
	"github.com/zapdesk/zapdesk/domains/integration"
)

func testEvent() integration.Event {
	return integration.Event{
		ID:         uuid.New(),
		Name:       "ticket.opened",
		InstanceID: uuid.New(),
		OccurredAt: time.Now(),
		Payload:    map[string]any{"ticket_id": uuid.New().String()},
	}
}

func TestForwardSignsAndDelivers(t *testing.T) {
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Hub-Signature-256")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	d := NewDispatcher(config.WebhookConfig{
		Secret:      "s3cret",
		DefaultURLs: []string{srv.URL},
		Timeout:     5 * time.Second,
	}, nil)

	require.NoError(t, d.Forward(context.Background(), testEvent()))

	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(gotBody)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), gotSig)
}

func TestForwardFailsOnlyWhenAllTargetsFail(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer good.Close()

	d := NewDispatcher(config.WebhookConfig{
		DefaultURLs: []string{bad.URL},
		Timeout:     5 * time.Second,
	}, nil)
	assert.Error(t, d.Forward(context.Background(), testEvent()))

	d = NewDispatcher(config.WebhookConfig{
		DefaultURLs: []string{bad.URL, good.URL},
		Timeout:     5 * time.Second,
	}, nil)
	assert.NoError(t, d.Forward(context.Background(), testEvent()))
}

func TestForwardWithoutTargetsIsNoop(t *testing.T) {
	d := NewDispatcher(config.WebhookConfig{Timeout: time.Second}, nil)
	assert.NoError(t, d.Forward(context.Background(), testEvent()))
}
