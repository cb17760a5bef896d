package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/zapdesk/zapdesk/core/config"
)

// AnalysisClient calls the external AI service for sentiment analysis,
// categorization, and audio transcription. Callers invoke it fire-and-
// forget; results come back through the service's own callback into the
// CRM API, not through this client.
type AnalysisClient struct {
	baseURL string
	client  *http.Client
}

func NewAnalysisClient(cfg config.AnalysisConfig) *AnalysisClient {
	return &AnalysisClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *AnalysisClient) RequestAnalysis(ctx context.Context, conversationID uuid.UUID, kind string) error {
	if c.baseURL == "" {
		logrus.Debugf("[ANALYSIS] No analysis service configured; skipping %s for %s", kind, conversationID)
		return nil
	}
	payload := map[string]string{
		"conversationId": conversationID.String(),
		"kind":           kind,
	}
	return c.post(ctx, "/analyze", payload)
}

func (c *AnalysisClient) RequestTranscription(ctx context.Context, messageID uuid.UUID, mediaKey string) error {
	if c.baseURL == "" {
		logrus.Debugf("[ANALYSIS] No analysis service configured; skipping transcription for %s", messageID)
		return nil
	}
	payload := map[string]string{
		"messageId": messageID.String(),
		"mediaKey":  mediaKey,
	}
	return c.post(ctx, "/transcribe", payload)
}

func (c *AnalysisClient) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("analysis service returned status %d", resp.StatusCode)
	}
	return nil
}
