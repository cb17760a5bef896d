// Package cache keeps hot conversation state in Valkey so list endpoints
// do not hit the database for every poll. Everything here is best effort:
// the database remains the source of truth and cache failures are logged
// and swallowed.
package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/zapdesk/zapdesk/infrastructure/valkey"
)

const previewTTL = 7 * 24 * time.Hour

// PreviewCache stores the last-message preview and unread count per
// conversation.
type PreviewCache struct {
	client *valkey.Client
}

func NewPreviewCache(client *valkey.Client) *PreviewCache {
	return &PreviewCache{client: client}
}

// SetPreview writes the latest preview text and timestamp behind the
// database write.
func (c *PreviewCache) SetPreview(ctx context.Context, conversationID uuid.UUID, preview string, at time.Time) {
	if c == nil || c.client == nil {
		return
	}
	inner := c.client.Inner()
	key := c.client.Key("preview", conversationID.String())
	err := inner.Do(ctx, inner.B().Hset().Key(key).
		FieldValue().
		FieldValue("text", preview).
		FieldValue("at", strconv.FormatInt(at.UnixMilli(), 10)).
		Build()).Error()
	if err != nil {
		logrus.Debugf("[CACHE] Failed caching preview for %s: %v", conversationID, err)
		return
	}
	if err := inner.Do(ctx, inner.B().Expire().Key(key).Seconds(int64(previewTTL.Seconds())).Build()).Error(); err != nil {
		logrus.Debugf("[CACHE] Failed setting preview TTL for %s: %v", conversationID, err)
	}
}

// GetPreview returns the cached preview text, or empty when absent.
func (c *PreviewCache) GetPreview(ctx context.Context, conversationID uuid.UUID) (string, bool) {
	if c == nil || c.client == nil {
		return "", false
	}
	inner := c.client.Inner()
	key := c.client.Key("preview", conversationID.String())
	text, err := inner.Do(ctx, inner.B().Hget().Key(key).Field("text").Build()).ToString()
	if err != nil {
		if !valkey.IsNil(err) {
			logrus.Debugf("[CACHE] Failed reading preview for %s: %v", conversationID, err)
		}
		return "", false
	}
	return text, true
}

// IncrementUnread bumps the cached unread counter alongside the database
// increment.
func (c *PreviewCache) IncrementUnread(ctx context.Context, conversationID uuid.UUID) {
	if c == nil || c.client == nil {
		return
	}
	inner := c.client.Inner()
	key := c.client.Key("unread", conversationID.String())
	if err := inner.Do(ctx, inner.B().Incr().Key(key).Build()).Error(); err != nil {
		logrus.Debugf("[CACHE] Failed incrementing unread for %s: %v", conversationID, err)
	}
}

// ResetUnread clears the cached unread counter, called when an agent opens
// the conversation.
func (c *PreviewCache) ResetUnread(ctx context.Context, conversationID uuid.UUID) {
	if c == nil || c.client == nil {
		return
	}
	inner := c.client.Inner()
	key := c.client.Key("unread", conversationID.String())
	if err := inner.Do(ctx, inner.B().Del().Key(key).Build()).Error(); err != nil {
		logrus.Debugf("[CACHE] Failed resetting unread for %s: %v", conversationID, err)
	}
}
