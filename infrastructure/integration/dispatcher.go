// Package integration holds the outbound adapters: webhook fan-out, the
// AMQP event publisher, and the AI analysis client.
package integration

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/zapdesk/zapdesk/core/config"
	"github.com/zapdesk/zapdesk/domains/integration"
	pkgError "github.com/zapdesk/zapdesk/pkg/apperror"
)

type target struct {
	url    string
	secret string
}

// Dispatcher forwards integration events to the configured webhook URLs
// plus any matching database subscriptions. It only returns an error when
// every delivery fails; partial failures are logged and suppressed so
// successful targets still receive the event.
type Dispatcher struct {
	cfg    config.WebhookConfig
	subs   integration.ISubscriptionRepository
	client *http.Client
}

func NewDispatcher(cfg config.WebhookConfig, subs integration.ISubscriptionRepository) *Dispatcher {
	transport := http.DefaultTransport
	if cfg.InsecureSkipVerify {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &Dispatcher{
		cfg:  cfg,
		subs: subs,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
}

func (d *Dispatcher) Forward(ctx context.Context, event integration.Event) error {
	targets := make([]target, 0, len(d.cfg.DefaultURLs))
	for _, url := range d.cfg.DefaultURLs {
		targets = append(targets, target{url: url, secret: d.cfg.Secret})
	}
	if d.subs != nil {
		subs, err := d.subs.ListForEvent(ctx, event.Name)
		if err != nil {
			logrus.Warnf("[WEBHOOK] Failed loading subscriptions for %s: %v", event.Name, err)
		}
		for _, s := range subs {
			secret := s.Secret
			if secret == "" {
				secret = d.cfg.Secret
			}
			targets = append(targets, target{url: s.URL, secret: secret})
		}
	}

	total := len(targets)
	if total == 0 {
		logrus.WithFields(logrus.Fields{
			"event":       event.Name,
			"instance_id": event.InstanceID,
		}).Debug("[WEBHOOK] No webhook configured; skipping dispatch")
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"event":       event.Name,
		"instance_id": event.InstanceID,
		"webhooks":    total,
	}).Info("[WEBHOOK] Forwarding event to configured webhook(s)")

	body, err := json.Marshal(event)
	if err != nil {
		return pkgError.InternalError(fmt.Sprintf("marshal event %s: %v", event.Name, err))
	}

	var (
		failed    []string
		successes int
	)
	for _, t := range targets {
		if err := d.submit(ctx, t, body); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", t.url, err))
			logrus.Warnf("[WEBHOOK] Failed forwarding %s to %s: %v", event.Name, t.url, err)
			continue
		}
		successes++
	}

	if len(failed) == total {
		return pkgError.WebhookError(fmt.Sprintf("all webhook URLs failed for %s: %s", event.Name, strings.Join(failed, "; ")))
	}
	if len(failed) > 0 {
		logrus.Warnf("[WEBHOOK] Some webhook URLs failed for %s (succeeded: %d/%d): %s", event.Name, successes, total, strings.Join(failed, "; "))
	}
	return nil
}

func (d *Dispatcher) submit(ctx context.Context, t target, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.secret != "" {
		mac := hmac.New(sha256.New, []byte(t.secret))
		mac.Write(body)
		req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
