// package caddy_bouncer provides Caddy middleware that bans IPs probing for
// well-known exploit paths.
package caddy_bouncer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"go.uber.org/zap"
)

// Notifier posts ban events to Slack and Discord incoming webhooks. Delivery
// runs off the request path and failures are logged, never surfaced to the
// client.
type Notifier struct {
	client         *http.Client
	slackWebhook   string
	discordWebhook string

	// Logger for delivery failures
	logger *zap.Logger
}

// newNotifier creates a Notifier for the configured webhook URLs. Either URL
// may be empty, in which case that target is skipped.
func newNotifier(slackWebhook, discordWebhook string, logger *zap.Logger) *Notifier {
	return &Notifier{
		client:         &http.Client{Timeout: 5 * time.Second},
		slackWebhook:   slackWebhook,
		discordWebhook: discordWebhook,
		logger:         logger,
	}
}

// NotifyBan announces a new ban to every configured webhook. Each delivery
// runs in its own goroutine; the call itself returns immediately.
func (n *Notifier) NotifyBan(ip netip.Addr, path string, expires time.Time) {
	msg := fmt.Sprintf("Banned %s after request for %s (expires %s)",
		ip, path, expires.UTC().Format(time.RFC3339))

	if n.slackWebhook != "" {
		go n.send("slack", n.slackWebhook, map[string]string{"text": msg})
	}
	if n.discordWebhook != "" {
		go n.send("discord", n.discordWebhook, map[string]string{"content": msg})
	}
}

// send posts the JSON payload to the webhook URL and logs any failure.
func (n *Notifier) send(target, webhookURL string, payload map[string]string) {
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Warn("Failed to encode webhook payload",
			zap.String("target", target),
			zap.Error(err))
		return
	}

	resp, err := n.client.Post(webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("Failed to deliver ban notification",
			zap.String("target", target),
			zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		n.logger.Warn("Ban notification rejected by webhook",
			zap.String("target", target),
			zap.Int("status", resp.StatusCode))
	}
}
