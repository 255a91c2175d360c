// Package alert sends free-text operator notifications (bundle sent,
// simulation errors) to an external sink, grounded on
// original_source/src/common/alert.rs's Alert::send and the teacher's
// pkg/metrics/alert_manager.go webhook-dispatch shape (EnableWebhooks/
// WebhookURL), gated the same way the original gates on USE_ALERT.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Sink delivers a free-text operator message.
type Sink interface {
	Send(ctx context.Context, message string) error
}

// NoOp discards every message. Used when USE_ALERT is false, matching
// Alert::new's `bot: None` branch.
type NoOp struct{}

func (NoOp) Send(context.Context, string) error { return nil }

// Webhook posts Telegram Bot API's sendMessage shape ({chat_id, text}),
// matching Alert::send's teloxide bot.send_message call.
type Webhook struct {
	URL    string
	ChatID string
	Client *http.Client
}

// NewWebhook returns a Webhook sink targeting the Telegram Bot API for
// token, addressed to chatID, with a bounded request timeout.
func NewWebhook(token, chatID string) *Webhook {
	return &Webhook{
		URL:    "https://api.telegram.org/bot" + token + "/sendMessage",
		ChatID: chatID,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *Webhook) Send(ctx context.Context, message string) error {
	body, err := json.Marshal(map[string]string{"chat_id": w.ChatID, "text": message})
	if err != nil {
		return fmt.Errorf("marshal alert body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert sink returned status %d", resp.StatusCode)
	}
	return nil
}

// New returns a Webhook sink when useAlert is true and token/chatID are
// non-empty, else a NoOp, matching USE_ALERT's gating in spec.md §6.
func New(useAlert bool, token, chatID string) Sink {
	if !useAlert || token == "" || chatID == "" {
		return NoOp{}
	}
	return NewWebhook(token, chatID)
}

// BundleSent formats the operator notification sent after a bundle is
// dispatched, matching Alert::send_bundle_sent's Eigenphi/Gambit-link
// message shape.
func BundleSent(blockNumber uint64, victimTxHash, bundleHash string) string {
	return fmt.Sprintf(
		"[Block #%d] Bundle sent: %s\n-Eigenphi: https://eigenphi.io/mev/eigentx/%s\n-Gambit bundle hash: %s",
		blockNumber, victimTxHash, victimTxHash, bundleHash,
	)
}
