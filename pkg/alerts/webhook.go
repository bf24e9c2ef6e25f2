package alerts

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// signatureHeader carries "sha256=<hex HMAC of the body>" when a secret is set.
const signatureHeader = "X-Signature-256"

// WebhookNotifier forwards pushes to the device push gateway. The gateway
// resolves recipient ids to device tokens.
type WebhookNotifier struct {
	url    string
	secret []byte
	client *resty.Client
}

// NewWebhookNotifier creates a gateway notifier. An empty secret sends
// unsigned requests.
func NewWebhookNotifier(url, secret string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		secret: []byte(secret),
		client: newChannelClient("GlucoGuardian/1.0"),
	}
}

func (w *WebhookNotifier) Name() string { return "webhook" }

// gatewayEvent is the envelope the gateway expects.
type gatewayEvent struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Push      Push   `json:"push"`
}

func (w *WebhookNotifier) Send(ctx context.Context, push Push) error {
	// Signed bytes and sent bytes must be identical, so the envelope is
	// marshalled here rather than by resty.
	body, err := json.Marshal(gatewayEvent{
		Event:     "push." + string(push.Category),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Push:      push,
	})
	if err != nil {
		return fmt.Errorf("encode gateway event: %w", err)
	}

	req := w.client.R().
		SetContext(ctx).
		SetBody(body)
	if len(w.secret) > 0 {
		req.SetHeader(signatureHeader, "sha256="+sign(w.secret, body))
	}

	resp, err := req.Post(w.url)
	if err != nil {
		return fmt.Errorf("deliver push to gateway: %w", err)
	}
	if resp.IsError() {
		return rejected("gateway", resp)
	}
	return nil
}

func sign(key, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

var (
	_ Notifier = (*WebhookNotifier)(nil)
	_ Notifier = (*SlackNotifier)(nil)
)
