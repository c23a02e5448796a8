package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnexpectedStatus is returned when a webhook answers anything but 200.
var ErrUnexpectedStatus = errors.New("notify: unexpected webhook status")

// WebhookSender posts JSON payloads to third-party endpoints such as a
// WhatsApp gateway.
type WebhookSender struct {
	client  *http.Client
	timeout time.Duration
}

// NewWebhookSender creates a sender bounded by timeout per request.
// client may be nil.
func NewWebhookSender(client *http.Client, timeout time.Duration) *WebhookSender {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &WebhookSender{client: client, timeout: timeout}
}

// Post sends payload as JSON to url. Only HTTP 200 counts as delivered.
func (w *WebhookSender) Post(ctx context.Context, url string, payload any, headers map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}
