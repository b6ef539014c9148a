package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ErlanBelekov/homebase/internal/domain"
	"golang.org/x/time/rate"
)

const webhookTimeout = 10 * time.Second

type webhookBody struct {
	ID      string         `json:"id"`
	Title   string         `json:"title,omitempty"`
	Message string         `json:"message,omitempty"`
	Channel domain.Channel `json:"channel"`
	FiredAt time.Time      `json:"firedAt"`
}

// WebhookNotifier POSTs the notification as JSON, mirroring title and message into the query
// string for endpoints that only read query parameters.
type WebhookNotifier struct {
	client  *http.Client
	url     string
	limiter *rate.Limiter
}

func NewWebhookNotifier(rawURL string, ratePerSec float64) *WebhookNotifier {
	return &WebhookNotifier{
		client:  &http.Client{}, // each request sets its own deadline
		url:     rawURL,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 1),
	}
}

func (w *WebhookNotifier) Notify(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for rate limiter: %w", err)
	}

	target, err := url.Parse(w.url)
	if err != nil {
		return fmt.Errorf("parse webhook url: %w", err)
	}
	q := target.Query()
	if msg.Title != "" {
		q.Set("title", msg.Title)
	}
	if msg.Message != "" {
		q.Set("message", msg.Message)
	}
	target.RawQuery = q.Encode()

	body, err := json.Marshal(webhookBody{
		ID:      msg.DefinitionID,
		Title:   msg.Title,
		Message: msg.Message,
		Channel: domain.ChannelWebhook,
		FiredAt: msg.FiredAt,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body) // drain so the connection can be reused by the pool

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}
