// Package billing posts daily per-channel conversation rollups to the
// billing service.
package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/weni-ai/nexus-conversations/internal/adapter/observability"
	"github.com/weni-ai/nexus-conversations/internal/domain"
)

const maxAttempts = 3

// Client implements domain.BillingClient over HTTP with bearer auth.
type Client struct {
	httpc   *http.Client
	baseURL string
	token   string
}

// New constructs a Client. baseURL carries no trailing slash.
func New(baseURL, token string) *Client {
	return &Client{
		httpc:   &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// NewWithHTTPClient constructs a Client with a custom http.Client, used by
// tests.
func NewWithHTTPClient(httpc *http.Client, baseURL, token string) *Client {
	return &Client{httpc: httpc, baseURL: strings.TrimRight(baseURL, "/"), token: token}
}

// SendConversations posts the rollup for one project as a bare JSON array,
// one element per channel. Transient failures are retried with exponential
// backoff; 4xx responses are not retried.
func (c *Client) SendConversations(ctx domain.Context, projectUUID string, rows []domain.ChannelConversation) error {
	if len(rows) == 0 {
		slog.Info("billing: nothing to send", slog.String("project", projectUUID))
		return nil
	}
	body, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("op=billing.send: marshal: %w", err)
	}
	url := fmt.Sprintf("%s/%s/conversation", c.baseURL, projectUUID)

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxAttempts-1), ctx)
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, err := c.httpc.Do(req)
		if err != nil {
			return fmt.Errorf("post: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(op, policy); err != nil {
		observability.BillingPost("error")
		return fmt.Errorf("op=billing.send: project=%s: %w", projectUUID, err)
	}
	observability.BillingPost("ok")
	slog.Info("billing rollup sent", slog.String("project", projectUUID), slog.Int("channels", len(rows)))
	return nil
}
