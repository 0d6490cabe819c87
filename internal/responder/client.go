// Package responder calls the reply-generation gateway and provides the
// deterministic template fallback used when the gateway is unavailable.
package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/deskwing/deskwing/internal/knowledge"
)

// ErrDownstreamTimeout marks a gateway call that timed out or could not
// reach the service. The pipeline retries these and falls back to a
// template reply after exhaustion; it never surfaces them to the customer.
var ErrDownstreamTimeout = errors.New("responder gateway timeout")

// Request carries everything the gateway needs to draft a reply.
type Request struct {
	ConversationID string            `json:"conversation_id"`
	Channel        string            `json:"channel"`
	CustomerName   string            `json:"customer_name,omitempty"`
	Text           string            `json:"text"`
	Matches        []knowledge.Match `json:"knowledge_matches,omitempty"`
}

type gatewayResponse struct {
	Reply string `json:"reply"`
}

// Client posts reply requests to the responder gateway.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds a Client. An empty baseURL disables the gateway: every
// Generate call reports ErrDownstreamTimeout immediately, which keeps the
// template fallback path exercised in gateway-less deployments.
func NewClient(baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With(slog.String("service", "responder")),
	}
}

// Generate asks the gateway for a reply draft. Timeouts and connection
// failures come back wrapped in ErrDownstreamTimeout; the client itself
// never retries.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("responder gateway not configured: %w", ErrDownstreamTimeout)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	url := c.baseURL + "/replies"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("responder gateway unreachable: %w", ErrDownstreamTimeout)
		}
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("gateway error",
			slog.String("url", url),
			slog.Int("status", resp.StatusCode))
		if resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusServiceUnavailable {
			return "", fmt.Errorf("responder gateway status %d: %w", resp.StatusCode, ErrDownstreamTimeout)
		}
		return "", fmt.Errorf("responder gateway error: %s", strings.TrimSpace(string(respBody)))
	}

	var parsed gatewayResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse gateway response: %w", err)
	}
	if strings.TrimSpace(parsed.Reply) == "" {
		return "", fmt.Errorf("responder gateway returned empty reply")
	}
	return parsed.Reply, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// TemplateReply assembles a deterministic answer from knowledge matches.
// With no matches it returns the "let me find out" holding response. The
// output has no channel formatting applied.
func TemplateReply(matches []knowledge.Match) string {
	if len(matches) == 0 {
		return "Thanks for reaching out. I don't have an immediate answer to that, " +
			"so let me find out for you. We've logged your question and will follow up shortly."
	}

	var b strings.Builder
	b.WriteString("Thanks for reaching out. Here is what I found:\n")
	for _, m := range matches {
		fmt.Fprintf(&b, "\n%s\n%s\n", m.Entry.Title, m.Entry.Content)
	}
	b.WriteString("\nIf this doesn't answer your question, just reply and we'll dig deeper.")
	return b.String()
}
