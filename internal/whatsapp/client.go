package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/MDastan2005/whatsapp-ai-bot/internal/utils"
)

const (
	metaGraphAPIBaseURL = "https://graph.facebook.com/v21.0"

	defaultMaxAttempts = 3
	defaultBackoffBase = time.Second
)

// APIError is a non-2xx response from the Meta Graph API.
type APIError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp: meta API error (status %d): %s", e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed on retry. Server
// errors and rate limits are transient; other client errors (invalid
// recipient, expired token) are permanent.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Outcome describes a completed send, including how many attempts it
// took. No attempt is silently swallowed: LastError always carries the
// final failure.
type Outcome struct {
	Success   bool
	Attempts  int
	LastError error
}

// Client sends messages through the Meta Graph API with bounded retry.
type Client struct {
	baseURL       string
	token         string
	phoneNumberID string
	httpClient    *http.Client

	maxAttempts int
	backoffBase time.Duration
}

type ClientOption func(*Client)

// WithBaseURL overrides the Graph API endpoint (tests).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithBackoff overrides the retry schedule.
func WithBackoff(maxAttempts int, base time.Duration) ClientOption {
	return func(c *Client) {
		c.maxAttempts = maxAttempts
		c.backoffBase = base
	}
}

// NewClient creates a Graph API client for one phone number.
func NewClient(token, phoneNumberID string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:       metaGraphAPIBaseURL,
		token:         token,
		phoneNumberID: phoneNumberID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// messageRequest represents the Meta API request body
type messageRequest struct {
	MessagingProduct string          `json:"messaging_product"`
	RecipientType    string          `json:"recipient_type,omitempty"`
	To               string          `json:"to,omitempty"`
	Context          *messageContext `json:"context,omitempty"`
	Type             string          `json:"type,omitempty"`
	Text             *textContent    `json:"text,omitempty"`
	Status           string          `json:"status,omitempty"`
	MessageID        string          `json:"message_id,omitempty"`
}

// messageContext for replying to a specific message
type messageContext struct {
	MessageID string `json:"message_id"`
}

// textContent for text messages
type textContent struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

// messageResponse from Meta API
type messageResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// Send delivers a text message to the given wa_id, retrying transient
// failures with exponential backoff (base 1s, factor 2). Permanent 4xx
// errors are reported immediately without retry.
func (c *Client) Send(ctx context.Context, to, body string, replyToMsgID string) Outcome {
	req := &messageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text: &textContent{
			PreviewURL: false,
			Body:       body,
		},
	}
	if replyToMsgID != "" {
		req.Context = &messageContext{MessageID: replyToMsgID}
	}

	var outcome Outcome
	delay := c.backoffBase

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		outcome.Attempts = attempt

		sentID, err := c.postMessage(ctx, req)
		if err == nil {
			outcome.Success = true
			outcome.LastError = nil
			utils.Zlog.Info("WhatsApp message sent",
				zap.String("to", to),
				zap.String("sent_msg_id", sentID),
				zap.Int("attempts", attempt))
			return outcome
		}
		outcome.LastError = err

		var apiErr *APIError
		isAPIErr := errors.As(err, &apiErr)
		if isAPIErr && !apiErr.Retryable() {
			utils.Zlog.Error("WhatsApp send failed permanently",
				zap.String("to", to),
				zap.Int("status", apiErr.StatusCode),
				zap.Int("attempts", attempt))
			return outcome
		}

		if attempt == c.maxAttempts {
			break
		}

		wait := delay
		if isAPIErr && apiErr.RetryAfter > 0 {
			wait = apiErr.RetryAfter
		}
		utils.Zlog.Warn("WhatsApp send failed, retrying",
			zap.String("to", to),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))

		select {
		case <-ctx.Done():
			outcome.LastError = ctx.Err()
			return outcome
		case <-time.After(wait):
		}
		delay *= 2
	}

	utils.Zlog.Error("WhatsApp send exhausted retries",
		zap.String("to", to),
		zap.Int("attempts", outcome.Attempts),
		zap.Error(outcome.LastError))
	return outcome
}

// MarkRead marks an inbound message as read. Best effort: failures are
// logged by the caller and never retried.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	req := &messageRequest{
		MessagingProduct: "whatsapp",
		Status:           "read",
		MessageID:        messageID,
	}
	_, err := c.postMessage(ctx, req)
	return err
}

func (c *Client) postMessage(ctx context.Context, body *messageRequest) (string, error) {
	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("whatsapp: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("whatsapp: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whatsapp: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody bytes.Buffer
		_, _ = errBody.ReadFrom(resp.Body)
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Body:       errBody.String(),
		}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, parseErr := strconv.Atoi(ra); parseErr == nil && secs > 0 {
				apiErr.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		return "", apiErr
	}

	var msgResp messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&msgResp); err != nil {
		return "", fmt.Errorf("whatsapp: decode response: %w", err)
	}

	if len(msgResp.Messages) > 0 {
		return msgResp.Messages[0].ID, nil
	}
	return "", nil
}
