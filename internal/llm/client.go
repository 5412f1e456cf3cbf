// Package llm is the client for the external classification/completion
// collaborator. The pipeline consumes it through the Completer interface
// so stages can be tested with doubles and never share global state.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// Completer is the narrow contract every pipeline stage depends on.
type Completer interface {
	// Complete returns the raw text completion for a prompt.
	Complete(ctx context.Context, prompt, system string) (string, error)
	// CompleteJSON returns a completion that must parse as a JSON object.
	CompleteJSON(ctx context.Context, prompt, system string) (json.RawMessage, error)
	// Ping verifies the collaborator is reachable and responding.
	Ping(ctx context.Context) error
}

// ErrMalformedResponse marks a completion that arrived but violates the
// expected schema. Call sites treat it like an unavailable collaborator.
var ErrMalformedResponse = errors.New("malformed completion response")

// RetryableError indicates a transient failure worth retrying.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// Options bound every completion request.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client calls an OpenAI-compatible chat completions API.
type Client struct {
	baseURL    string
	apiKey     string
	opts       Options
	httpClient *http.Client
	stats      *Stats
}

// NewClient creates a collaborator client. stats may be nil.
func NewClient(baseURL, apiKey string, opts Options, stats *Stats) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4000
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		opts:    opts,
		stats:   stats,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete returns the trimmed text completion for a prompt.
func (c *Client) Complete(ctx context.Context, prompt, system string) (string, error) {
	return c.call(ctx, prompt, system, nil)
}

// CompleteJSON requests a JSON-object completion and fails with
// ErrMalformedResponse when the output does not parse, so callers can
// never mistake an error payload for data.
func (c *Client) CompleteJSON(ctx context.Context, prompt, system string) (json.RawMessage, error) {
	text, err := c.call(ctx, prompt, system, &responseFormat{Type: "json_object"})
	if err != nil {
		return nil, err
	}
	text = stripCodeBlock(text)
	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, truncate(text, 200))
	}
	return json.RawMessage(text), nil
}

// Ping issues a trivial completion to test connectivity.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.Complete(ctx, "Test connection. Respond with 'OK'.", "")
	if err != nil {
		return err
	}
	if !strings.Contains(strings.ToUpper(resp), "OK") {
		return fmt.Errorf("%w: unexpected ping reply %q", ErrMalformedResponse, truncate(resp, 50))
	}
	return nil
}

func (c *Client) call(ctx context.Context, prompt, system string, format *responseFormat) (string, error) {
	var messages []chatMessage
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatRequest{
		Model:          c.opts.Model,
		Messages:       messages,
		Temperature:    c.opts.Temperature,
		MaxTokens:      c.opts.MaxTokens,
		ResponseFormat: format,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if c.stats != nil {
		c.stats.Record(time.Since(start).Milliseconds())
	}
	if err != nil {
		return "", &RetryableError{Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", &RetryableError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var apiResp chatResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("completion error: %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrMalformedResponse)
	}
	return strings.TrimSpace(apiResp.Choices[0].Message.Content), nil
}

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Close releases resources.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
