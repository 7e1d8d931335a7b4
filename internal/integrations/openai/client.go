package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"ambubot/internal/domain"
)

const (
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 30 * time.Second
)

// chatCompleter is the part of the go-openai client used here.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

// HTTPStatusError reports a non-2xx answer from the completions API.
type HTTPStatusError struct {
	StatusCode int
	Message    string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client generates text through OpenAI-compatible chat completions.
// Retrieval options on a prompt are ignored: the backend has no document
// session to ground answers in.
type Client struct {
	api   chatCompleter
	model string
}

type settings struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*settings)

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(u string) Option {
	return func(s *settings) {
		s.baseURL = strings.TrimRight(strings.TrimSpace(u), "/")
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(s *settings) {
		s.httpClient = httpClient
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.httpClient = &http.Client{Timeout: d}
		}
	}
}

// NewClient builds a Client. model overrides whatever model a prompt names,
// since proxy model aliases do not exist upstream; empty means gpt-4o-mini.
func NewClient(apiKey, model string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai: API key must not be empty")
	}
	s := settings{httpClient: &http.Client{Timeout: defaultTimeout}}
	for _, opt := range opts {
		opt(&s)
	}

	cfg := goopenai.DefaultConfig(apiKey)
	if s.baseURL != "" {
		cfg.BaseURL = s.baseURL
	}
	if s.httpClient != nil {
		cfg.HTTPClient = s.httpClient
	}

	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}
	return &Client{api: goopenai.NewClientWithConfig(cfg), model: model}, nil
}

// Generate sends the prompt as a system + user message pair.
func (c *Client) Generate(ctx context.Context, p domain.Prompt) (string, error) {
	if strings.TrimSpace(p.Query) == "" {
		return "", errors.New("openai: query must not be empty")
	}

	msgs := make([]goopenai.ChatCompletionMessage, 0, 2)
	if p.System != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: p.System})
	}
	msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: p.Query})

	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: temperature(p.Temperature),
		User:        p.SessionID,
	})
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", statusError(err))
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("openai: empty response")
	}
	return text, nil
}

// temperature keeps a zero temperature on the wire. go-openai drops a zero
// value through omitempty, and the API then samples at its default of 1.
func temperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

// statusError lifts go-openai's error types into HTTPStatusError so callers
// can branch on the upstream status without importing go-openai.
func statusError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &HTTPStatusError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		msg := ""
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &HTTPStatusError{StatusCode: reqErr.HTTPStatusCode, Message: msg}
	}
	return err
}
