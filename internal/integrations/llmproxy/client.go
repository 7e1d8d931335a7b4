package llmproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"ambubot/internal/domain"
)

const defaultTimeout = 30 * time.Second

// generateRequest is the request shape accepted by the proxy's generate call.
type generateRequest struct {
	Model        string   `json:"model"`
	System       string   `json:"system"`
	Query        string   `json:"query"`
	Temperature  float64  `json:"temperature"`
	LastK        int      `json:"lastk"`
	SessionID    string   `json:"session_id"`
	RAGUsage     bool     `json:"rag_usage"`
	RAGThreshold *float64 `json:"rag_threshold,omitempty"`
	RAGK         *int     `json:"rag_k,omitempty"`
}

// generateResponse covers both proxy generations: newer deployments answer in
// "response", older ones in "result".
type generateResponse struct {
	Response string `json:"response"`
	Result   string `json:"result"`
}

// uploadParams is the JSON "params" part of a document upload.
type uploadParams struct {
	Description string `json:"description,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	Strategy    string `json:"strategy,omitempty"`
}

// KeySource supplies the proxy API key.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// StaticKey is a KeySource for a key known at startup.
type StaticKey string

func (k StaticKey) APIKey(context.Context) (string, error) {
	if strings.TrimSpace(string(k)) == "" {
		return "", errors.New("llmproxy: API key is empty")
	}
	return string(k), nil
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("llmproxy: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client talks to the LLM proxy: text generation with optional retrieval
// and document upload into a retrieval session.
type Client struct {
	endpoint   string
	httpClient *http.Client
	keys       KeySource
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// NewClient creates a Client posting to endpoint. Generate and upload share
// the same URL; the proxy tells them apart by content type.
func NewClient(endpoint string, keys KeySource, opts ...Option) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("llmproxy: endpoint must not be empty")
	}
	if keys == nil {
		return nil, errors.New("llmproxy: key source must not be nil")
	}
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
		keys:       keys,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

// Generate sends one completion request and returns the model's text.
func (c *Client) Generate(ctx context.Context, p domain.Prompt) (string, error) {
	if strings.TrimSpace(p.Model) == "" {
		return "", errors.New("llmproxy: model must not be empty")
	}

	apiKey, err := c.keys.APIKey(ctx)
	if err != nil {
		return "", err
	}

	wire := generateRequest{
		Model:       p.Model,
		System:      p.System,
		Query:       p.Query,
		Temperature: p.Temperature,
		LastK:       p.LastK,
		SessionID:   p.SessionID,
	}
	if p.RAG != nil {
		threshold, k := p.RAG.Threshold, p.RAG.K
		wire.RAGUsage = true
		wire.RAGThreshold = &threshold
		wire.RAGK = &k
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("llmproxy: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llmproxy: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)

	raw, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("llmproxy: request failed: %w", err)
	}

	var payload generateResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("llmproxy: decode response: %w", err)
	}
	text := payload.Response
	if text == "" {
		text = payload.Result
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("llmproxy: empty response")
	}
	return text, nil
}

// Upload adds a document to a retrieval session. doc.Text, when set, is sent
// as a text part; otherwise doc.Data is sent as a file part.
func (c *Client) Upload(ctx context.Context, doc domain.Document) error {
	if doc.Text == "" && len(doc.Data) == 0 {
		return errors.New("llmproxy: document is empty")
	}

	apiKey, err := c.keys.APIKey(ctx)
	if err != nil {
		return err
	}

	body, contentType, err := uploadBody(doc)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return fmt.Errorf("llmproxy: create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-api-key", apiKey)

	if _, err := c.do(req); err != nil {
		return fmt.Errorf("llmproxy: upload failed: %w", err)
	}
	return nil
}

func uploadBody(doc domain.Document) (*bytes.Buffer, string, error) {
	params, err := json.Marshal(uploadParams{
		Description: doc.Description,
		SessionID:   doc.SessionID,
		Strategy:    doc.Strategy,
	})
	if err != nil {
		return nil, "", fmt.Errorf("llmproxy: marshal upload params: %w", err)
	}

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	if err := writePart(mw, "params", "", "application/json", params); err != nil {
		return nil, "", err
	}
	if doc.Text != "" {
		err = writePart(mw, "text", "", "application/text", []byte(doc.Text))
	} else {
		ct := doc.ContentType
		if ct == "" {
			ct = "application/pdf"
		}
		err = writePart(mw, "file", doc.Filename, ct, doc.Data)
	}
	if err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("llmproxy: close multipart body: %w", err)
	}
	return buf, mw.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writePart(mw *multipart.Writer, name, filename, contentType string, data []byte) error {
	disposition := fmt.Sprintf(`form-data; name="%s"`, quoteEscaper.Replace(name))
	if filename != "" {
		disposition += fmt.Sprintf(`; filename="%s"`, quoteEscaper.Replace(filename))
	}
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", disposition)
	h.Set("Content-Type", contentType)
	w, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("llmproxy: create %s part: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("llmproxy: write %s part: %w", name, err)
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        req.URL.String(),
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
