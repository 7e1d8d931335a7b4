// Package osm holds small clients for the public OpenStreetMap services used
// to find hospitals near a user: Nominatim for geocoding and Overpass for
// amenity lookup.
package osm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "AmbuBot/1.0"
)

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("osm: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// NewLimiter returns a token bucket allowing perSecond requests with a burst
// of one. Both services ask clients to stay around one request per second.
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

type transport struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type Option func(*transport)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(t *transport) {
		t.httpClient = httpClient
	}
}

func WithTimeout(d time.Duration) Option {
	return func(t *transport) {
		if d > 0 {
			t.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithLimiter shares one limiter between clients.
func WithLimiter(l *rate.Limiter) Option {
	return func(t *transport) {
		if l != nil {
			t.limiter = l
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(t *transport) {
		if ua = strings.TrimSpace(ua); ua != "" {
			t.userAgent = ua
		}
	}
}

func newTransport(baseURL string, opts []Option) (transport, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return transport{}, fmt.Errorf("osm: base URL must not be empty")
	}
	t := transport{
		baseURL:    baseURL,
		userAgent:  defaultUserAgent,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    NewLimiter(1),
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t, nil
}

func (t transport) getJSON(ctx context.Context, rawURL string, out any) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("osm: rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("osm: create request: %w", err)
	}
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept", "application/json")

	res, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("osm: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPStatusError{StatusCode: res.StatusCode, URL: rawURL, Body: string(buf)}
	}

	if err := json.NewDecoder(io.LimitReader(res.Body, 4<<20)).Decode(out); err != nil {
		return fmt.Errorf("osm: decode response: %w", err)
	}
	return nil
}
