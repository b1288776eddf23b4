package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"yaad/internal/logging"
	"yaad/internal/ratelimit"
	"yaad/internal/services"
)

// maxBodyBytes bounds scraped HTML payloads. Catalog JSON never approaches
// this; watch pages occasionally do.
const maxBodyBytes = 4 << 20

// Doer issues outbound requests for one external source.
type Doer struct {
	source  string
	client  *http.Client
	limiter *ratelimit.Limiter
	breaker *gobreaker.CircuitBreaker[*http.Response]
	logger  *slog.Logger
}

// Option configures a Doer.
type Option func(*Doer)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Doer) {
		if client != nil {
			d.client = client
		}
	}
}

// New builds a Doer for the named source. The limiter may be nil in tests.
func New(source string, timeout time.Duration, limiter *ratelimit.Limiter, logger *slog.Logger, opts ...Option) *Doer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	doer := &Doer{
		source:  source,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		logger:  logging.NewComponentLogger(logger, source),
	}
	doer.breaker = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    source,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	for _, opt := range opts {
		opt(doer)
	}
	return doer
}

// Get performs a rate-limited GET and returns the response body. A non-2xx
// status, transport failure, or open breaker yields a classified error.
func (d *Doer) Get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	return d.roundTrip(ctx, http.MethodGet, rawURL, headers, nil)
}

func (d *Doer) roundTrip(ctx context.Context, method, rawURL string, headers map[string]string, payload io.Reader) ([]byte, error) {
	if err := d.limiter.Wait(ctx, d.source); err != nil {
		return nil, services.Wrap(services.ErrTimeout, d.source, "ratelimit", "budget wait interrupted", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, payload)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, d.source, "request", "build request", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "yaad/1.0")
	}

	requestStart := time.Now()
	resp, err := d.breaker.Execute(func() (*http.Response, error) {
		resp, err := d.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			resp.Body.Close()
			return nil, fmt.Errorf("status %d", resp.StatusCode)
		}
		return resp, nil
	})
	latency := time.Since(requestStart)
	if err != nil {
		d.logger.Debug("request failed",
			logging.String("url", rawURL),
			logging.Duration("latency", latency),
			logging.Error(err))
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, services.Wrap(services.ErrUpstream, d.source, "request", "circuit open", err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrTimeout, d.source, "request", "deadline exceeded", err)
		}
		return nil, services.Wrap(services.ErrUpstream, d.source, "request", "execute request", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, services.Wrap(services.ErrNotFound, d.source, "request", "resource missing", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, services.Wrap(services.ErrUpstream, d.source, "request", "rate limited upstream", nil)
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return nil, services.Wrap(services.ErrUpstream, d.source, "request", fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, services.Wrap(services.ErrUpstream, d.source, "request", "read body", err)
	}

	d.logger.Debug("request completed",
		logging.String("url", rawURL),
		logging.Duration("latency", latency),
		logging.Int("bytes", len(body)))
	return body, nil
}

// GetJSON performs Get and decodes the body into out.
func (d *Doer) GetJSON(ctx context.Context, rawURL string, headers map[string]string, out any) error {
	body, err := d.Get(ctx, rawURL, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return services.Wrap(services.ErrUpstream, d.source, "decode", "unmarshal payload", err)
	}
	return nil
}

// PostJSON sends in as a JSON body and decodes the response into out.
func (d *Doer) PostJSON(ctx context.Context, rawURL string, headers map[string]string, in, out any) error {
	encoded, err := json.Marshal(in)
	if err != nil {
		return services.Wrap(services.ErrValidation, d.source, "encode", "marshal payload", err)
	}
	merged := map[string]string{"Content-Type": "application/json"}
	for key, value := range headers {
		merged[key] = value
	}
	body, err := d.roundTrip(ctx, http.MethodPost, rawURL, merged, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return services.Wrap(services.ErrUpstream, d.source, "decode", "unmarshal payload", err)
	}
	return nil
}

// PostForm sends url-encoded form values and decodes the JSON response into
// out. Used by OAuth token endpoints, which reject JSON bodies.
func (d *Doer) PostForm(ctx context.Context, rawURL string, form url.Values, out any) error {
	headers := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	body, err := d.roundTrip(ctx, http.MethodPost, rawURL, headers, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return services.Wrap(services.ErrUpstream, d.source, "decode", "unmarshal payload", err)
	}
	return nil
}

// Delete performs a rate-limited DELETE. A 204 with no body is success.
func (d *Doer) Delete(ctx context.Context, rawURL string, headers map[string]string) error {
	_, err := d.roundTrip(ctx, http.MethodDelete, rawURL, headers, nil)
	return err
}

// Source returns the source name this Doer budgets against.
func (d *Doer) Source() string {
	return d.source
}
