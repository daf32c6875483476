package verifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/verigate/verigate/pkg/recaptcha"
	"go.uber.org/zap"
)

// Google verifies tokens against the real siteverify endpoint. A circuit
// breaker sits in front of the HTTP call so a dead oracle trips open
// instead of stacking timeouts on every inbound request.
type Google struct {
	endpoint string
	creds    Credentials
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

// GoogleOption configures a Google verifier.
type GoogleOption func(*Google)

// WithEndpoint overrides the siteverify URL. Tests point this at an
// httptest server.
func WithEndpoint(u string) GoogleOption {
	return func(g *Google) { g.endpoint = u }
}

// WithTimeout bounds each oracle round trip.
func WithTimeout(d time.Duration) GoogleOption {
	return func(g *Google) { g.client.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client entirely.
func WithHTTPClient(c *http.Client) GoogleOption {
	return func(g *Google) { g.client = c }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) GoogleOption {
	return func(g *Google) { g.logger = l }
}

// NewGoogle creates a Google verifier for the given per-kind secrets.
func NewGoogle(creds Credentials, opts ...GoogleOption) *Google {
	g := &Google{
		endpoint: recaptcha.VerifyEndpoint,
		creds:    creds,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "recaptcha-siteverify",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn("siteverify breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return g
}

// Verify implements Verifier. The wire contract is fixed: a form POST with
// secret, response and remoteip, answered with JSON.
func (g *Google) Verify(ctx context.Context, token, remoteIP string, kind recaptcha.Kind) (*recaptcha.Response, error) {
	secret, err := g.creds.Secret(kind)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("secret", secret)
	form.Set("response", token)
	form.Set("remoteip", remoteIP)

	start := time.Now()
	body, err := g.breaker.Execute(func() (any, error) {
		return g.post(ctx, form)
	})
	observeResolution(kind, time.Since(start), err == nil)

	if err != nil {
		g.logger.Error("siteverify call failed",
			zap.String("kind", string(kind)),
			zap.String("remote_ip", remoteIP),
			zap.Error(err),
		)
		return nil, &TransportError{Err: err}
	}

	resp, err := recaptcha.DecodeResponse(body.([]byte), kind)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return resp, nil
}

func (g *Google) post(ctx context.Context, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("siteverify returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("read siteverify body: %w", err)
	}
	return body, nil
}
