// Package guard provides the Gin middleware that decides whether an
// inbound write request is human-originated.
//
// Two variants exist: Challenge for fixed-outcome kinds (checkbox,
// invisible, android), where the decision is the oracle's binary verdict,
// and Score for the continuous-score kind, where the decision compares
// the score against a per-route threshold. Within one request the order
// is fixed: bypass checks, then token presence, then resolution, then
// context validation, then the trust decision. Later steps assume the
// earlier ones have exhausted their error conditions.
package guard

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/verigate/verigate/internal/audit"
	"github.com/verigate/verigate/internal/session"
	"github.com/verigate/verigate/internal/verifier"
	"github.com/verigate/verigate/pkg/recaptcha"
	"go.uber.org/zap"
)

// Authenticator reports whether a request carries an authenticated
// identity for one named guard.
type Authenticator interface {
	Authenticated(c *gin.Context) bool
}

// SessionKeyFunc derives the per-client session identifier used to scope
// remember markers. Returning "" disables remembering for the request.
type SessionKeyFunc func(c *gin.Context) string

// Options configure a Guard. Verifier is required; everything else has a
// usable default. Store and SessionKey are only consulted by routes that
// remember.
type Options struct {
	Verifier       verifier.Verifier
	Store          session.Store
	SessionKey     SessionKeyFunc
	Authenticators map[string]Authenticator
	Recorder       audit.Recorder
	Logger         *zap.Logger

	// Enabled gates all verification; when false every route passes
	// through untouched. FakeMode short-circuits the oracle with
	// deterministic answers and is for tests and local development only.
	Enabled  bool
	FakeMode bool

	// Hostname and APKPackageName are the global context expectations
	// applied to every resolved response.
	Hostname       string
	APKPackageName string

	// MarkerKey is the session key remember markers are stored under.
	MarkerKey string

	// DefaultThreshold is used by score routes that set none.
	DefaultThreshold float64

	// DefaultRemember applies to challenge routes that neither opt in
	// nor opt out.
	DefaultRemember RememberPolicy
}

// Guard builds verification middleware from a fixed set of collaborators.
// The verifier is chosen here, once; nothing swaps it at runtime.
type Guard struct {
	verifier   verifier.Verifier
	sessionKey SessionKeyFunc
	auths      map[string]Authenticator
	recorder   audit.Recorder
	remember   *rememberCache
	logger     *zap.Logger

	enabled   bool
	fakeMode  bool
	hostname  string
	apk       string
	markerKey string

	defaultThreshold float64
	defaultRemember  RememberPolicy
}

// New creates a Guard.
func New(opts Options) *Guard {
	if opts.Verifier == nil {
		panic("guard: Options.Verifier is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	markerKey := opts.MarkerKey
	if markerKey == "" {
		markerKey = DefaultMarkerKey
	}
	threshold := opts.DefaultThreshold
	if threshold == 0 {
		threshold = recaptcha.DefaultThreshold
	}

	g := &Guard{
		verifier:         opts.Verifier,
		sessionKey:       opts.SessionKey,
		auths:            opts.Authenticators,
		recorder:         opts.Recorder,
		logger:           logger,
		enabled:          opts.Enabled,
		fakeMode:         opts.FakeMode,
		hostname:         opts.Hostname,
		apk:              opts.APKPackageName,
		markerKey:        markerKey,
		defaultThreshold: recaptcha.ClampThreshold(threshold),
		defaultRemember:  opts.DefaultRemember,
	}
	if opts.Store != nil {
		g.remember = &rememberCache{store: opts.Store, now: time.Now, logger: logger}
	}
	return g
}

// Score returns middleware for a score-driven route. Invalid route
// configuration panics at registration time, never per request.
func (g *Guard) Score(b *Builder) gin.HandlerFunc {
	cfg := mustBuild(b)
	if !cfg.Kind.IsScore() {
		panic("guard: Score requires a score route, got " + string(cfg.Kind))
	}
	threshold := g.defaultThreshold
	if cfg.hasThreshold {
		threshold = cfg.Threshold
	}

	return func(c *gin.Context) {
		if !g.enabled || g.exempt(c, cfg.ExemptGuards) {
			c.Next()
			return
		}

		if g.fakeMode {
			score := 1.0
			if inputFilled(c, "is_robot") {
				score = 0.0
			}
			resp := recaptcha.Fulfilled(recaptcha.KindScore, true, &score)
			human, _ := resp.IsHuman(threshold)
			verifier.RecordDecision(cfg.Kind, human)
			g.record(c, cfg, resp, "", 0, true)
			attach(c, resp, threshold)
			c.Next()
			return
		}

		token, ok := tokenValue(c, cfg.Input)
		if !ok {
			g.reject(c, cfg.Input, recaptcha.KeyMissing, nil)
			return
		}

		resp, took, err := g.resolve(c, token, cfg.Kind)
		if err != nil {
			g.resolveFailure(c, cfg.Input, err)
			return
		}
		g.record(c, cfg, resp, token, took, false)

		if verr := recaptcha.Validate(resp, cfg.Input, g.expectationsFor(cfg)); verr != nil {
			g.validationFailure(c, verr)
			return
		}

		human, err := resp.IsHuman(threshold)
		if err != nil {
			// A score route answered without a score: fail closed.
			g.logger.Error("score response without score", zap.Error(err))
			g.reject(c, cfg.Input, recaptcha.KeyFailed, nil)
			return
		}
		verifier.RecordDecision(cfg.Kind, human)

		attach(c, resp, threshold)
		c.Next()
	}
}

// Challenge returns middleware for a fixed-outcome route: checkbox,
// invisible, or android attestation.
func (g *Guard) Challenge(b *Builder) gin.HandlerFunc {
	cfg := mustBuild(b)
	if cfg.Kind.IsScore() {
		panic("guard: Challenge cannot serve a score route, use Score")
	}

	return func(c *gin.Context) {
		// Fake mode skips fixed-outcome verification entirely; the
		// fabricated-response path only exists for score routes.
		if !g.enabled || g.fakeMode || g.exempt(c, cfg.ExemptGuards) {
			c.Next()
			return
		}

		policy := cfg.rememberPolicy(g.defaultRemember)
		marker := g.requestMarkerKey(c)
		if policy.Enabled && marker != "" && g.remember != nil &&
			g.remember.hasActiveMarker(c.Request.Context(), marker) {
			// Remembered: verification is skipped and no response is
			// registered for this request.
			c.Next()
			return
		}

		token, ok := tokenValue(c, cfg.Input)
		if !ok {
			g.reject(c, cfg.Input, recaptcha.KeyMissing, nil)
			return
		}

		resp, took, err := g.resolve(c, token, cfg.Kind)
		if err != nil {
			g.resolveFailure(c, cfg.Input, err)
			return
		}
		g.record(c, cfg, resp, token, took, false)

		if verr := recaptcha.Validate(resp, cfg.Input, g.expectationsFor(cfg)); verr != nil {
			g.validationFailure(c, verr)
			return
		}
		verifier.RecordDecision(cfg.Kind, true)

		if policy.Enabled && marker != "" && g.remember != nil {
			g.remember.storeMarker(c.Request.Context(), marker, policy)
		}

		attach(c, resp, 0)
		c.Next()
	}
}

func (g *Guard) resolve(c *gin.Context, token string, kind recaptcha.Kind) (*recaptcha.Response, time.Duration, error) {
	start := time.Now()
	resp, err := g.verifier.Verify(c.Request.Context(), token, c.ClientIP(), kind)
	return resp, time.Since(start), err
}

// exempt reports whether the request is authenticated under any of the
// route's exempt guards.
func (g *Guard) exempt(c *gin.Context, guards []string) bool {
	for _, name := range guards {
		if a, ok := g.auths[name]; ok && a.Authenticated(c) {
			return true
		}
	}
	return false
}

func (g *Guard) expectationsFor(cfg Config) recaptcha.Expectations {
	return recaptcha.Expectations{
		Hostname:       g.hostname,
		APKPackageName: g.apk,
		Action:         cfg.Action,
	}
}

func (g *Guard) requestMarkerKey(c *gin.Context) string {
	if g.sessionKey == nil {
		return ""
	}
	sid := g.sessionKey(c)
	if sid == "" {
		return ""
	}
	return sid + ":" + g.markerKey
}

// resolveFailure maps resolver errors onto responses. Credential errors
// are the operator's fault and surface as 500; transport errors fail the
// verification with a generic message so infrastructure details never
// leak to clients.
func (g *Guard) resolveFailure(c *gin.Context, input string, err error) {
	if errors.Is(err, verifier.ErrMissingCredential) {
		g.logger.Error("verification misconfigured", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "verification is not configured",
		})
		return
	}

	var terr *verifier.TransportError
	if errors.As(err, &terr) {
		g.logger.Error("verification transport failure", zap.Error(err))
		g.reject(c, input, recaptcha.KeyFailed, nil)
		return
	}

	g.logger.Error("verification failed", zap.Error(err))
	g.reject(c, input, recaptcha.KeyFailed, nil)
}

func (g *Guard) validationFailure(c *gin.Context, err error) {
	var verr *recaptcha.ValidationError
	if errors.As(err, &verr) {
		g.reject(c, verr.Field, verr.Key, verr.Codes)
		return
	}
	// Accessor misuse is a bug in this package, not a client error.
	g.logger.Error("validation invariant violated", zap.Error(err))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error": "verification failed",
	})
}

// reject aborts the request with a field-keyed validation error. Hosts
// serving HTML map this to a redirect-with-errors.
func (g *Guard) reject(c *gin.Context, field, key string, codes []string) {
	body := gin.H{"field": field, "error": key}
	if len(codes) > 0 {
		body["codes"] = codes
	}
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, body)
}

// record emits the post-resolution domain event. Recording is fire and
// forget; it must never delay or fail the request.
func (g *Guard) record(c *gin.Context, cfg Config, resp *recaptcha.Response, token string, took time.Duration, fake bool) {
	if g.recorder == nil {
		return
	}

	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	ok, _ := resp.IsValid()

	ev := &audit.Event{
		ID:       uuid.New(),
		Kind:     string(cfg.Kind),
		RemoteIP: c.ClientIP(),
		Path:     path,
		Action:   resp.Action,
		Hostname: resp.Hostname,
		Score:    resp.Score,
		Success:  ok,
		Fake:     fake,
		Took:     took,
		At:       time.Now().UTC(),
	}
	if token != "" {
		ev.TokenDigest = audit.DigestToken(token)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.recorder.Record(ctx, ev); err != nil {
			g.logger.Warn("audit: record verification", zap.Error(err))
		}
	}()
}

func mustBuild(b *Builder) Config {
	cfg, err := b.Build()
	if err != nil {
		panic("guard: invalid route configuration: " + err.Error())
	}
	return cfg
}

// tokenValue extracts the challenge token from the request's form body or
// query string. Blank values count as missing.
func tokenValue(c *gin.Context, input string) (string, bool) {
	v := c.PostForm(input)
	if v == "" {
		v = c.Query(input)
	}
	if strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// inputFilled reports whether a form or query field is present and
// non-empty.
func inputFilled(c *gin.Context, name string) bool {
	return c.PostForm(name) != "" || c.Query(name) != ""
}
