package guard

import (
	"fmt"

	"github.com/verigate/verigate/pkg/recaptcha"
)

// DefaultRememberMinutes is the remember-window length used when a route
// opts into remembering without naming one.
const DefaultRememberMinutes = 10

// rememberMode tracks whether a route opted in, opted out, or said
// nothing about remembering.
type rememberMode int

const (
	rememberInherit rememberMode = iota
	rememberOn
	rememberOff
)

// RememberPolicy governs the remembered-trust window for a route family.
// TTLMinutes of 0 means the marker never expires. Renew makes every
// successful verification refresh the marker; otherwise the first marker
// wins for its lifetime.
type RememberPolicy struct {
	Enabled    bool
	TTLMinutes int
	Renew      bool
}

// Config is a route's verification configuration, validated once at
// registration time. Build it with the fluent Builder; handlers never
// parse per-request strings.
type Config struct {
	Kind         recaptcha.Kind
	Threshold    float64
	Action       string
	Input        string
	ExemptGuards []string

	remember   rememberMode
	rememberCfg RememberPolicy

	hasThreshold bool
}

// rememberPolicy resolves the route's policy against the guard default.
func (c *Config) rememberPolicy(def RememberPolicy) RememberPolicy {
	switch c.remember {
	case rememberOn:
		return c.rememberCfg
	case rememberOff:
		return RememberPolicy{}
	default:
		return def
	}
}

// Builder assembles a Config fluently. Option/kind mismatches are caught
// at Build time, so a misconfigured route fails at startup instead of on
// its first request.
type Builder struct {
	cfg Config
	err error
}

// Score starts a configuration for a score-driven (v3) route.
func Score() *Builder {
	return &Builder{cfg: Config{Kind: recaptcha.KindScore, Input: recaptcha.InputField}}
}

// Checkbox starts a configuration for a checkbox (v2) route.
func Checkbox() *Builder { return fixedOutcome(recaptcha.KindCheckbox) }

// Invisible starts a configuration for an invisible (v2) route.
func Invisible() *Builder { return fixedOutcome(recaptcha.KindInvisible) }

// Android starts a configuration for an Android attestation route.
func Android() *Builder { return fixedOutcome(recaptcha.KindAndroid) }

func fixedOutcome(kind recaptcha.Kind) *Builder {
	return &Builder{cfg: Config{Kind: kind, Input: recaptcha.InputField}}
}

func (b *Builder) fail(format string, args ...any) *Builder {
	if b.err == nil {
		b.err = fmt.Errorf(format, args...)
	}
	return b
}

// Threshold sets the human/robot score boundary for a score route.
// Values are clamped to [0, 1].
func (b *Builder) Threshold(t float64) *Builder {
	if !b.cfg.Kind.IsScore() {
		return b.fail("threshold cannot be set on a %s route", b.cfg.Kind)
	}
	b.cfg.Threshold = recaptcha.ClampThreshold(t)
	b.cfg.hasThreshold = true
	return b
}

// Action sets the declared action the oracle's answer must match.
func (b *Builder) Action(action string) *Builder {
	if !b.cfg.Kind.IsScore() {
		return b.fail("action cannot be set on a %s route", b.cfg.Kind)
	}
	b.cfg.Action = action
	return b
}

// Input overrides the form field the token is read from.
func (b *Builder) Input(name string) *Builder {
	if name == "" {
		return b.fail("input field name cannot be empty")
	}
	b.cfg.Input = name
	return b
}

// Except exempts requests authenticated under any of the named guards.
func (b *Builder) Except(guards ...string) *Builder {
	b.cfg.ExemptGuards = append(b.cfg.ExemptGuards, guards...)
	return b
}

// Remember stores a trust marker for the given minutes after a successful
// verification, bypassing re-verification within the window. Score routes
// verify every request and cannot remember.
func (b *Builder) Remember(minutes int) *Builder {
	if b.cfg.Kind.IsScore() {
		return b.fail("remember cannot be set on a %s route", b.cfg.Kind)
	}
	if minutes < 0 {
		return b.fail("remember minutes cannot be negative")
	}
	b.cfg.remember = rememberOn
	b.cfg.rememberCfg.Enabled = true
	b.cfg.rememberCfg.TTLMinutes = minutes
	return b
}

// RememberForever stores a trust marker that never expires.
func (b *Builder) RememberForever() *Builder { return b.Remember(0) }

// DontRemember opts the route out of any guard-level remember default.
func (b *Builder) DontRemember() *Builder {
	if b.cfg.Kind.IsScore() {
		return b.fail("remember cannot be set on a %s route", b.cfg.Kind)
	}
	b.cfg.remember = rememberOff
	return b
}

// Renew makes every successful verification refresh the remember marker.
func (b *Builder) Renew() *Builder {
	if b.cfg.remember != rememberOn {
		return b.fail("renew requires remember to be set first")
	}
	b.cfg.rememberCfg.Renew = true
	return b
}

// Build validates and returns the configuration.
func (b *Builder) Build() (Config, error) {
	if b.err != nil {
		return Config{}, b.err
	}
	return b.cfg, nil
}
