package guard

import (
	"testing"

	"github.com/verigate/verigate/pkg/recaptcha"
)

func TestBuilder_scoreDefaults(t *testing.T) {
	cfg, err := Score().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.Kind != recaptcha.KindScore {
		t.Errorf("Kind = %s", cfg.Kind)
	}
	if cfg.Input != recaptcha.InputField {
		t.Errorf("Input = %q, want default", cfg.Input)
	}
	if cfg.hasThreshold {
		t.Error("threshold must be unset until Threshold is called")
	}
}

func TestBuilder_thresholdClamped(t *testing.T) {
	cfg, err := Score().Threshold(1.7).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.Threshold != 1.0 {
		t.Errorf("Threshold = %v, want clamped to 1.0", cfg.Threshold)
	}
}

func TestBuilder_kindMismatches(t *testing.T) {
	tests := []struct {
		name string
		b    *Builder
	}{
		{"threshold on checkbox", Checkbox().Threshold(0.5)},
		{"action on invisible", Invisible().Action("login")},
		{"remember on score", Score().Remember(10)},
		{"dont-remember on score", Score().DontRemember()},
		{"renew without remember", Checkbox().Renew()},
		{"empty input", Score().Input("")},
		{"negative remember", Android().Remember(-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.b.Build(); err == nil {
				t.Error("expected Build to fail")
			}
		})
	}
}

func TestBuilder_firstErrorWins(t *testing.T) {
	_, err := Checkbox().Threshold(0.5).Action("x").Build()
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != "threshold cannot be set on a checkbox route" {
		t.Errorf("unexpected error: %q", got)
	}
}

func TestBuilder_rememberKnobs(t *testing.T) {
	cfg, err := Checkbox().Remember(30).Renew().Except("web", "api").Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	policy := cfg.rememberPolicy(RememberPolicy{})
	if !policy.Enabled || policy.TTLMinutes != 30 || !policy.Renew {
		t.Errorf("policy = %+v", policy)
	}
	if len(cfg.ExemptGuards) != 2 {
		t.Errorf("ExemptGuards = %v", cfg.ExemptGuards)
	}

	cfg, err = Invisible().RememberForever().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	policy = cfg.rememberPolicy(RememberPolicy{})
	if !policy.Enabled || policy.TTLMinutes != 0 {
		t.Errorf("forever policy = %+v", policy)
	}
}

func TestConfig_rememberPolicyInheritance(t *testing.T) {
	def := RememberPolicy{Enabled: true, TTLMinutes: 15}

	cfg, _ := Checkbox().Build()
	if p := cfg.rememberPolicy(def); !p.Enabled || p.TTLMinutes != 15 {
		t.Errorf("silent route must inherit the default, got %+v", p)
	}

	cfg, _ = Checkbox().DontRemember().Build()
	if p := cfg.rememberPolicy(def); p.Enabled {
		t.Errorf("opted-out route must not remember, got %+v", p)
	}

	cfg, _ = Checkbox().Remember(5).Build()
	if p := cfg.rememberPolicy(def); p.TTLMinutes != 5 {
		t.Errorf("opted-in route must use its own TTL, got %+v", p)
	}
}
