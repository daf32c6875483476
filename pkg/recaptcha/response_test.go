package recaptcha

import (
	"errors"
	"testing"
	"time"
)

func score(f float64) *float64 { return &f }

func TestIsHuman_thresholdBoundary(t *testing.T) {
	tests := []struct {
		name      string
		score     float64
		threshold float64
		human     bool
	}{
		{"above", 0.8, 0.5, true},
		{"exactly at threshold", 0.5, 0.5, true},
		{"below", 0.49, 0.5, false},
		{"zero score zero threshold", 0, 0, true},
		{"perfect score", 1.0, 1.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := Fulfilled(KindScore, true, score(tt.score))
			human, err := resp.IsHuman(tt.threshold)
			if err != nil {
				t.Fatalf("IsHuman: %v", err)
			}
			if human != tt.human {
				t.Errorf("IsHuman(%v) with score %v = %v, want %v",
					tt.threshold, tt.score, human, tt.human)
			}
			robot, err := resp.IsRobot(tt.threshold)
			if err != nil {
				t.Fatalf("IsRobot: %v", err)
			}
			if robot == human {
				t.Error("IsRobot must be the negation of IsHuman")
			}
		})
	}
}

func TestIsHuman_unresolved(t *testing.T) {
	var resp Response
	if resp.IsResolved() {
		t.Fatal("zero Response must be unresolved")
	}
	if _, err := resp.IsHuman(0.5); !errors.Is(err, ErrNotResolved) {
		t.Errorf("IsHuman on unresolved = %v, want ErrNotResolved", err)
	}
	if _, err := resp.IsValid(); !errors.Is(err, ErrNotResolved) {
		t.Errorf("IsValid on unresolved = %v, want ErrNotResolved", err)
	}
}

func TestIsHuman_nonScoreKinds(t *testing.T) {
	for _, kind := range []Kind{KindCheckbox, KindInvisible, KindAndroid} {
		resp := Fulfilled(kind, true, score(1.0))
		if _, err := resp.IsHuman(0.5); !errors.Is(err, ErrNotScore) {
			t.Errorf("IsHuman on %s = %v, want ErrNotScore", kind, err)
		}
		if _, err := resp.IsRobot(0.5); !errors.Is(err, ErrNotScore) {
			t.Errorf("IsRobot on %s = %v, want ErrNotScore", kind, err)
		}
	}
}

func TestIsHuman_scoreAbsent(t *testing.T) {
	resp := Fulfilled(KindScore, true, nil)
	if _, err := resp.IsHuman(0.5); !errors.Is(err, ErrScoreAbsent) {
		t.Errorf("IsHuman without score = %v, want ErrScoreAbsent", err)
	}
}

func TestDecodeResponse(t *testing.T) {
	body := `{
		"success": true,
		"score": 0.9,
		"action": "login",
		"hostname": "example.com",
		"challenge_ts": "2026-08-30T10:00:00Z",
		"apk_package_name": "com.example.app",
		"error-codes": [],
		"enterprise_reason": "LOW_CONFIDENCE"
	}`

	resp, err := DecodeResponse([]byte(body), KindScore)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if !resp.IsResolved() {
		t.Fatal("decoded response must be resolved")
	}
	if !resp.Success || resp.Score == nil || *resp.Score != 0.9 {
		t.Errorf("unexpected success/score: %+v", resp)
	}
	if resp.Action != "login" || resp.Hostname != "example.com" {
		t.Errorf("unexpected action/hostname: %+v", resp)
	}
	if resp.APKPackageName != "com.example.app" {
		t.Errorf("unexpected apk_package_name: %q", resp.APKPackageName)
	}
	want := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	if !resp.ChallengeTS.Equal(want) {
		t.Errorf("ChallengeTS = %v, want %v", resp.ChallengeTS, want)
	}
	if resp.Extra["enterprise_reason"] != "LOW_CONFIDENCE" {
		t.Errorf("unknown fields must be preserved in Extra, got %v", resp.Extra)
	}
}

func TestDecodeResponse_errorCodes(t *testing.T) {
	body := `{"success": false, "error-codes": ["timeout-or-duplicate"]}`

	resp, err := DecodeResponse([]byte(body), KindCheckbox)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	ok, err := resp.IsValid()
	if err != nil {
		t.Fatalf("IsValid: %v", err)
	}
	if ok {
		t.Error("response with error codes must be invalid")
	}
	if len(resp.ErrorCodes) != 1 || resp.ErrorCodes[0] != "timeout-or-duplicate" {
		t.Errorf("ErrorCodes = %v", resp.ErrorCodes)
	}
}

func TestDecodeResponse_malformed(t *testing.T) {
	if _, err := DecodeResponse([]byte("{not json"), KindScore); err == nil {
		t.Error("expected error for malformed body")
	}
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"checkbox", "invisible", "android", "score"} {
		if _, err := ParseKind(s); err != nil {
			t.Errorf("ParseKind(%q): %v", s, err)
		}
	}
	if _, err := ParseKind("v2"); err == nil {
		t.Error("ParseKind must reject unknown kinds")
	}
}

func TestClampThreshold(t *testing.T) {
	if got := ClampThreshold(-0.5); got != 0 {
		t.Errorf("ClampThreshold(-0.5) = %v", got)
	}
	if got := ClampThreshold(1.5); got != 1 {
		t.Errorf("ClampThreshold(1.5) = %v", got)
	}
	if got := ClampThreshold(0.7); got != 0.7 {
		t.Errorf("ClampThreshold(0.7) = %v", got)
	}
}
