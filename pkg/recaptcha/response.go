// Package recaptcha models Google reCAPTCHA siteverify answers and the
// trust decisions derived from them.
//
// A Response starts unresolved; every accessor except IsResolved returns
// ErrNotResolved until the oracle's answer has been decoded into it. Score
// comparisons are only defined for KindScore responses.
package recaptcha

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind identifies the reCAPTCHA challenge variant a token was issued for.
type Kind string

const (
	KindCheckbox  Kind = "checkbox"
	KindInvisible Kind = "invisible"
	KindAndroid   Kind = "android"
	KindScore     Kind = "score"
)

// ParseKind converts a configuration string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindCheckbox, KindInvisible, KindAndroid, KindScore:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown challenge kind %q", s)
	}
}

// IsScore reports whether the kind carries a continuous trust score.
func (k Kind) IsScore() bool { return k == KindScore }

const (
	// VerifyEndpoint is where challenge tokens are verified.
	VerifyEndpoint = "https://www.google.com/recaptcha/api/siteverify"

	// InputField is the default form field carrying the client token.
	InputField = "g-recaptcha-response"

	// DefaultThreshold separates humans from robots when no per-route
	// threshold is configured. The boundary is inclusive: a score equal
	// to the threshold counts as human.
	DefaultThreshold = 0.5

	// TestV2Secret and TestV2SiteKey are Google's published keypair for
	// v2 challenges on "localhost". They always validate successfully.
	TestV2Secret  = "6LeIxAcTAAAAAGG-vFI1TnRWxMZNFuojJ4WifJWe"
	TestV2SiteKey = "6LeIxAcTAAAAAJcZVRqyHh71UMIEGNQ_MXjiZKhI"
)

// Accessor misuse errors. These indicate a bug in calling code, never a
// failed verification, and are not meant to reach end users.
var (
	ErrNotResolved = errors.New("recaptcha: response has not been resolved")
	ErrNotScore    = errors.New("recaptcha: response is not a score challenge")
	ErrScoreAbsent = errors.New("recaptcha: response carries no score")
)

// Response is the typed form of the oracle's siteverify answer.
//
// The zero value is unresolved. DecodeResponse and Fulfilled produce
// resolved values; a Response is never mutated after resolution.
type Response struct {
	Success        bool
	Score          *float64
	Hostname       string
	Action         string
	APKPackageName string
	ChallengeTS    time.Time
	ErrorCodes     []string

	// Extra preserves oracle fields this package does not model, so
	// forward-compatible additions survive the round trip verbatim.
	Extra map[string]any

	Kind     Kind
	resolved bool
}

// IsResolved reports whether the oracle has answered for this response.
func (r *Response) IsResolved() bool { return r.resolved }

// IsValid reports whether the oracle accepted the challenge: success is
// true and no error codes were returned.
func (r *Response) IsValid() (bool, error) {
	if !r.resolved {
		return false, ErrNotResolved
	}
	return r.Success && len(r.ErrorCodes) == 0, nil
}

// IsHuman reports whether the response's score meets the threshold.
// Only meaningful for KindScore responses carrying a score.
func (r *Response) IsHuman(threshold float64) (bool, error) {
	if !r.resolved {
		return false, ErrNotResolved
	}
	if r.Kind != KindScore {
		return false, ErrNotScore
	}
	if r.Score == nil {
		return false, ErrScoreAbsent
	}
	return *r.Score >= threshold, nil
}

// IsRobot is the negation of IsHuman.
func (r *Response) IsRobot(threshold float64) (bool, error) {
	human, err := r.IsHuman(threshold)
	if err != nil {
		return false, err
	}
	return !human, nil
}

// ClampThreshold bounds a configured threshold to [0, 1].
func ClampThreshold(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// wireResponse mirrors the siteverify JSON body.
type wireResponse struct {
	Success        bool     `json:"success"`
	Score          *float64 `json:"score"`
	Action         string   `json:"action"`
	Hostname       string   `json:"hostname"`
	ChallengeTS    string   `json:"challenge_ts"`
	APKPackageName string   `json:"apk_package_name"`
	ErrorCodes     []string `json:"error-codes"`
}

// wireKeys are the JSON fields DecodeResponse lifts into typed fields.
// Anything else lands in Extra.
var wireKeys = map[string]struct{}{
	"success": {}, "score": {}, "action": {}, "hostname": {},
	"challenge_ts": {}, "apk_package_name": {}, "error-codes": {},
}

// DecodeResponse builds a resolved Response from the oracle's JSON body.
func DecodeResponse(data []byte, kind Kind) (*Response, error) {
	var wire wireResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode siteverify response: %w", err)
	}

	resp := &Response{
		Success:        wire.Success,
		Score:          wire.Score,
		Hostname:       wire.Hostname,
		Action:         wire.Action,
		APKPackageName: wire.APKPackageName,
		ErrorCodes:     wire.ErrorCodes,
		Kind:           kind,
		resolved:       true,
	}

	if wire.ChallengeTS != "" {
		if ts, err := time.Parse(time.RFC3339, wire.ChallengeTS); err == nil {
			resp.ChallengeTS = ts
		}
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err == nil {
		for k, v := range raw {
			if _, known := wireKeys[k]; known {
				continue
			}
			if resp.Extra == nil {
				resp.Extra = make(map[string]any)
			}
			resp.Extra[k] = v
		}
	}

	return resp, nil
}

// Fulfilled builds a resolved Response without contacting the oracle.
// Used by the fake verifier and by tests.
func Fulfilled(kind Kind, success bool, score *float64) *Response {
	return &Response{
		Success:     success,
		Score:       score,
		ChallengeTS: time.Now().UTC(),
		Kind:        kind,
		resolved:    true,
	}
}
