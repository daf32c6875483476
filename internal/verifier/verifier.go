// Package verifier resolves reCAPTCHA challenge tokens against Google's
// siteverify oracle.
//
// Two implementations of the Verifier interface are provided:
//   - Google: the real HTTP client, for production use.
//   - Fake: deterministic answers, for tests and local development.
//
// Which one a middleware receives is decided once at construction time;
// nothing swaps verifiers at runtime.
package verifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/verigate/verigate/pkg/recaptcha"
)

// Verifier resolves a client-submitted challenge token into the oracle's
// answer. Implementations must honour ctx cancellation and respond within
// a finite time.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string, kind recaptcha.Kind) (*recaptcha.Response, error)
}

// Credentials maps each challenge kind to its siteverify secret.
type Credentials map[recaptcha.Kind]string

// ErrMissingCredential marks a challenge kind with no secret bound to it.
// This is an operator configuration error and is never surfaced as a
// verification failure.
var ErrMissingCredential = errors.New("verifier: no secret configured for challenge kind")

// Secret returns the secret for kind or ErrMissingCredential.
func (c Credentials) Secret(kind recaptcha.Kind) (string, error) {
	s, ok := c[kind]
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingCredential, kind)
	}
	return s, nil
}

// TransportError wraps a failure to reach the oracle or to obtain a usable
// reply from it. Verification fails closed on it: the caller treats it as
// a failed verification, never a silent pass.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "verifier: siteverify transport failure: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }
