package verifier

import (
	"context"
	"sync"

	"github.com/verigate/verigate/pkg/recaptcha"
)

// Fake is a deterministic Verifier that never touches the network. It
// answers every token with success and a configurable score, defaulting
// to a perfect human score.
type Fake struct {
	mu    sync.Mutex
	score float64
	calls int
}

// NewFake returns a Fake answering with score 1.0.
func NewFake() *Fake {
	return &Fake{score: 1.0}
}

// Human makes subsequent answers carry a 1.0 score.
func (f *Fake) Human() { f.SetScore(1.0) }

// Robot makes subsequent answers carry a 0.0 score.
func (f *Fake) Robot() { f.SetScore(0.0) }

// SetScore fixes the score of subsequent answers.
func (f *Fake) SetScore(s float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.score = recaptcha.ClampThreshold(s)
}

// Calls reports how many times Verify has been invoked. Tests use this to
// assert that bypass paths never reach the verifier.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Verify implements Verifier.
func (f *Fake) Verify(_ context.Context, _, _ string, kind recaptcha.Kind) (*recaptcha.Response, error) {
	f.mu.Lock()
	f.calls++
	score := f.score
	f.mu.Unlock()

	if kind.IsScore() {
		return recaptcha.Fulfilled(kind, true, &score), nil
	}
	return recaptcha.Fulfilled(kind, true, nil), nil
}
