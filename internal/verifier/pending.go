package verifier

import (
	"context"

	"github.com/verigate/verigate/pkg/recaptcha"
)

// Pending is an in-flight verification. The oracle call starts as soon as
// Defer returns and runs concurrently with the caller; the answer is
// joined lazily on the first Response call. Handlers use this to fire the
// verification before request-body-dependent work completes.
type Pending struct {
	cancel context.CancelFunc
	done   chan struct{}
	resp   *recaptcha.Response
	err    error
}

// Defer starts a verification without waiting for it. The returned Pending
// owns the in-flight call; callers that never await it must Cancel it to
// release the network resources.
func Defer(ctx context.Context, v Verifier, token, remoteIP string, kind recaptcha.Kind) *Pending {
	ctx, cancel := context.WithCancel(ctx)
	p := &Pending{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(p.done)
		p.resp, p.err = v.Verify(ctx, token, remoteIP, kind)
	}()

	return p
}

// Response blocks until the in-flight call finishes or ctx is done, then
// returns the resolved response. Subsequent calls return the same result
// without re-contacting the oracle.
func (p *Pending) Response(ctx context.Context) (*recaptcha.Response, error) {
	select {
	case <-p.done:
		return p.resp, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed when the in-flight call has finished.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Cancel aborts the in-flight call. Best effort, safe to call more than
// once, and safe to call after the call has completed.
func (p *Pending) Cancel() { p.cancel() }
