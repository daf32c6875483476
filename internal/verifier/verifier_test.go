package verifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/verigate/verigate/pkg/recaptcha"
)

func testCreds() Credentials {
	return Credentials{
		recaptcha.KindScore:    "score-secret",
		recaptcha.KindCheckbox: recaptcha.TestV2Secret,
	}
}

func TestGoogleVerify_success(t *testing.T) {
	var gotSecret, gotToken, gotIP string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotSecret = r.PostFormValue("secret")
		gotToken = r.PostFormValue("response")
		gotIP = r.PostFormValue("remoteip")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success": true, "score": 0.8, "action": "login", "hostname": "example.com"}`))
	}))
	defer srv.Close()

	g := NewGoogle(testCreds(), WithEndpoint(srv.URL))
	resp, err := g.Verify(context.Background(), "tok-123", "203.0.113.9", recaptcha.KindScore)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if gotSecret != "score-secret" || gotToken != "tok-123" || gotIP != "203.0.113.9" {
		t.Errorf("form fields = (%q, %q, %q)", gotSecret, gotToken, gotIP)
	}
	human, err := resp.IsHuman(0.5)
	if err != nil || !human {
		t.Errorf("IsHuman = (%v, %v), want (true, nil)", human, err)
	}
}

func TestGoogleVerify_missingCredential(t *testing.T) {
	g := NewGoogle(Credentials{})
	_, err := g.Verify(context.Background(), "tok", "1.2.3.4", recaptcha.KindScore)
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestGoogleVerify_transportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := NewGoogle(testCreds(), WithEndpoint(srv.URL))
	_, err := g.Verify(context.Background(), "tok", "1.2.3.4", recaptcha.KindScore)

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected *TransportError, got %v", err)
	}
}

func TestGoogleVerify_timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()

	g := NewGoogle(testCreds(), WithEndpoint(srv.URL), WithTimeout(20*time.Millisecond))
	_, err := g.Verify(context.Background(), "tok", "1.2.3.4", recaptcha.KindCheckbox)

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("timeout must surface as *TransportError, got %v", err)
	}
}

func TestGoogleVerify_breakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := NewGoogle(testCreds(), WithEndpoint(srv.URL))
	for i := 0; i < 10; i++ {
		_, err := g.Verify(context.Background(), "tok", "1.2.3.4", recaptcha.KindScore)
		if err == nil {
			t.Fatal("expected failure")
		}
	}

	// The breaker trips after 5 consecutive failures; later attempts must
	// fail fast without reaching the endpoint.
	if n := hits.Load(); n > 5 {
		t.Errorf("endpoint hit %d times, breaker should have stopped at 5", n)
	}
}

func TestFakeVerify(t *testing.T) {
	f := NewFake()

	resp, err := f.Verify(context.Background(), "tok", "1.2.3.4", recaptcha.KindScore)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if human, _ := resp.IsHuman(0.5); !human {
		t.Error("default fake answer must be human")
	}

	f.Robot()
	resp, _ = f.Verify(context.Background(), "tok", "1.2.3.4", recaptcha.KindScore)
	if human, _ := resp.IsHuman(0.5); human {
		t.Error("fake robot answer must not be human")
	}

	resp, _ = f.Verify(context.Background(), "tok", "1.2.3.4", recaptcha.KindCheckbox)
	if ok, _ := resp.IsValid(); !ok {
		t.Error("fake checkbox answer must be valid")
	}
	if resp.Score != nil {
		t.Error("non-score fake answer must not carry a score")
	}

	if f.Calls() != 3 {
		t.Errorf("Calls = %d, want 3", f.Calls())
	}
}

func TestDefer_firstTouchJoin(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(started)
		<-release
		w.Write([]byte(`{"success": true, "score": 0.9}`))
	}))
	defer srv.Close()

	g := NewGoogle(testCreds(), WithEndpoint(srv.URL))
	p := Defer(context.Background(), g, "tok", "1.2.3.4", recaptcha.KindScore)

	// The call is in flight before anyone awaits it.
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("deferred call never started")
	}

	close(release)
	resp, err := p.Response(context.Background())
	if err != nil {
		t.Fatalf("Response: %v", err)
	}
	if human, _ := resp.IsHuman(0.5); !human {
		t.Error("expected human")
	}

	// A second await returns the same resolved answer.
	again, err := p.Response(context.Background())
	if err != nil || again != resp {
		t.Errorf("second Response = (%p, %v), want same resolved value", again, err)
	}
}

func TestDefer_cancelAbortsInFlightCall(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(blocked)
		<-r.Context().Done()
	}))
	defer srv.Close()

	g := NewGoogle(testCreds(), WithEndpoint(srv.URL))
	p := Defer(context.Background(), g, "tok", "1.2.3.4", recaptcha.KindScore)
	<-blocked

	p.Cancel()
	p.Cancel() // idempotent

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled call never finished")
	}

	if _, err := p.Response(context.Background()); err == nil {
		t.Error("cancelled verification must not produce a response")
	}
}
