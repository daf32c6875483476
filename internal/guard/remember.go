package guard

import (
	"context"
	"strconv"
	"time"

	"github.com/verigate/verigate/internal/session"
	"go.uber.org/zap"
)

// DefaultMarkerKey is the session key the remember marker is stored under.
const DefaultMarkerKey = "_recaptcha"

// foreverMarker is the sentinel value for a marker that never expires.
const foreverMarker = int64(0)

// rememberCache reads and writes the remembered-trust marker. The marker
// value is the absolute unix expiry instant, 0 meaning never. Expired
// markers are deleted by the reader; there is no sweep. A request that
// finds its marker expired falls through to full verification and, on
// success, stores a fresh one.
type rememberCache struct {
	store  session.Store
	now    func() time.Time
	logger *zap.Logger
}

// hasActiveMarker reports whether key holds an unexpired marker. Store
// read errors count as no marker, so a flaky session backend degrades to
// an extra verification round trip and never to a silent pass.
func (rc *rememberCache) hasActiveMarker(ctx context.Context, key string) bool {
	val, ok, err := rc.store.Get(ctx, key)
	if err != nil {
		rc.logger.Warn("remember: read marker", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}

	expiresAt, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// Unparseable marker: treat as absent and clear it.
		_ = rc.store.Forget(ctx, key)
		return false
	}

	if expiresAt == foreverMarker {
		return true
	}
	if rc.now().Unix() < expiresAt {
		return true
	}

	// Lazy cleanup: the reader that detects expiry deletes the marker.
	if err := rc.store.Forget(ctx, key); err != nil {
		rc.logger.Warn("remember: delete expired marker", zap.String("key", key), zap.Error(err))
	}
	return false
}

// storeMarker writes a marker under key per the policy. Unless the policy
// renews, an already-active marker wins and the write is skipped.
func (rc *rememberCache) storeMarker(ctx context.Context, key string, policy RememberPolicy) {
	if !policy.Renew && rc.hasActiveMarker(ctx, key) {
		return
	}

	var value string
	var ttl time.Duration
	if policy.TTLMinutes == 0 {
		value = strconv.FormatInt(foreverMarker, 10)
	} else {
		ttl = time.Duration(policy.TTLMinutes) * time.Minute
		value = strconv.FormatInt(rc.now().Add(ttl).Unix(), 10)
	}

	if err := rc.store.Put(ctx, key, value, ttl); err != nil {
		rc.logger.Warn("remember: store marker", zap.String("key", key), zap.Error(err))
	}
}
