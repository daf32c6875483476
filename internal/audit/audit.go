// Package audit records verification attempts for observability.
//
// Every resolution attempt produces one Event, recorded after the trust
// decision has been made. Recording is strictly an observer: the decision
// path never consults it and never fails because of it.
//
// Two implementations of the Recorder interface are provided:
//   - Memory: in-process, for testing and development.
//   - Postgres: durable, for production use.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Event is one verification attempt and its outcome.
type Event struct {
	ID          uuid.UUID  `json:"id"`
	Kind        string     `json:"kind"`
	TokenDigest string     `json:"token_digest"`
	RemoteIP    string     `json:"remote_ip"`
	Path        string     `json:"path"`
	Action      string     `json:"action,omitempty"`
	Hostname    string     `json:"hostname,omitempty"`
	Score       *float64   `json:"score,omitempty"`
	Success     bool       `json:"success"`
	Fake        bool       `json:"fake"`
	Took        time.Duration `json:"took"`
	At          time.Time  `json:"at"`
}

// Recorder persists verification events.
type Recorder interface {
	Record(ctx context.Context, ev *Event) error
}

// DigestToken returns a hex SHA-256 of a challenge token. Raw tokens are
// single-use secrets and are never stored.
func DigestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
