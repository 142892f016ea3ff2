package session

import (
	"fmt"
	"time"

	"sokol-player/work/metrics"

	"github.com/puzpuzpuz/xsync/v3"
)

// Session describes one active client connection through the delivery
// pipeline. Sessions are ephemeral: created when a client connects, removed
// when either side closes, never persisted and never exposed beyond the
// connection's own lifetime.
type Session struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`      // proxy, transcode, passthrough or webm
	URL       string    `json:"url"`       // upstream media URL (obfuscated by the handler when configured)
	Remote    string    `json:"remote"`    // client address
	StartedAt time.Time `json:"startedAt"`
}

// Registry is the concurrent table of active sessions shared by the stream
// relay and the transcode engine. It exists for observability only; nothing
// in the delivery path depends on it.
type Registry struct {
	sessions *xsync.MapOf[string, *Session]
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: xsync.NewMapOf[string, *Session](),
	}
}

// Add registers a session for an incoming connection and returns it. The ID
// combines the client address with a nanosecond timestamp, unique enough for
// a table that only ever holds live connections.
func (r *Registry) Add(mode, url, remote string) *Session {
	s := &Session{
		ID:        fmt.Sprintf("%s-%d", remote, time.Now().UnixNano()),
		Mode:      mode,
		URL:       url,
		Remote:    remote,
		StartedAt: time.Now(),
	}
	r.sessions.Store(s.ID, s)
	metrics.ActiveSessions.WithLabelValues(mode).Inc()
	return s
}

// Remove drops a session when its connection ends.
func (r *Registry) Remove(s *Session) {
	if s == nil {
		return
	}
	if _, loaded := r.sessions.LoadAndDelete(s.ID); loaded {
		metrics.ActiveSessions.WithLabelValues(s.Mode).Dec()
	}
}

// Snapshot returns the currently active sessions.
func (r *Registry) Snapshot() []*Session {
	out := make([]*Session, 0, r.sessions.Size())
	r.sessions.Range(func(_ string, s *Session) bool {
		out = append(out, s)
		return true
	})
	return out
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	return r.sessions.Size()
}
