package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/domain"
)

// session is one live username occupying the room.
type session struct {
	token        string
	lastActivity time.Time
	timer        *time.Timer
	// gen is bumped on every refresh; a fired check that captured an
	// older gen belongs to a replaced schedule and must no-op.
	gen uint64
}

// Registry owns every live session. Callers are expected to have
// validated the username shape before touching the registry.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session
	closed   bool

	issuer    *TokenIssuer
	threshold time.Duration
	poll      time.Duration

	onExpire func(username string)
}

func NewRegistry(issuer *TokenIssuer, threshold, poll time.Duration) *Registry {
	return &Registry{
		sessions:  make(map[string]*session),
		issuer:    issuer,
		threshold: threshold,
		poll:      poll,
	}
}

// OnExpire installs the callback invoked when an idle session is
// removed. Must be set during wiring, before any session exists. The
// callback runs under the registry lock and must not call back into
// the registry.
func (r *Registry) OnExpire(fn func(username string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExpire = fn
}

// TryCreate mints a session for username. Fails with
// domain.ErrIdentityTaken while a live session holds the name. A rejoin
// after expiry gets a brand-new session and a brand-new token.
func (r *Registry) TryCreate(username string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", domain.ErrIdentityTaken
	}
	if _, ok := r.sessions[username]; ok {
		return "", domain.ErrIdentityTaken
	}

	s := &session{
		token:        r.issuer.Issue(username),
		lastActivity: time.Now(),
	}
	r.sessions[username] = s
	r.schedule(username, s)

	log.Info().Str("module", "app.registry").Str("username", username).Msg("session created")
	return s.token, nil
}

// Authenticate reports whether username has a live session whose token
// exactly equals the supplied one. Absent sessions and empty tokens
// never authenticate.
func (r *Registry) Authenticate(username, token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[username]
	return ok && token != "" && s.token == token
}

// Refresh resets the idle clock for username. Unknown usernames are
// ignored.
func (r *Registry) Refresh(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[username]
	if !ok {
		return
	}
	s.timer.Stop()
	s.gen++
	s.lastActivity = time.Now()
	r.schedule(username, s)
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// schedule arms the next poll tick for s. Caller holds r.mu.
func (r *Registry) schedule(username string, s *session) {
	gen := s.gen
	s.timer = time.AfterFunc(r.poll, func() {
		r.check(username, gen)
	})
}

// check is the expiration poll. It re-reads the session under the lock
// and no-ops when the session is gone or was refreshed since this tick
// was scheduled (stale timer).
func (r *Registry) check(username string, gen uint64) {
	r.mu.Lock()
	s, ok := r.sessions[username]
	if !ok || s.gen != gen || r.closed {
		r.mu.Unlock()
		return
	}
	if time.Since(s.lastActivity) <= r.threshold {
		// Still alive, just not due yet.
		r.schedule(username, s)
		r.mu.Unlock()
		return
	}
	delete(r.sessions, username)
	// The callback runs inside the critical section so a rejoin racing
	// this expiry cannot be admitted (and broadcast its join) before
	// the departure notice went out.
	if r.onExpire != nil {
		r.onExpire(username)
	}
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("username", username).Msg("session expired")
}

// Close stops every timer and drops every session. Nothing is
// broadcast; the process is going away.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for username, s := range r.sessions {
		s.timer.Stop()
		delete(r.sessions, username)
	}
}
