// Package session tracks the authenticated identity on the device. It
// persists the session between runs and notifies subscribers whenever the
// identity changes.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/erazemk/buddybuy/internal/auth"
	"github.com/erazemk/buddybuy/internal/localstore"
	"github.com/erazemk/buddybuy/internal/model"
	"github.com/erazemk/buddybuy/internal/remote"
)

// ErrNotSignedIn is returned by operations that need a session.
var ErrNotSignedIn = errors.New("not signed in")

// Authenticator is the account side of the remote service.
type Authenticator interface {
	SignUp(ctx context.Context, email, password string) (*remote.Session, error)
	SignIn(ctx context.Context, email, password string) (*remote.Session, error)
	SignOut(ctx context.Context) error
}

// Listener is called with the new identity, or nil after sign-out.
type Listener func(*model.Identity)

// Manager owns the current session.
type Manager struct {
	auth   Authenticator
	store  localstore.Store
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	current *remote.Session

	subMu   sync.Mutex
	subs    map[int]Listener
	nextSub int
}

// NewManager creates a manager with no session. Call Restore to load the
// persisted one.
func NewManager(a Authenticator, store localstore.Store) *Manager {
	return &Manager{
		auth:   a,
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
		subs:   make(map[int]Listener),
	}
}

// WithLogger sets the logger.
func (m *Manager) WithLogger(l *slog.Logger) *Manager {
	m.logger = l
	return m
}

// Restore loads the persisted session. Sessions whose token has expired or
// cannot be decoded are discarded. It returns the restored identity, or nil.
func (m *Manager) Restore(ctx context.Context) (*model.Identity, error) {
	var saved remote.Session
	ok, err := localstore.GetJSON(ctx, m.store, localstore.SessionKey, &saved)
	if err != nil {
		m.logger.Warn("discarding unreadable session", "error", err)
		m.forget(ctx)
		return nil, nil
	}
	if !ok {
		return nil, nil
	}

	claims, err := auth.DecodeToken(saved.Token)
	if err != nil {
		m.logger.Warn("discarding session with invalid token", "error", err)
		m.forget(ctx)
		return nil, nil
	}
	if claims.Expired(m.now()) {
		m.logger.Info("session expired", "user", claims.Email)
		m.forget(ctx)
		return nil, nil
	}

	saved.User = claims.Identity()
	m.set(&saved)
	id := saved.User
	return &id, nil
}

// SignUp creates an account and signs in to it.
func (m *Manager) SignUp(ctx context.Context, email, password string) (model.Identity, error) {
	s, err := m.auth.SignUp(ctx, email, password)
	if err != nil {
		return model.Identity{}, err
	}
	return m.begin(ctx, s)
}

// SignIn signs in with email and password.
func (m *Manager) SignIn(ctx context.Context, email, password string) (model.Identity, error) {
	s, err := m.auth.SignIn(ctx, email, password)
	if err != nil {
		return model.Identity{}, err
	}
	return m.begin(ctx, s)
}

// SignOut ends the session. The server is asked to revoke the token, but the
// local session is cleared even when that fails.
func (m *Manager) SignOut(ctx context.Context) error {
	if m.Current() == nil {
		return ErrNotSignedIn
	}

	if err := m.auth.SignOut(ctx); err != nil {
		m.logger.Warn("remote sign-out failed", "error", err)
	}
	m.forget(ctx)
	m.set(nil)
	return nil
}

// Current returns the signed-in identity, or nil.
func (m *Manager) Current() *model.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	id := m.current.User
	return &id
}

// Token returns the bearer token of the current session, or an empty string.
// It satisfies remote.TokenSource.
func (m *Manager) Token(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return "", nil
	}
	return m.current.Token, nil
}

// Subscribe registers fn for identity changes and returns a function that
// unregisters it. Listeners run synchronously in the goroutine that changed
// the session.
func (m *Manager) Subscribe(fn Listener) func() {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn

	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Manager) begin(ctx context.Context, s *remote.Session) (model.Identity, error) {
	if err := localstore.SetJSON(ctx, m.store, localstore.SessionKey, s); err != nil {
		return model.Identity{}, fmt.Errorf("saving session: %w", err)
	}
	m.set(s)
	m.logger.Info("signed in", "user", s.User.Email)
	return s.User, nil
}

func (m *Manager) forget(ctx context.Context) {
	if err := m.store.Delete(ctx, localstore.SessionKey); err != nil {
		m.logger.Warn("clearing persisted session", "error", err)
	}
}

// set replaces the session and notifies listeners when the identity changed.
func (m *Manager) set(s *remote.Session) {
	m.mu.Lock()
	changed := !sameUser(m.current, s)
	m.current = s
	m.mu.Unlock()

	if !changed {
		return
	}

	var next *model.Identity
	if s != nil {
		id := s.User
		next = &id
	}

	m.subMu.Lock()
	listeners := make([]Listener, 0, len(m.subs))
	for i := 0; i < m.nextSub; i++ {
		if fn, ok := m.subs[i]; ok {
			listeners = append(listeners, fn)
		}
	}
	m.subMu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
}

func sameUser(a, b *remote.Session) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.User.ID == b.User.ID
}
