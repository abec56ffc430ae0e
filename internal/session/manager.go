// Package session owns the client-side session lifecycle: restoring a
// persisted credential at startup, polling it for expiry, and tearing it
// down on logout. The manager is the only writer of the persisted session;
// every other component reads through it.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"nivaran.org/internal/obs"
	"nivaran.org/internal/token"
)

// Sentinel errors shared with the transport layer.
var (
	ErrUnauthenticated = errors.New("session: no credential")
	ErrExpired         = errors.New("session: credential expired")
)

// State is the manager's lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateAnonymous
	StateAuthenticated
	StateAuthenticatedWarning
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	case StateAuthenticatedWarning:
		return "authenticated-warning"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const defaultCheckInterval = 30 * time.Second

// profileView is the slice of the opaque profile the manager itself needs.
// The full profile is stored and echoed back as-is.
type profileView struct {
	Department string `json:"department"`
}

// Manager owns the session lifecycle.
type Manager struct {
	mu        sync.Mutex
	store     Store
	state     State
	role      string
	profile   json.RawMessage
	warning   bool
	observers []func(State)

	now           func() time.Time
	warnThreshold time.Duration
	checkInterval time.Duration
}

// Option configures Manager behavior.
type Option func(*Manager)

// WithClock overrides the wall clock. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithExpiryWarning overrides how far ahead of expiry the warning raises.
func WithExpiryWarning(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.warnThreshold = d
		}
	}
}

// WithCheckInterval overrides the periodic check cadence.
func WithCheckInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.checkInterval = d
		}
	}
}

// NewManager returns a manager over the given store. Call Bootstrap before
// serving reads.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:         store,
		state:         StateUninitialized,
		now:           time.Now,
		warnThreshold: token.DefaultExpiryWarning,
		checkInterval: defaultCheckInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers an observer invoked after every state change. The
// presentation layer reads session state through this, never by polling
// internals.
func (m *Manager) Subscribe(fn func(State)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ExpiryWarning reports whether the credential is expiring soon.
func (m *Manager) ExpiryWarning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.warning
}

// Role returns the role decoded from the active credential, or "".
func (m *Manager) Role() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.role
}

// Profile returns the opaque profile echoed by the login endpoint.
func (m *Manager) Profile() json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profile
}

// Token returns the persisted credential, if any. Reads go to the store so
// the caller always sees the current persisted value, not a stale copy.
func (m *Manager) Token() (string, bool) {
	rec, err := m.store.Load()
	if err != nil || rec.Empty() {
		return "", false
	}
	return rec.Token, true
}

// Bootstrap restores a persisted session at process start. An absent,
// undecodable or expired credential leaves the manager anonymous; a broken
// one is also cleared from the store.
func (m *Manager) Bootstrap() error {
	m.setState(StateLoading)

	rec, err := m.store.Load()
	if err != nil {
		m.setState(StateAnonymous)
		return err
	}
	if rec.Empty() {
		m.setState(StateAnonymous)
		return nil
	}

	d, err := token.Decode(rec.Token)
	if err != nil || d.Expired(m.now()) {
		if clearErr := m.store.Clear(); clearErr != nil {
			obs.Logger().Warn("session: clear stale state", zap.Error(clearErr))
		}
		m.setState(StateAnonymous)
		return nil
	}

	m.mu.Lock()
	m.role = d.Role
	m.profile = rec.Profile
	m.warning = d.ExpiringSoon(m.now(), m.warnThreshold)
	var st State
	if m.warning {
		st = StateAuthenticatedWarning
	} else {
		st = StateAuthenticated
	}
	m.mu.Unlock()

	m.setState(st)
	obs.Logger().Info("session restored",
		zap.String("role", d.Role),
		zap.Bool("expiry_warning", m.ExpiryWarning()))
	return nil
}

// Start runs the periodic expiry check until ctx is cancelled. The check is
// idempotent and non-blocking; a tick racing a login or logout simply acts
// on whatever is persisted at that moment.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Check()
			}
		}
	}()
}

// Check re-reads and re-validates the persisted credential once. Absent
// credential is a no-op so a tick firing after logout does nothing.
func (m *Manager) Check() {
	rec, err := m.store.Load()
	if err != nil || rec.Empty() {
		return
	}

	d, err := token.Decode(rec.Token)
	if err != nil {
		m.ForceLogout(err)
		return
	}
	if d.Expired(m.now()) {
		m.ForceLogout(ErrExpired)
		return
	}
	m.setWarning(d.ExpiringSoon(m.now(), m.warnThreshold))
}

// Establish validates and persists a freshly issued credential and profile,
// then returns the role-specific landing route. Nothing is persisted if the
// credential does not decode or is already expired.
func (m *Manager) Establish(tok string, profile json.RawMessage) (Route, error) {
	d, err := token.Decode(tok)
	if err != nil {
		return "", err
	}
	if d.Expired(m.now()) {
		return "", ErrExpired
	}
	// A login that echoes no profile still yields a complete record.
	if len(profile) == 0 {
		profile = json.RawMessage(`{}`)
	}
	if err := m.store.Save(Record{Token: tok, Profile: profile}); err != nil {
		return "", err
	}

	var view profileView
	_ = json.Unmarshal(profile, &view)

	m.mu.Lock()
	m.role = d.Role
	m.profile = profile
	m.warning = d.ExpiringSoon(m.now(), m.warnThreshold)
	var st State
	if m.warning {
		st = StateAuthenticatedWarning
	} else {
		st = StateAuthenticated
	}
	m.mu.Unlock()
	m.setState(st)

	obs.Logger().Info("session established", zap.String("role", d.Role))
	return landingRoute(d.Role, view.Department), nil
}

// Logout clears the persisted session and returns the login route for the
// role held before clearing. Calling it again is a safe no-op that yields
// the generic route.
func (m *Manager) Logout() Route {
	m.mu.Lock()
	role := m.role
	m.role = ""
	m.profile = nil
	m.warning = false
	m.mu.Unlock()

	if err := m.store.Clear(); err != nil {
		obs.Logger().Warn("session: clear on logout", zap.Error(err))
	}
	m.setState(StateAnonymous)
	return loginRoute(role)
}

// ForceLogout is Logout for cases the client decided on its own: a missing,
// undecodable or expired credential, or a server-side rejection.
func (m *Manager) ForceLogout(reason error) Route {
	obs.CountForcedLogout()
	obs.Logger().Info("forced logout", zap.Error(reason))
	return m.Logout()
}

// RaiseExpiryWarning raises the warning flag if a session is active. The
// transport calls this after every settled request so the warning stays
// live even when the periodic timer is delayed. It never lowers the flag;
// only the periodic check does that.
func (m *Manager) RaiseExpiryWarning() {
	m.mu.Lock()
	active := m.state == StateAuthenticated || m.state == StateAuthenticatedWarning
	m.mu.Unlock()
	if active {
		m.setWarning(true)
	}
}

func (m *Manager) setWarning(on bool) {
	m.mu.Lock()
	if m.state != StateAuthenticated && m.state != StateAuthenticatedWarning {
		m.mu.Unlock()
		return
	}
	raised := on && !m.warning
	m.warning = on
	var st State
	if on {
		st = StateAuthenticatedWarning
	} else {
		st = StateAuthenticated
	}
	changed := st != m.state
	m.state = st
	observers := m.snapshotObserversLocked()
	m.mu.Unlock()

	if raised {
		obs.CountExpiryWarning()
	}
	if changed {
		for _, fn := range observers {
			fn(st)
		}
	}
}

func (m *Manager) setState(st State) {
	m.mu.Lock()
	changed := st != m.state
	m.state = st
	observers := m.snapshotObserversLocked()
	m.mu.Unlock()

	if changed {
		for _, fn := range observers {
			fn(st)
		}
	}
}

func (m *Manager) snapshotObserversLocked() []func(State) {
	out := make([]func(State), len(m.observers))
	copy(out, m.observers)
	return out
}
