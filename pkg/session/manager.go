// Package session maintains a client-side authenticated session: it
// restores tokens from a persistent store, decodes the identity token for
// optimistic display, silently renews the session against the identity
// provider before it expires, and fans out every state change to
// subscribers.
//
// The automaton is fail-closed: a session that cannot be renewed is logged
// out rather than kept alive stale. Logout wins every race with an
// in-flight renewal.
package session

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrRenewalFailed wraps the provider error that ended a session.
var ErrRenewalFailed = errors.New("session: renewal failed")

// Config assembles a Manager. Store and Provider are required.
type Config struct {
	Store    Store
	Provider Provider
	Logger   *zap.Logger
}

// Manager is the session automaton. One instance owns one logical session;
// construct it explicitly and pass it to the collaborators that need it.
//
// All state transitions are serialized. Subscriber callbacks run
// synchronously on the transitioning goroutine, in slot order; they may
// subscribe or unsubscribe but must not call other Manager methods.
type Manager struct {
	store    Store
	provider Provider
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	started bool
	state   *State
	timer   *time.Timer

	// delay the live timer was armed with; kept for tests
	timerDelay time.Duration

	// non-nil exactly while a renewal is in flight; closed when it
	// settles
	renewDone chan struct{}

	subscribers registry[func(*State)]
}

func New(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("session: config missing Store")
	}
	if cfg.Provider == nil {
		return nil, errors.New("session: config missing Provider")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:    cfg.Store,
		provider: cfg.Provider,
		logger:   logger,
		now:      time.Now,
		state:    &State{},
	}, nil
}

// Start restores the session from the store. When persisted tokens are
// found, the session is published as authenticated immediately from the
// decoded identity token, then validated asynchronously with a silent
// renewal; validation failure logs the session out. When nothing usable is
// stored, the state is simply unauthenticated.
//
// Start must be called exactly once before any other method.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		m.logger.Warn("session manager started more than once")
		return nil
	}
	m.started = true

	snap, err := m.store.Load()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if snap == nil {
		m.setStateLocked(&State{})
		m.mu.Unlock()
		return nil
	}

	profile, err := DecodeProfile(snap.IDToken)
	if err != nil {
		m.logger.Error("stored identity token unusable", zap.Error(err))
		m.setStateLocked(&State{})
		m.mu.Unlock()
		return nil
	}

	// optimistic: publish the restored session before the provider has
	// confirmed it, so consumers can render immediately
	m.setStateLocked(&State{
		User:            profile,
		IDToken:         snap.IDToken,
		AccessToken:     snap.AccessToken,
		ExpiresAtMillis: snap.ExpiresAtMillis,
	})
	m.armTimerLocked(snap.ExpiresAtMillis)
	m.mu.Unlock()

	go m.renew()
	return nil
}

// Current returns the latest published state.
func (m *Manager) Current() *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureStartedLocked()
	return m.state
}

// Authenticated reports whether the session currently has a user.
func (m *Manager) Authenticated() bool {
	return m.Current().Authenticated()
}

// Subscribe registers a callback invoked on every state change. The
// returned handle identifies the subscription for Unsubscribe.
func (m *Manager) Subscribe(fn func(*State)) int {
	return m.subscribers.add(fn)
}

// Unsubscribe removes a subscription. Safe to call from inside a
// notification; callbacks later in the same pass observe the removal.
func (m *Manager) Unsubscribe(id int) {
	m.subscribers.remove(id)
}

// LoginURL builds the provider's interactive login URL.
func (m *Manager) LoginURL(state string) string {
	return m.provider.AuthorizeURL(state)
}

// LoginFromGrant installs a grant obtained from the provider's interactive
// callback: tokens are persisted, the state is published, and renewal is
// scheduled.
func (m *Manager) LoginFromGrant(grant *Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureStartedLocked()
	return m.applyGrantLocked(grant)
}

// Logout ends the session. The logged-out state is published synchronously
// before anything else, so a renewal completing afterwards can never
// resurrect the session; any renewal already in flight is waited for (its
// result is discarded) before the persisted fields are cleared, so it
// cannot re-write them.
//
// Terminal until the next Start.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	m.ensureStartedLocked()
	m.stopTimerLocked()
	m.setStateLocked(&State{LoggedOut: true})
	inflight := m.renewDone
	m.mu.Unlock()

	if inflight != nil {
		<-inflight
	}

	if err := m.store.Clear(); err != nil {
		m.logger.Error("failed to clear persisted session", zap.Error(err))
	}

	if err := m.provider.Logout(ctx); err != nil {
		m.logger.Error("provider logout failed", zap.Error(err))
	}
}

// Close stops the renewal timer without touching persisted state.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()
}

// renew performs one silent renewal. On success the new tokens are
// persisted and the timer re-armed; on failure the session is logged out.
// A result arriving after logout is discarded.
func (m *Manager) renew() {
	m.mu.Lock()
	if m.state.LoggedOut || m.renewDone != nil {
		m.mu.Unlock()
		return
	}
	done := make(chan struct{})
	m.renewDone = done
	m.mu.Unlock()

	grant, err := m.provider.CheckSession(context.Background())

	m.mu.Lock()
	m.renewDone = nil
	defer close(done)

	if m.state.LoggedOut {
		// logout raced the renewal and wins
		m.mu.Unlock()
		return
	}

	if err != nil {
		m.logger.Error("session renewal failed", zap.Error(err))
		m.mu.Unlock()
		m.Logout(context.Background())
		return
	}

	if err := m.applyGrantLocked(grant); err != nil {
		m.logger.Error("couldn't apply renewed session", zap.Error(err))
		m.mu.Unlock()
		m.Logout(context.Background())
		return
	}
	m.mu.Unlock()
}

// applyGrantLocked persists and publishes a grant, and re-arms the renewal
// timer at half the new remaining lifetime.
func (m *Manager) applyGrantLocked(grant *Grant) error {
	expiresAt := m.now().Add(grant.ExpiresIn)
	millis := strconv.FormatInt(expiresAt.UnixMilli(), 10)

	snap := &Snapshot{
		IDToken:         grant.IDToken,
		AccessToken:     grant.AccessToken,
		ExpiresAtMillis: millis,
	}
	if err := m.store.Save(snap); err != nil {
		return err
	}

	profile := grant.Profile
	if profile == nil {
		decoded, err := DecodeProfile(grant.IDToken)
		if err != nil {
			return err
		}
		profile = decoded
	}

	m.setStateLocked(&State{
		User:            profile,
		IDToken:         grant.IDToken,
		AccessToken:     grant.AccessToken,
		ExpiresAtMillis: millis,
	})
	m.armTimerLocked(millis)
	return nil
}

// armTimerLocked schedules the single renewal timer at half the remaining
// time to expiry. The fraction is a fixed safety margin: renewal lands well
// before expiry while tolerating clock drift. Any previous timer is stopped
// first, so at most one is ever outstanding.
func (m *Manager) armTimerLocked(expiresAtMillis string) {
	m.stopTimerLocked()

	expMillis, err := strconv.ParseInt(expiresAtMillis, 10, 64)
	if err != nil {
		m.logger.Error("couldn't parse session expiry", zap.String("expires", expiresAtMillis))
		return
	}

	remaining := time.UnixMilli(expMillis).Sub(m.now())
	if remaining <= 0 {
		// already expired; renew immediately rather than waiting
		go m.renew()
		return
	}

	m.timerDelay = remaining / 2
	m.timer = time.AfterFunc(m.timerDelay, m.renew)
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
		m.timerDelay = 0
	}
}

// setStateLocked replaces the state value and notifies subscribers in slot
// order.
func (m *Manager) setStateLocked(state *State) {
	m.state = state
	m.subscribers.each(func(fn func(*State)) {
		fn(state)
	})
}

func (m *Manager) ensureStartedLocked() {
	if !m.started {
		panic("session: manager used before Start")
	}
}
