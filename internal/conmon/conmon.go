// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conmon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/skiff/internal/bridge"
)

// =============================================================================
// STATES
// =============================================================================

// State is the monitor's view of the bridge connection.
type State int

const (
	// StateDisconnected means no probe has settled the question yet.
	StateDisconnected State = iota
	// StateConnecting means a probe or reconnection pass is underway.
	StateConnecting
	// StateConnected means the last probe or live call succeeded with a
	// validated response shape.
	StateConnected
	// StateOffline means the bridge could not be reached.
	StateOffline
	// StateError means the bridge answered but with a fault retrying
	// cannot fix, such as rejected credentials.
	StateError
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateOffline:
		return "offline"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// ProbeFunc performs one connectivity check against the bridge. It
// must return nil only for a response with a validated shape.
type ProbeFunc func(ctx context.Context) error

// ReachFunc answers whether the environment currently has network
// reachability toward the bridge host. It gates the passive loop; it
// proves nothing about the bridge itself.
type ReachFunc func(ctx context.Context) bool

// Config tunes the monitor.
type Config struct {
	// MaxRetries is the number of probe attempts in one reconnection
	// pass (default: 5).
	MaxRetries int
	// BaseDelay is the wait before the first attempt; each further
	// attempt doubles it (default: 1s).
	BaseDelay time.Duration
	// CapDelay bounds the exponential growth (default: 10s).
	CapDelay time.Duration
	// CheckInterval is the passive re-probe period. Zero disables the
	// passive loop.
	CheckInterval time.Duration
	// ForcedOffline pins the monitor offline: no probes run and manual
	// retry is refused until the configuration changes.
	ForcedOffline bool
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.CapDelay <= 0 {
		c.CapDelay = 10 * time.Second
	}
	return c
}

// probeTimeout bounds a single passive probe.
const probeTimeout = 10 * time.Second

// ErrForcedOffline is returned when a reconnect is requested while
// configuration pins the client offline.
var ErrForcedOffline = errors.New("offline mode is forced by configuration")

// =============================================================================
// MONITOR
// =============================================================================

// Monitor is the connection state machine. All exported methods are
// safe for concurrent use.
type Monitor struct {
	cfg    Config
	probe  ProbeFunc
	logger zerolog.Logger

	mu           sync.Mutex
	state        State
	latched      bool
	lastErr      error
	lastProbe    time.Time
	attempts     int
	reach        ReachFunc
	wasReachable bool

	// passMu serializes reconnection passes; a caller arriving during
	// a pass blocks and then observes its outcome.
	passMu sync.Mutex

	loopCancel context.CancelFunc
	wg         sync.WaitGroup
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the monitor's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithReachability sets the reachability check used by the passive
// loop. Without one the loop assumes the network is up.
func WithReachability(reach ReachFunc) Option {
	return func(m *Monitor) {
		m.reach = reach
	}
}

// New creates a Monitor around the given probe.
func New(cfg Config, probe ProbeFunc, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:          cfg.withDefaults(),
		probe:        probe,
		logger:       zerolog.Nop(),
		state:        StateDisconnected,
		wasReachable: true,
	}
	if m.cfg.ForcedOffline {
		m.state = StateOffline
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current connection state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether the bridge is currently considered
// reachable.
func (m *Monitor) Connected() bool {
	return m.State() == StateConnected
}

// Latched reports whether the sticky offline latch is set. While
// latched, callers should skip live attempts and degrade immediately.
func (m *Monitor) Latched() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latched
}

// Snapshot is a point-in-time view of the monitor for status display.
type Snapshot struct {
	State         State
	Latched       bool
	ForcedOffline bool
	LastError     error
	LastProbe     time.Time
	Attempts      int
}

// Snapshot returns the current monitor state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:         m.state,
		Latched:       m.latched,
		ForcedOffline: m.cfg.ForcedOffline,
		LastError:     m.lastErr,
		LastProbe:     m.lastProbe,
		Attempts:      m.attempts,
	}
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// setStateLocked transitions to s, logging only actual changes.
// Caller must hold m.mu.
func (m *Monitor) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.logger.Debug().Stringer("from", m.state).Stringer("to", s).Msg("connection state changed")
	m.state = s
}

// setConnectedLocked enters the connected state. Reaching the bridge
// is the strongest recovery evidence there is, so the latch clears
// with it. Caller must hold m.mu.
func (m *Monitor) setConnectedLocked() {
	m.setStateLocked(StateConnected)
	m.latched = false
	m.lastErr = nil
}

// MarkSuccess records a successful live bridge call with a validated
// response shape, which settles connectivity without a probe.
func (m *Monitor) MarkSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setConnectedLocked()
}

// MarkNetworkFailure records a network-classified failure observed
// during a live call and drops the monitor to offline. The sticky
// latch stays clear; the next completion still gets its reconnection
// pass.
func (m *Monitor) MarkNetworkFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = err
	m.setStateLocked(StateOffline)
}

// stateForError picks the terminal state for an exhausted pass or a
// failed probe. Auth rejections and malformed responses are faults
// retrying cannot fix.
func stateForError(err error) State {
	if bridge.IsAuth(err) || bridge.IsInvalidResponse(err) {
		return StateError
	}
	return StateOffline
}

// =============================================================================
// RECONNECTION PASS
// =============================================================================

// BackoffDelay returns the wait before reconnection attempt k
// (1-based): base doubled per attempt, never above limit.
func BackoffDelay(attempt int, base, limit time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d > limit || d <= 0 {
			d = limit
			break
		}
	}
	if d > limit {
		d = limit
	}
	return d
}

// Reconnect runs one reconnection pass: up to MaxRetries probes, each
// preceded by its backoff delay. Success transitions to connected and
// returns nil. Exhaustion sets the sticky offline latch and returns
// the last probe error. Passes are serialized; a concurrent caller
// blocks and then sees the settled state without probing again.
func (m *Monitor) Reconnect(ctx context.Context) error {
	m.passMu.Lock()
	defer m.passMu.Unlock()

	m.mu.Lock()
	if m.cfg.ForcedOffline {
		m.mu.Unlock()
		return ErrForcedOffline
	}
	if m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	m.setStateLocked(StateConnecting)
	m.attempts = 0
	m.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= m.cfg.MaxRetries; attempt++ {
		delay := BackoffDelay(attempt, m.cfg.BaseDelay, m.cfg.CapDelay)
		if err := waitFor(ctx, delay); err != nil {
			m.mu.Lock()
			m.setStateLocked(StateDisconnected)
			m.mu.Unlock()
			return err
		}

		m.mu.Lock()
		m.attempts = attempt
		m.mu.Unlock()

		err := m.probe(ctx)

		m.mu.Lock()
		m.lastProbe = time.Now()
		if err == nil {
			m.setConnectedLocked()
			m.mu.Unlock()
			m.logger.Info().Int("attempt", attempt).Msg("bridge reachable")
			return nil
		}
		m.mu.Unlock()

		lastErr = err
		m.logger.Debug().Err(err).
			Int("attempt", attempt).
			Int("max_retries", m.cfg.MaxRetries).
			Msg("bridge probe failed")
	}

	m.mu.Lock()
	m.lastErr = lastErr
	m.latched = true
	m.setStateLocked(stateForError(lastErr))
	m.mu.Unlock()

	m.logger.Warn().Err(lastErr).Int("attempts", m.cfg.MaxRetries).Msg("reconnection pass exhausted")
	return fmt.Errorf("reconnect failed after %d attempts: %w", m.cfg.MaxRetries, lastErr)
}

// Retry is the manual reconnect: it clears the sticky offline latch
// and runs a fresh pass. Refused while offline mode is forced.
func (m *Monitor) Retry(ctx context.Context) error {
	m.mu.Lock()
	if m.cfg.ForcedOffline {
		m.mu.Unlock()
		return ErrForcedOffline
	}
	m.latched = false
	m.mu.Unlock()

	return m.Reconnect(ctx)
}

// waitFor sleeps for d or until ctx is done.
func waitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// =============================================================================
// PASSIVE LOOP
// =============================================================================

// Start launches the passive monitoring loop: a ticker that re-probes
// a non-connected monitor, but only while the environment reports
// network reachability. No-op when CheckInterval is zero or offline
// mode is forced.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.loopCancel != nil || m.cfg.CheckInterval <= 0 || m.cfg.ForcedOffline {
		m.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.loopCancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop(loopCtx)
}

// Stop terminates the passive loop and waits for it to exit. Safe to
// call without Start and safe to call twice.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.loopCancel
	m.loopCancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick runs one passive cycle: check reachability, clear the latch on
// a down-to-up edge, and probe unless already connected.
func (m *Monitor) tick(ctx context.Context) {
	m.mu.Lock()
	reach := m.reach
	m.mu.Unlock()

	reachable := true
	if reach != nil {
		reachable = reach(ctx)
	}

	m.mu.Lock()
	upEdge := reachable && !m.wasReachable
	m.wasReachable = reachable
	if upEdge && m.latched {
		// The environment came back. This is the online-event analog,
		// one of the two ways the sticky latch clears.
		m.latched = false
		m.logger.Debug().Msg("reachability restored, offline latch cleared")
	}
	state := m.state
	m.mu.Unlock()

	if !reachable || state == StateConnected {
		return
	}

	m.mu.Lock()
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	err := m.probe(probeCtx)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastProbe = time.Now()
	if err != nil {
		m.lastErr = err
		m.setStateLocked(stateForError(err))
		return
	}
	m.setConnectedLocked()
}

// =============================================================================
// REACHABILITY
// =============================================================================

// DefaultReachability returns a ReachFunc that answers by dialing
// addr (host:port) over TCP.
func DefaultReachability(addr string) ReachFunc {
	return func(ctx context.Context) bool {
		dialCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()

		var d net.Dialer
		conn, err := d.DialContext(dialCtx, "tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}
}

// BridgeAddr extracts a dialable host:port from a bridge base URL,
// defaulting the port from the scheme.
func BridgeAddr(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid bridge URL %q: %w", rawURL, err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("no host in bridge URL %q", rawURL)
	}
	port := u.Port()
	if port == "" {
		if u.Scheme == "http" {
			port = "80"
		} else {
			port = "443"
		}
	}
	return net.JoinHostPort(host, port), nil
}
