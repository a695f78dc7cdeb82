package payment

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// DefaultTickInterval is how often live sessions are checked for expiry.
	DefaultTickInterval = 500 * time.Millisecond
	// DefaultDisplayDelay is how long a success stays on screen before the export continues.
	DefaultDisplayDelay = 1500 * time.Millisecond
	// DefaultRetention keeps finished sessions readable for a while after their window.
	DefaultRetention = 15 * time.Minute
)

// ManagerConfig configures a Manager. Zero fields take the defaults above.
type ManagerConfig struct {
	Expected     decimal.Decimal
	Window       time.Duration
	TickInterval time.Duration
	DisplayDelay time.Duration
	Retention    time.Duration
	Now          func() time.Time
	// OnVerified is the export continuation; it runs once per succeeded session,
	// after DisplayDelay, and the session is closed afterwards.
	OnVerified func(s *Session)
	Log        *zap.SugaredLogger
}

// Manager owns the live sessions.
type Manager struct {
	cfg ManagerConfig

	mu       sync.Mutex
	sessions map[string]*Session
	timers   map[string]*time.Timer
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.DisplayDelay <= 0 {
		cfg.DisplayDelay = DefaultDisplayDelay
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		timers:   make(map[string]*time.Timer),
	}
}

// Now is the manager's clock.
func (m *Manager) Now() time.Time { return m.cfg.Now() }

// Create opens a session for amount, or for the configured price when amount is zero.
func (m *Manager) Create(amount decimal.Decimal) *Session {
	if amount.IsZero() {
		amount = m.cfg.Expected
	}
	s := NewSession(amount, m.cfg.Window, m.cfg.Now())
	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	m.cfg.Log.Infow("Payment session opened", "session", s.ID(), "amount", amount.String(), "window", m.cfg.Window)
	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Retry replaces session id with a fresh one.
func (m *Manager) Retry(id string) (*Session, error) {
	old, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	next, err := old.Retry(m.cfg.Now())
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	delete(m.sessions, id)
	m.sessions[next.ID()] = next
	m.mu.Unlock()
	m.cfg.Log.Infow("Payment session retried", "old", id, "session", next.ID())
	return next, nil
}

// Close cancels a session and any pending continuation.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	if t, pending := m.timers[id]; pending {
		t.Stop()
		delete(m.timers, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	return nil
}

// Succeeded schedules the export continuation for a session whose verification
// was accepted. Calling it twice for the same session is a no-op.
func (m *Manager) Succeeded(s *Session) {
	if s.Status() != Succeeded {
		return
	}
	id := s.ID()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, pending := m.timers[id]; pending {
		return
	}
	m.timers[id] = time.AfterFunc(m.cfg.DisplayDelay, func() {
		if m.cfg.OnVerified != nil {
			m.cfg.OnVerified(s)
		}
		m.mu.Lock()
		delete(m.timers, id)
		delete(m.sessions, id)
		m.mu.Unlock()
		s.Close()
	})
}

// TickAll expires sessions whose window ran out and evicts closed ones and those
// past their retention.
func (m *Manager) TickAll() {
	now := m.cfg.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		st := s.Tick(now)
		_, pending := m.timers[id]
		if st != Closed && !pending && s.WindowStart().Add(s.Window()).Add(m.cfg.Retention).Before(now) {
			s.Close()
			st = Closed
		}
		if st == Closed {
			delete(m.sessions, id)
		}
	}
}

// Len is the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Run ticks until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			for id, t := range m.timers {
				t.Stop()
				delete(m.timers, id)
			}
			m.mu.Unlock()
			return ctx.Err()
		case <-ticker.C:
			m.TickAll()
		}
	}
}
