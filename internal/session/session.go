// Package session tracks anonymous and logged-in visitors, their analysis
// credits and the single analysis each one may have in flight.
package session

import (
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/quantoda/internal/domain"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// State is the derived state of a session.
type State string

const (
	StateAnonymous              State = "anonymous"
	StateAuthenticatedCredits   State = "authenticated-with-credits"
	StateAuthenticatedNoCredits State = "authenticated-no-credits"
)

const (
	DefaultTTL                = 24 * time.Hour
	DefaultFreeCredits        = 1
	DefaultCreditsPerPurchase = 3
)

// Session is a snapshot of one visitor session.
type Session struct {
	ID               string    `json:"id"`
	Email            string    `json:"email,omitempty"`
	Credits          int       `json:"credits"`
	Authenticated    bool      `json:"authenticated"`
	AnalysisInFlight bool      `json:"analysisInFlight"`
	CreatedAt        time.Time `json:"createdAt"`
}

// State derives the session state.
func (s Session) State() State {
	switch {
	case !s.Authenticated:
		return StateAnonymous
	case s.Credits > 0:
		return StateAuthenticatedCredits
	default:
		return StateAuthenticatedNoCredits
	}
}

// Owner is the history owner for the session.
func (s Session) Owner() string {
	return s.Email
}

// billing tracks one checkout: the session that created it and whether
// its credits were granted.
type billing struct {
	sessionID string
	credited  bool
}

// Manager stores sessions in a go-cache with sliding expiration. All
// mutations go through the manager mutex. Billings are tracked across
// sessions so a paid billing is credited exactly once.
type Manager struct {
	mu                 sync.Mutex
	store              *cache.Cache
	billings           map[string]*billing
	freeCredits        int
	creditsPerPurchase int
	now                func() time.Time
}

// NewManager creates a Manager. Non-positive values select the defaults.
func NewManager(ttl time.Duration, freeCredits, creditsPerPurchase int) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if freeCredits < 0 {
		freeCredits = DefaultFreeCredits
	}
	if creditsPerPurchase <= 0 {
		creditsPerPurchase = DefaultCreditsPerPurchase
	}
	return &Manager{
		store:              cache.New(ttl, ttl*2),
		billings:           make(map[string]*billing),
		freeCredits:        freeCredits,
		creditsPerPurchase: creditsPerPurchase,
		now:                time.Now,
	}
}

// Create starts an anonymous session with the free credits.
func (m *Manager) Create() Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Session{
		ID:        uuid.NewString(),
		Credits:   m.freeCredits,
		CreatedAt: m.now().UTC(),
	}
	m.save(s)
	return s
}

// Get returns a snapshot of the session and refreshes its expiration.
func (m *Manager) Get(id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.load(id)
	if err != nil {
		return Session{}, err
	}
	m.save(s)
	return s, nil
}

// Login marks the session as authenticated for email.
func (m *Manager) Login(id, email string) (Session, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return Session{}, fmt.Errorf("Login: invalid email %q: %w", email, err)
	}

	return m.update(id, func(s *Session) error {
		s.Email = strings.ToLower(addr.Address)
		s.Authenticated = true
		return nil
	})
}

// Logout drops authentication. Credits stay with the session.
func (m *Manager) Logout(id string) (Session, error) {
	return m.update(id, func(s *Session) error {
		s.Authenticated = false
		s.Email = ""
		return nil
	})
}

// BeginAnalysis reserves the session's single analysis slot. It requires
// an authenticated session with credits and nothing in flight.
func (m *Manager) BeginAnalysis(id string) (Session, error) {
	return m.update(id, func(s *Session) error {
		switch {
		case !s.Authenticated:
			return domain.ErrNotAuthenticated
		case s.AnalysisInFlight:
			return domain.ErrAnalysisInProgress
		case s.Credits <= 0:
			return domain.ErrNoCredits
		}
		s.AnalysisInFlight = true
		return nil
	})
}

// FinishAnalysis releases the slot. A credit is consumed only on success.
func (m *Manager) FinishAnalysis(id string, success bool) (Session, error) {
	return m.update(id, func(s *Session) error {
		if !s.AnalysisInFlight {
			return fmt.Errorf("FinishAnalysis: no analysis in flight for session %s", id)
		}
		s.AnalysisInFlight = false
		if success && s.Credits > 0 {
			s.Credits--
		}
		return nil
	})
}

// AddCredits grants n credits.
func (m *Manager) AddCredits(id string, n int) (Session, error) {
	if n <= 0 {
		return Session{}, fmt.Errorf("AddCredits: n must be positive, got %d", n)
	}
	return m.update(id, func(s *Session) error {
		s.Credits += n
		return nil
	})
}

// RegisterBilling binds a checkout's billing id to the session that
// created it. Only that session can later claim the credits.
func (m *Manager) RegisterBilling(id, billingID string) error {
	if billingID == "" {
		return fmt.Errorf("RegisterBilling: empty billing id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.load(id); err != nil {
		return err
	}
	if b, ok := m.billings[billingID]; ok && b.sessionID != id {
		return fmt.Errorf("RegisterBilling: %s: %w", billingID, domain.ErrBillingNotOwned)
	}
	if _, ok := m.billings[billingID]; !ok {
		m.billings[billingID] = &billing{sessionID: id}
	}
	return nil
}

// VerifyBilling reports ErrBillingNotOwned unless billingID was
// registered by session id.
func (m *Manager) VerifyBilling(id, billingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.billings[billingID]; !ok || b.sessionID != id {
		return fmt.Errorf("VerifyBilling: %s: %w", billingID, domain.ErrBillingNotOwned)
	}
	return nil
}

// CreditPurchase grants the purchase credits for a paid billing. A
// billing is credited at most once across all sessions, and only to the
// session that registered it. The returned bool reports whether credits
// were added by this call.
func (m *Manager) CreditPurchase(id, billingID string) (Session, bool, error) {
	if billingID == "" {
		return Session{}, false, fmt.Errorf("CreditPurchase: empty billing id")
	}

	credited := false
	s, err := m.update(id, func(s *Session) error {
		b, ok := m.billings[billingID]
		if !ok || b.sessionID != s.ID {
			return fmt.Errorf("CreditPurchase: %s: %w", billingID, domain.ErrBillingNotOwned)
		}
		if b.credited {
			return nil
		}
		b.credited = true
		s.Credits += m.creditsPerPurchase
		credited = true
		return nil
	})
	return s, credited, err
}

// update applies fn to the stored session. Nothing is saved when fn fails.
func (m *Manager) update(id string, fn func(*Session) error) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.load(id)
	if err != nil {
		return Session{}, err
	}
	if err := fn(&s); err != nil {
		return Session{}, err
	}
	m.save(s)
	return s, nil
}

func (m *Manager) load(id string) (Session, error) {
	v, ok := m.store.Get(id)
	if !ok {
		return Session{}, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}
	return v.(Session), nil
}

func (m *Manager) save(s Session) {
	m.store.Set(s.ID, s, cache.DefaultExpiration)
}
