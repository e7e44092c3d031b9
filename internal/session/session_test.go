package session

import (
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/quantoda/internal/domain"
)

func TestManager_Lifecycle(t *testing.T) {
	m := NewManager(time.Hour, DefaultFreeCredits, 0)
	s := m.Create()

	if s.State() != StateAnonymous || s.Credits != DefaultFreeCredits {
		t.Fatalf("new session = %+v, state %s", s, s.State())
	}

	if _, err := m.BeginAnalysis(s.ID); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Errorf("BeginAnalysis() anonymous error = %v", err)
	}

	s, err := m.Login(s.ID, "  Ana <ANA@Example.com> ")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if s.Email != "ana@example.com" || s.State() != StateAuthenticatedCredits {
		t.Errorf("after login: %+v state %s", s, s.State())
	}

	if _, err := m.BeginAnalysis(s.ID); err != nil {
		t.Fatalf("BeginAnalysis() error = %v", err)
	}
	if _, err := m.BeginAnalysis(s.ID); !errors.Is(err, domain.ErrAnalysisInProgress) {
		t.Errorf("second BeginAnalysis() error = %v", err)
	}

	s, err = m.FinishAnalysis(s.ID, true)
	if err != nil {
		t.Fatalf("FinishAnalysis() error = %v", err)
	}
	if s.Credits != 0 || s.State() != StateAuthenticatedNoCredits {
		t.Errorf("after success: credits %d state %s", s.Credits, s.State())
	}

	if _, err := m.BeginAnalysis(s.ID); !errors.Is(err, domain.ErrNoCredits) {
		t.Errorf("BeginAnalysis() without credits error = %v", err)
	}
}

func TestManager_FailedAnalysisKeepsCredit(t *testing.T) {
	m := NewManager(time.Hour, 1, 3)
	s := m.Create()
	_, _ = m.Login(s.ID, "bruno@example.com")

	if _, err := m.BeginAnalysis(s.ID); err != nil {
		t.Fatalf("BeginAnalysis() error = %v", err)
	}
	s, err := m.FinishAnalysis(s.ID, false)
	if err != nil {
		t.Fatalf("FinishAnalysis() error = %v", err)
	}
	if s.Credits != 1 || s.AnalysisInFlight {
		t.Errorf("after failure: %+v", s)
	}

	if _, err := m.FinishAnalysis(s.ID, true); err == nil {
		t.Error("FinishAnalysis() without analysis in flight should fail")
	}
}

func TestManager_CreditPurchaseIdempotent(t *testing.T) {
	m := NewManager(time.Hour, 0, 3)
	s := m.Create()
	if err := m.RegisterBilling(s.ID, "bill_123"); err != nil {
		t.Fatalf("RegisterBilling() error = %v", err)
	}

	s, credited, err := m.CreditPurchase(s.ID, "bill_123")
	if err != nil || !credited || s.Credits != 3 {
		t.Fatalf("first CreditPurchase() = %+v, %v, %v", s, credited, err)
	}
	s, credited, err = m.CreditPurchase(s.ID, "bill_123")
	if err != nil || credited || s.Credits != 3 {
		t.Errorf("repeated CreditPurchase() = %+v, %v, %v", s, credited, err)
	}
	if _, _, err := m.CreditPurchase(s.ID, ""); err == nil {
		t.Error("expected error for empty billing id")
	}
}

func TestManager_BillingCreditsOnlyItsOwnSession(t *testing.T) {
	m := NewManager(time.Hour, 0, 3)
	owner := m.Create()
	other := m.Create()
	if err := m.RegisterBilling(owner.ID, "bill_shared"); err != nil {
		t.Fatalf("RegisterBilling() error = %v", err)
	}

	if _, credited, err := m.CreditPurchase(owner.ID, "bill_shared"); err != nil || !credited {
		t.Fatalf("owner CreditPurchase() = %v, %v", credited, err)
	}

	_, credited, err := m.CreditPurchase(other.ID, "bill_shared")
	if !errors.Is(err, domain.ErrBillingNotOwned) || credited {
		t.Errorf("other CreditPurchase() = %v, %v, want ErrBillingNotOwned", credited, err)
	}
	if err := m.RegisterBilling(other.ID, "bill_shared"); !errors.Is(err, domain.ErrBillingNotOwned) {
		t.Errorf("re-registering under another session: %v", err)
	}
	if err := m.VerifyBilling(other.ID, "bill_shared"); !errors.Is(err, domain.ErrBillingNotOwned) {
		t.Errorf("VerifyBilling() = %v", err)
	}
	if _, _, err := m.CreditPurchase(other.ID, "bill_unknown"); !errors.Is(err, domain.ErrBillingNotOwned) {
		t.Errorf("unregistered billing: %v", err)
	}

	got, err := m.Get(other.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Credits != 0 {
		t.Errorf("other session credits = %d, want 0", got.Credits)
	}
}

func TestManager_LogoutKeepsCredits(t *testing.T) {
	m := NewManager(time.Hour, 1, 3)
	s := m.Create()
	_, _ = m.Login(s.ID, "carla@example.com")
	_, _ = m.AddCredits(s.ID, 2)

	s, err := m.Logout(s.ID)
	if err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if s.Authenticated || s.Email != "" || s.Credits != 3 {
		t.Errorf("after logout: %+v", s)
	}
}

func TestManager_Errors(t *testing.T) {
	m := NewManager(time.Hour, 1, 3)

	if _, err := m.Get("missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Get() error = %v", err)
	}

	s := m.Create()
	if _, err := m.Login(s.ID, "not-an-email"); err == nil {
		t.Error("expected invalid email error")
	}
	if _, err := m.AddCredits(s.ID, 0); err == nil {
		t.Error("expected error for zero credits")
	}
}

func TestManager_SnapshotsAreIndependent(t *testing.T) {
	m := NewManager(time.Hour, 0, 3)
	s := m.Create()
	_ = m.RegisterBilling(s.ID, "bill_1")
	s, _, _ = m.CreditPurchase(s.ID, "bill_1")

	s.Credits = 100
	s.Email = "mallory@example.com"

	fresh, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if fresh.Credits != 3 || fresh.Email != "" {
		t.Errorf("stored session mutated through snapshot: %+v", fresh)
	}
}
