package app

import (
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Parley/internal/domain"
)

func newTestRegistry(threshold, poll time.Duration) (*Registry, chan string) {
	reg := NewRegistry(NewTokenIssuer("test-secret"), threshold, poll)
	expired := make(chan string, 16)
	reg.OnExpire(func(username string) { expired <- username })
	return reg, expired
}

func TestTryCreateDuplicateFails(t *testing.T) {
	reg, _ := newTestRegistry(time.Minute, time.Minute)
	defer reg.Close()

	tok, err := reg.TryCreate("alan")
	if err != nil {
		t.Fatalf("first TryCreate: %v", err)
	}
	if tok == "" {
		t.Fatal("first TryCreate returned empty token")
	}

	if _, err := reg.TryCreate("alan"); !errors.Is(err, domain.ErrIdentityTaken) {
		t.Fatalf("second TryCreate = %v, want ErrIdentityTaken", err)
	}
}

func TestAuthenticate(t *testing.T) {
	reg, _ := newTestRegistry(time.Minute, time.Minute)
	defer reg.Close()

	tok, err := reg.TryCreate("alan")
	if err != nil {
		t.Fatalf("TryCreate: %v", err)
	}

	if !reg.Authenticate("alan", tok) {
		t.Error("Authenticate with the issued token = false, want true")
	}
	if reg.Authenticate("alan", tok+"x") {
		t.Error("Authenticate with a wrong token = true, want false")
	}
	if reg.Authenticate("alan", "") {
		t.Error("Authenticate with an empty token = true, want false")
	}
	if reg.Authenticate("brenda", tok) {
		t.Error("Authenticate for an unknown username = true, want false")
	}
}

func TestTokenNotReusedAcrossSessions(t *testing.T) {
	reg, expired := newTestRegistry(30*time.Millisecond, 10*time.Millisecond)
	defer reg.Close()

	first, err := reg.TryCreate("alan")
	if err != nil {
		t.Fatalf("TryCreate: %v", err)
	}

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not expire")
	}

	second, err := reg.TryCreate("alan")
	if err != nil {
		t.Fatalf("rejoin TryCreate: %v", err)
	}
	if first == second {
		t.Fatal("rejoin reused the previous session token")
	}
	if reg.Authenticate("alan", first) {
		t.Error("expired session token still authenticates")
	}
}

func TestRefreshResetsIdleClock(t *testing.T) {
	reg, expired := newTestRegistry(150*time.Millisecond, 30*time.Millisecond)
	defer reg.Close()

	if _, err := reg.TryCreate("alan"); err != nil {
		t.Fatalf("TryCreate: %v", err)
	}

	// Keep refreshing well past the original deadline; the session
	// must survive as long as activity continues.
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		reg.Refresh("alan")
		select {
		case username := <-expired:
			t.Fatalf("session %q expired while being refreshed", username)
		case <-time.After(40 * time.Millisecond):
		}
	}

	// Silence now; expiry must follow.
	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not expire after refreshes stopped")
	}
	if reg.Count() != 0 {
		t.Fatalf("Count() = %d after expiry, want 0", reg.Count())
	}
}

func TestStaleTimerDoesNotTouchReplacementSession(t *testing.T) {
	reg, expired := newTestRegistry(60*time.Millisecond, 15*time.Millisecond)
	defer reg.Close()

	if _, err := reg.TryCreate("alan"); err != nil {
		t.Fatalf("TryCreate: %v", err)
	}

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("first session did not expire")
	}

	// Recreate immediately; any timer left over from the first
	// session must not remove or expire the replacement early.
	tok, err := reg.TryCreate("alan")
	if err != nil {
		t.Fatalf("rejoin TryCreate: %v", err)
	}

	select {
	case username := <-expired:
		t.Fatalf("premature expiry of replacement session %q", username)
	case <-time.After(40 * time.Millisecond):
	}
	if !reg.Authenticate("alan", tok) {
		t.Fatal("replacement session no longer authenticates")
	}
}

func TestExpiryNoticePrecedesReplacementJoin(t *testing.T) {
	reg := NewRegistry(NewTokenIssuer("test-secret"), 30*time.Millisecond, 10*time.Millisecond)
	defer reg.Close()

	// A slow departure notice must still complete before a racing
	// rejoin for the same name can be admitted.
	noticeDone := make(chan time.Time, 1)
	reg.OnExpire(func(username string) {
		time.Sleep(50 * time.Millisecond)
		noticeDone <- time.Now()
	})

	if _, err := reg.TryCreate("alan"); err != nil {
		t.Fatalf("TryCreate: %v", err)
	}

	var joined time.Time
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := reg.TryCreate("alan"); err == nil {
			joined = time.Now()
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("rejoin never admitted")
		}
		time.Sleep(time.Millisecond)
	}

	select {
	case done := <-noticeDone:
		if joined.Before(done) {
			t.Fatalf("rejoin admitted at %v, before the departure notice finished at %v", joined, done)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("departure notice never ran")
	}
}

func TestRefreshUnknownUsernameIsNoop(t *testing.T) {
	reg, _ := newTestRegistry(time.Minute, time.Minute)
	defer reg.Close()

	reg.Refresh("nobody")
	if reg.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", reg.Count())
	}
}

func TestCloseStopsExpiry(t *testing.T) {
	reg, expired := newTestRegistry(30*time.Millisecond, 10*time.Millisecond)

	if _, err := reg.TryCreate("alan"); err != nil {
		t.Fatalf("TryCreate: %v", err)
	}
	reg.Close()

	select {
	case username := <-expired:
		t.Fatalf("expiry callback for %q after Close", username)
	case <-time.After(100 * time.Millisecond):
	}
	if reg.Count() != 0 {
		t.Fatalf("Count() = %d after Close, want 0", reg.Count())
	}
}
