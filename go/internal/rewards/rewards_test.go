package rewards

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/focushub/go/clients"
	"github.com/mcdev12/focushub/go/internal/auth"
	"github.com/mcdev12/focushub/go/internal/focus/protocol"
	"github.com/mcdev12/focushub/go/internal/models"
	"github.com/mcdev12/focushub/go/internal/presence"
)

func TestPolicyVerify(t *testing.T) {
	tests := []struct {
		name     string
		ratio    float64
		duration int
		focused  time.Duration
		want     models.VerificationBreakdown
		accepted bool
	}{
		{
			name:     "full attendance",
			ratio:    0.9,
			duration: 25,
			focused:  25 * time.Minute,
			want:     models.VerificationBreakdown{Message: acceptedMessage, Present: 25, Required: 23, Percentage: 108},
			accepted: true,
		},
		{
			name:     "short by a few minutes",
			ratio:    1,
			duration: 25,
			focused:  20 * time.Minute,
			want:     models.VerificationBreakdown{Message: deniedMessage, Present: 20, Required: 25, Percentage: 80},
		},
		{
			name:     "present rounds to nearest minute",
			ratio:    0.9,
			duration: 25,
			focused:  22*time.Minute + 31*time.Second,
			want:     models.VerificationBreakdown{Message: acceptedMessage, Present: 23, Required: 23, Percentage: 100},
			accepted: true,
		},
		{
			name:     "invalid ratio falls back to default",
			ratio:    3,
			duration: 10,
			focused:  0,
			want:     models.VerificationBreakdown{Message: deniedMessage, Present: 0, Required: 9, Percentage: 0},
		},
		{
			name:     "required is at least one minute",
			ratio:    0.5,
			duration: 1,
			focused:  40 * time.Second,
			want:     models.VerificationBreakdown{Message: acceptedMessage, Present: 1, Required: 1, Percentage: 100},
			accepted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Policy{RequiredRatio: tt.ratio}.Verify(tt.duration, tt.focused)
			if got.VerificationBreakdown != tt.want || got.Accepted != tt.accepted {
				t.Fatalf("Verify() = %+v, want %+v accepted=%v", got, tt.want, tt.accepted)
			}
		})
	}
}

type memoryClaims struct {
	mu      sync.Mutex
	claims  []models.RewardClaim
	flowers map[int64]int
}

func newMemoryClaims() *memoryClaims {
	return &memoryClaims{flowers: make(map[int64]int)}
}

func (m *memoryClaims) HasAcceptedClaim(ctx context.Context, claim models.RewardClaim) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.claims {
		if c.Accepted && c.UserID == claim.UserID && c.SessionID == claim.SessionID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryClaims) RecordDenied(ctx context.Context, claim models.RewardClaim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims = append(m.claims, claim)
	return nil
}

func (m *memoryClaims) GrantReward(ctx context.Context, claim models.RewardClaim) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims = append(m.claims, claim)
	m.flowers[claim.UserID]++
	return m.flowers[claim.UserID], nil
}

type recordingNotifier struct{ users []int64 }

func (n *recordingNotifier) FlowersChanged(ctx context.Context, userID int64) {
	n.users = append(n.users, userID)
}

type claimFixture struct {
	clock    *clockwork.FakeClock
	ledger   *presence.App
	claims   *memoryClaims
	notifier *recordingNotifier
	app      *App
}

func newClaimFixture(t *testing.T, ratio float64) *claimFixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	ledger := presence.NewApp(presence.NewMemoryStore(), clock)
	claims := newMemoryClaims()
	notifier := &recordingNotifier{}
	return &claimFixture{
		clock:    clock,
		ledger:   ledger,
		claims:   claims,
		notifier: notifier,
		app:      NewApp(ledger, claims, notifier, Policy{RequiredRatio: ratio}, clock),
	}
}

func (f *claimFixture) record(t *testing.T, event presence.Event) {
	t.Helper()
	if err := f.ledger.Record(context.Background(), event); err != nil {
		t.Fatal(err)
	}
}

// runSession starts a 25 minute session in room R with user 1 focusing for
// focusedMinutes before failing
func (f *claimFixture) runSession(t *testing.T, focusedMinutes int) {
	t.Helper()
	now := f.clock.Now()
	f.record(t, presence.NewSessionStarted("R", uuid.New(), now, now.Add(25*time.Minute), 25))
	f.record(t, presence.NewStatusChanged("R", 1, "ana", protocol.ParticipantFocusing, now))
	f.clock.Advance(time.Duration(focusedMinutes) * time.Minute)
	f.record(t, presence.NewStatusChanged("R", 1, "ana", protocol.ParticipantFailed, f.clock.Now()))
}

func TestClaimAccepted(t *testing.T) {
	f := newClaimFixture(t, 0.9)
	f.runSession(t, 25)
	f.clock.Advance(time.Minute)

	result, err := f.app.Claim(context.Background(), 1, "r")
	if err != nil {
		t.Fatal(err)
	}
	if result.Flowers != 1 || !result.Verification.Accepted || result.Verification.Present != 25 {
		t.Fatalf("result = %+v", result)
	}
	if len(f.notifier.users) != 1 || f.notifier.users[0] != 1 {
		t.Fatalf("notified = %v, want user 1", f.notifier.users)
	}

	if _, err := f.app.Claim(context.Background(), 1, "R"); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("second claim err = %v, want ErrAlreadyClaimed", err)
	}
}

func TestClaimDeniedWithBreakdown(t *testing.T) {
	f := newClaimFixture(t, 1)
	f.runSession(t, 20)
	f.clock.Advance(10 * time.Minute)

	_, err := f.app.Claim(context.Background(), 1, "R")
	var denied *models.VerificationDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("err = %v, want VerificationDeniedError", err)
	}
	want := models.VerificationBreakdown{Message: deniedMessage, Present: 20, Required: 25, Percentage: 80}
	if denied.Breakdown != want {
		t.Fatalf("breakdown = %+v, want %+v", denied.Breakdown, want)
	}
	if len(f.claims.claims) != 1 || f.claims.claims[0].Accepted || f.claims.claims[0].Breakdown == nil {
		t.Fatalf("recorded claims = %+v, want one denied claim with breakdown", f.claims.claims)
	}
	if len(f.notifier.users) != 0 {
		t.Fatal("denied claim must not change flowers")
	}
}

func TestClaimBeforeSessionEnds(t *testing.T) {
	f := newClaimFixture(t, 0.9)
	if _, err := f.app.Claim(context.Background(), 1, "R"); !errors.Is(err, presence.ErrNoSession) {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}

	now := f.clock.Now()
	f.record(t, presence.NewSessionStarted("R", uuid.New(), now, now.Add(25*time.Minute), 25))
	f.clock.Advance(24 * time.Minute)
	if _, err := f.app.Claim(context.Background(), 1, "R"); !errors.Is(err, ErrSessionInProgress) {
		t.Fatalf("err = %v, want ErrSessionInProgress", err)
	}
}

func TestClaimHandlerWithAccountClient(t *testing.T) {
	f := newClaimFixture(t, 1)
	f.runSession(t, 20)
	f.clock.Advance(10 * time.Minute)

	issuer := auth.NewIssuer("test-secret", time.Hour, nil)
	mux := http.NewServeMux()
	NewHandler(f.app, issuer).RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	defer server.Close()

	token, err := issuer.Issue(auth.Identity{UserID: 1, Username: "ana"})
	if err != nil {
		t.Fatal(err)
	}
	client := clients.NewAccountClient(server.URL, staticToken(token))

	_, err = client.Claim(context.Background(), 1, "R")
	var denied *models.VerificationDeniedError
	if !errors.As(err, &denied) || denied.Malformed {
		t.Fatalf("err = %v, want a readable denial", err)
	}
	if denied.Breakdown.Present != 20 || denied.Breakdown.Required != 25 || denied.Breakdown.Percentage != 80 {
		t.Fatalf("breakdown = %+v", denied.Breakdown)
	}

	// another user's path is rejected before verification
	var apiErr *clients.APIError
	if _, err := client.Claim(context.Background(), 2, "R"); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401 for another user's claim", err)
	}

	if _, err := client.Claim(context.Background(), 1, "EMPTY"); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
		t.Fatalf("err = %v, want 409 for a room without sessions", err)
	}
}

type staticToken string

func (s staticToken) Token() (string, error) { return string(s), nil }
