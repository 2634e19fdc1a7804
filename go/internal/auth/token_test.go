package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

func TestIssueAndVerify(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	issuer := NewIssuer("secret", time.Hour, clock)

	token, err := issuer.Issue(Identity{UserID: 7, Username: "ana"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	id, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if id.UserID != 7 || id.Username != "ana" {
		t.Fatalf("Verify() = %+v", id)
	}

	clock.Advance(2 * time.Hour)
	if _, err := issuer.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Verify() after expiry error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejects(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour, nil)
	other := NewIssuer("other-secret", time.Hour, nil)

	foreign, _ := other.Issue(Identity{UserID: 1, Username: "ana"})
	noID, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ana",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "ana", "id": 1,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"wrong secret": foreign,
		"missing id":   noID,
		"alg none":     unsigned,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := issuer.Verify(token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if err := CheckPassword(hash, "hunter2"); err != nil {
		t.Fatalf("CheckPassword() error = %v", err)
	}
	if err := CheckPassword(hash, "hunter3"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("CheckPassword() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestMiddleware(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour, nil)
	token, _ := issuer.Issue(Identity{UserID: 3, Username: "cy"})

	var seen Identity
	handler := issuer.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || seen.UserID != 3 {
		t.Fatalf("status = %d identity = %+v", rec.Code, seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/ws/ROOM?token="+token, nil)
	if got := BearerToken(req); got != token {
		t.Fatalf("BearerToken() from query = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/users/me", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
