package authn

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jordanhubbard/refactorctl/internal/ctlerrors"
)

func TestJWTAuthenticatorRoundTrip(t *testing.T) {
	a := NewJWTAuthenticator("test-secret")
	token, err := a.Issue("user-1", "owner", time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	id, err := a.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if id.UserID != "user-1" || id.Role != "owner" {
		t.Fatalf("identity = %+v", id)
	}
}

func TestJWTAuthenticatorRejectsExpiredToken(t *testing.T) {
	a := NewJWTAuthenticator("test-secret")
	token, err := a.Issue("user-1", "owner", -time.Minute)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if _, err := a.Authenticate(context.Background(), token); !errors.Is(err, ctlerrors.ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestJWTAuthenticatorRejectsWrongSecret(t *testing.T) {
	a := NewJWTAuthenticator("test-secret")
	token, _ := a.Issue("user-1", "owner", time.Hour)

	other := NewJWTAuthenticator("other-secret")
	if _, err := other.Authenticate(context.Background(), token); !errors.Is(err, ctlerrors.ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestFromRequestRejectsMissingBearerPrefix(t *testing.T) {
	a := NewJWTAuthenticator("test-secret")
	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	req.Header.Set("Authorization", "not-a-bearer-token")

	if _, err := FromRequest(context.Background(), a, req); !errors.Is(err, ctlerrors.ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
}
