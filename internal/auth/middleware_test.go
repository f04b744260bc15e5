package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moneymint/moneymint/internal/shared"
)

func TestOwnerIdentityInjectsContext(t *testing.T) {
	var seen string
	handler := OwnerIdentity("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.OwnerFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/customers", nil)
	req.Header.Set(DefaultOwnerHeader, "owner-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "owner-1", seen)
}

func TestOwnerIdentityRejectsMissingHeader(t *testing.T) {
	called := false
	handler := OwnerIdentity("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/customers", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.False(t, called)
}

func TestOwnerIdentityCustomHeader(t *testing.T) {
	handler := OwnerIdentity("X-Profile-ID")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/customers", nil)
	req.Header.Set("X-Profile-ID", "owner-2")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
