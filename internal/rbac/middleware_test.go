package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/trackline-erp/trackline/internal/shared"
)

func newTestMiddleware(t *testing.T, adminToken string) Middleware {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.MinCost)
	require.NoError(t, err)
	return Middleware{AdminTokenHash: string(hash)}
}

func TestAuthenticateResolvesActor(t *testing.T) {
	m := newTestMiddleware(t, "top-secret")

	var got shared.Actor
	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "42")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, int64(42), got.ID)
	require.False(t, got.Elevated)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "7")
	req.Header.Set("Authorization", "Bearer top-secret")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, int64(7), got.ID)
	require.True(t, got.Elevated)

	// wrong token authenticates the user but never elevates
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "7")
	req.Header.Set("Authorization", "Bearer guess")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.False(t, got.Elevated)
}

func TestRequireElevated(t *testing.T) {
	m := newTestMiddleware(t, "top-secret")
	handler := m.Authenticate(m.RequireElevated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest(http.MethodPost, "/admin/sequences/reset", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/sequences/reset", nil)
	req.Header.Set("Authorization", "Bearer top-secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireUser(t *testing.T) {
	m := newTestMiddleware(t, "top-secret")
	handler := m.Authenticate(m.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/scan", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/scan", nil)
	req.Header.Set("X-User-ID", "42")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}
