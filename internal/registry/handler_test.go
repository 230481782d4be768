package registry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	autoLinks    int
	syncMissings int
	fail         bool
}

func (f *fakeEnqueuer) EnqueueAutoLink(context.Context) (string, error) {
	if f.fail {
		return "", errors.New("queue down")
	}
	f.autoLinks++
	return "task-auto-link-1", nil
}

func (f *fakeEnqueuer) EnqueueSyncMissing(context.Context) (string, error) {
	if f.fail {
		return "", errors.New("queue down")
	}
	f.syncMissings++
	return "task-sync-missing-1", nil
}

func newTestAdminRouter(enqueue Enqueuer) http.Handler {
	svc, _ := newTestRegistryService()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, svc, enqueue)
	r := chi.NewRouter()
	h.MountAdminRoutes(r)
	return r
}

func TestAdminReconciliationEnqueues(t *testing.T) {
	enqueue := &fakeEnqueuer{}
	router := newTestAdminRouter(enqueue)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auto-link", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "task-auto-link-1", body["task_id"])
	require.Equal(t, 1, enqueue.autoLinks)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync-missing", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, 1, enqueue.syncMissings)
}

func TestAdminReconciliationQueueDown(t *testing.T) {
	router := newTestAdminRouter(&fakeEnqueuer{fail: true})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auto-link", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
