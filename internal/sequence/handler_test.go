package sequence

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestSequenceRouter(repo *memorySeqRepo) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, NewService(repo, nil, nil))
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func TestStatusMaterializesUnusedCounter(t *testing.T) {
	repo := newMemorySeqRepo()
	router := newTestSequenceRouter(repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/status?model_code=IEL&supplier_code=FS&year_code=AA&month_code=A", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.EqualValues(t, 0, body["last_serial"])
	require.Equal(t, "IEL", body["model_code"])

	// the zero row now exists and allocation continues from it
	seq, err := repo.Get(context.Background(), testKey())
	require.NoError(t, err)
	require.EqualValues(t, 0, seq.LastSerial)
}

func TestStatusRejectsIncompleteKey(t *testing.T) {
	router := newTestSequenceRouter(newMemorySeqRepo())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status?model_code=IEL", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
