package scan

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/trackline-erp/trackline/internal/serial"
)

func newTestScanRouter(serials *fakeSerials) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, NewService(serials, nil, nil, scanClock))
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func TestBulkScanHandlerToleratesBadItems(t *testing.T) {
	serials := newFakeSerials(sentRow("APAAAIEL00000001"))
	router := newTestScanRouter(serials)

	body, err := json.Marshal(map[string]any{
		"barcodes": []string{"APAAAIEL00000001", "SHORT"},
		"grn_id":   500,
		"user_id":  42,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bulk", bytes.NewReader(body)))

	// a malformed item must not fail the batch
	require.Equal(t, http.StatusOK, rec.Code)

	var result BulkResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, 1, result.Valid)
	require.Equal(t, 1, result.Invalid)
	require.Len(t, result.Outcomes, 2)
	require.Equal(t, serial.StatusReceived, serials.rows["APAAAIEL00000001"].Status)
}

func TestBulkScanHandlerRejectsEmptyBatch(t *testing.T) {
	router := newTestScanRouter(newFakeSerials())

	body := []byte(`{"barcodes":[],"grn_id":500,"user_id":42}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bulk", bytes.NewReader(body)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
