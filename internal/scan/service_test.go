package scan

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trackline-erp/trackline/internal/serial"
	"github.com/trackline-erp/trackline/internal/shared"
)

type fakeSerials struct {
	mu   sync.Mutex
	rows map[string]serial.POSerial
}

func newFakeSerials(rows ...serial.POSerial) *fakeSerials {
	f := &fakeSerials{rows: make(map[string]serial.POSerial)}
	for _, row := range rows {
		f.rows[row.Barcode] = row
	}
	return f
}

func (f *fakeSerials) GetByBarcode(_ context.Context, code string) (serial.POSerial, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[code]
	if !ok {
		return serial.POSerial{}, serial.ErrNotFound
	}
	return row, nil
}

func (f *fakeSerials) MarkReceived(_ context.Context, code string, grnID, grnItemID, userID int64) (serial.POSerial, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[code]
	if !ok {
		return serial.POSerial{}, serial.ErrNotFound
	}
	if row.Status != serial.StatusSentToVendor {
		return serial.POSerial{}, serial.ErrInvalidState
	}
	row.Status = serial.StatusReceived
	row.GRNID = grnID
	row.GRNItemID = grnItemID
	row.ReceivedBy = userID
	row.ReceivedAt = scanClock()
	row.WarrantyStart = row.ReceivedAt
	row.WarrantyEnd = row.ReceivedAt.AddDate(0, serial.WarrantyMonths, 0)
	f.rows[code] = row
	return row, nil
}

func scanClock() time.Time {
	return time.Date(2020, time.March, 3, 9, 0, 0, 0, time.UTC)
}

func sentRow(code string) serial.POSerial {
	return serial.POSerial{Barcode: code, SerialNo: 1, ModelCode: "IEL", PORef: "PO-1", Status: serial.StatusSentToVendor}
}

func TestScanHappyPath(t *testing.T) {
	serials := newFakeSerials(sentRow("APAAAIEL00000001"))
	svc := NewService(serials, nil, nil, scanClock)

	res, err := svc.Scan(context.Background(), "apaaaiel00000001", 500, 12, 42)
	require.NoError(t, err)
	require.Equal(t, serial.StatusReceived, res.Serial.Status)
	require.Equal(t, int64(500), res.Serial.GRNID)
	require.Equal(t, int64(42), res.Serial.ReceivedBy)
	require.Equal(t, "ACTIVE", res.Warranty)
	require.Equal(t, "IEL", res.Fields.ModelCode)
	require.Equal(t, scanClock().AddDate(0, 12, 0), res.Serial.WarrantyEnd)
}

func TestScanRejectsMalformed(t *testing.T) {
	svc := NewService(newFakeSerials(), nil, nil, scanClock)

	for _, code := range []string{"", "SHORT", "XYAAAIEL00000001", "APAAAIEL0000000!"} {
		_, err := svc.Scan(context.Background(), code, 500, 0, 42)
		require.ErrorIs(t, err, shared.ErrMalformedBarcode, "code %q", code)
	}
}

func TestScanRejectsForeignBarcode(t *testing.T) {
	svc := NewService(newFakeSerials(), nil, nil, scanClock)

	// well-formed but never issued
	_, err := svc.Scan(context.Background(), "APAAAIEL00000009", 500, 0, 42)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestScanRequiresSentToVendor(t *testing.T) {
	generated := sentRow("APAAAIEL00000001")
	generated.Status = serial.StatusGenerated
	serials := newFakeSerials(generated)
	svc := NewService(serials, nil, nil, scanClock)

	_, err := svc.Scan(context.Background(), "APAAAIEL00000001", 500, 0, 42)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	// a second scan of an already-received barcode also fails
	serials.rows["APAAAIEL00000001"] = sentRow("APAAAIEL00000001")
	_, err = svc.Scan(context.Background(), "APAAAIEL00000001", 500, 0, 42)
	require.NoError(t, err)
	_, err = svc.Scan(context.Background(), "APAAAIEL00000001", 500, 0, 42)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestScanRequiresGRN(t *testing.T) {
	serials := newFakeSerials(sentRow("APAAAIEL00000001"))
	svc := NewService(serials, nil, nil, scanClock)

	_, err := svc.Scan(context.Background(), "APAAAIEL00000001", 0, 0, 42)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestBulkScanTally(t *testing.T) {
	received := sentRow("APAAAIEL00000004")
	received.Status = serial.StatusReceived
	serials := newFakeSerials(
		sentRow("APAAAIEL00000001"),
		sentRow("APAAAIEL00000002"),
		sentRow("APAAAIEL00000003"),
		received,
	)
	svc := NewService(serials, nil, nil, scanClock)

	result, err := svc.BulkScan(context.Background(), []string{
		"APAAAIEL00000001", "APAAAIEL00000002", "APAAAIEL00000003", "APAAAIEL00000004",
	}, 500, 42)
	require.NoError(t, err)
	require.Equal(t, 3, result.Valid)
	require.Equal(t, 1, result.Invalid)
	require.Len(t, result.Outcomes, 4)
	require.False(t, result.Outcomes[3].OK)
	require.NotEmpty(t, result.Outcomes[3].Error)

	// the already-received row is untouched
	require.Equal(t, serial.StatusReceived, serials.rows["APAAAIEL00000004"].Status)
	require.Zero(t, serials.rows["APAAAIEL00000004"].GRNID)
}

func TestBulkScanIsolatesFailures(t *testing.T) {
	serials := newFakeSerials(sentRow("APAAAIEL00000002"))
	svc := NewService(serials, nil, nil, scanClock)

	result, err := svc.BulkScan(context.Background(), []string{
		"garbage", "APAAAIEL00000002", "APAAAIEL00000099",
	}, 500, 42)
	require.NoError(t, err)
	require.Equal(t, 1, result.Valid)
	require.Equal(t, 2, result.Invalid)
	require.Equal(t, serial.StatusReceived, serials.rows["APAAAIEL00000002"].Status)

	_, err = svc.BulkScan(context.Background(), nil, 500, 42)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestValidateDoesNotMutate(t *testing.T) {
	serials := newFakeSerials(sentRow("APAAAIEL00000001"))
	svc := NewService(serials, nil, nil, scanClock)

	res, err := svc.Validate(context.Background(), "APAAAIEL00000001")
	require.NoError(t, err)
	require.Equal(t, serial.StatusSentToVendor, res.Serial.Status)
	require.Equal(t, serial.StatusSentToVendor, serials.rows["APAAAIEL00000001"].Status)

	_, err = svc.Validate(context.Background(), "not-a-barcode!!!")
	require.ErrorIs(t, err, shared.ErrMalformedBarcode)
}

type countingScanMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (m *countingScanMetrics) CountScan(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	m.outcomes[outcome]++
}

func TestScanCountsOutcomes(t *testing.T) {
	serials := newFakeSerials(sentRow("APAAAIEL00000001"))
	metrics := &countingScanMetrics{}
	svc := NewService(serials, nil, metrics, scanClock)
	ctx := context.Background()

	_, err := svc.Scan(ctx, "APAAAIEL00000001", 500, 0, 42)
	require.NoError(t, err)
	_, err = svc.Scan(ctx, "garbage", 500, 0, 42)
	require.Error(t, err)
	// bulk scans count through the same funnel
	_, err = svc.BulkScan(ctx, []string{"APAAAIEL00000099"}, 500, 42)
	require.NoError(t, err)

	require.Equal(t, 1, metrics.outcomes["valid"])
	require.Equal(t, 2, metrics.outcomes["invalid"])
}

func TestLookupWarrantyStatus(t *testing.T) {
	active := sentRow("APAAAIEL00000001")
	active.Status = serial.StatusReceived
	active.WarrantyEnd = scanClock().AddDate(0, 6, 0)
	expired := sentRow("APAAAIEL00000002")
	expired.SerialNo = 2
	expired.Status = serial.StatusConsumed
	expired.WarrantyEnd = scanClock().AddDate(0, -1, 0)
	svc := NewService(newFakeSerials(active, expired), nil, nil, scanClock)

	res, err := svc.Lookup(context.Background(), "APAAAIEL00000001")
	require.NoError(t, err)
	require.Equal(t, "ACTIVE", res.Warranty)

	res, err = svc.Lookup(context.Background(), "APAAAIEL00000002")
	require.NoError(t, err)
	require.Equal(t, "EXPIRED", res.Warranty)
}
