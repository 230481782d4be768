package sequence

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trackline-erp/trackline/internal/shared"
)

type memorySeqRepo struct {
	mu   sync.Mutex
	rows map[Key]*SerialSequence
}

func newMemorySeqRepo() *memorySeqRepo {
	return &memorySeqRepo{rows: make(map[Key]*SerialSequence)}
}

func (r *memorySeqRepo) GetOrCreate(ctx context.Context, key Key) (SerialSequence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[key]; ok {
		return *row, nil
	}
	row := &SerialSequence{Key: key}
	r.rows[key] = row
	return *row, nil
}

func (r *memorySeqRepo) Get(ctx context.Context, key Key) (SerialSequence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[key]
	if !ok {
		return SerialSequence{}, ErrNotFound
	}
	return *row, nil
}

func (r *memorySeqRepo) Allocate(ctx context.Context, key Key, count int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[key]
	if !ok {
		row = &SerialSequence{Key: key}
		r.rows[key] = row
	}
	row.LastSerial += count
	row.TotalGenerated += count
	return row.LastSerial - count + 1, nil
}

func (r *memorySeqRepo) SetLastSerial(ctx context.Context, key Key, value int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[key]
	if !ok {
		return ErrNotFound
	}
	row.LastSerial = value
	return nil
}

func (r *memorySeqRepo) ListByModel(ctx context.Context, modelCode string) ([]SerialSequence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []SerialSequence
	for _, row := range r.rows {
		if row.ModelCode == modelCode {
			out = append(out, *row)
		}
	}
	return out, nil
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testKey() Key {
	return Key{ModelCode: "IEL", SupplierCode: "FS", YearCode: "AA", MonthCode: "A"}
}

func TestAllocateContiguousBlocks(t *testing.T) {
	svc := NewService(newMemorySeqRepo(), nil, nil)
	ctx := context.Background()

	start, err := svc.Allocate(ctx, testKey(), 3)
	require.NoError(t, err)
	require.EqualValues(t, 1, start)

	start, err = svc.Allocate(ctx, testKey(), 2)
	require.NoError(t, err)
	require.EqualValues(t, 4, start)
}

func TestAllocateConcurrentNoDuplicatesNoGaps(t *testing.T) {
	svc := NewService(newMemorySeqRepo(), nil, nil)
	ctx := context.Background()
	const n = 100

	results := make([]int64, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Allocate(ctx, testKey(), 1)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i, serial := range results {
		require.EqualValues(t, i+1, serial, "serials must be distinct and contiguous")
	}
}

func TestAllocateDifferentKeysIndependent(t *testing.T) {
	svc := NewService(newMemorySeqRepo(), nil, nil)
	ctx := context.Background()

	otherKey := testKey()
	otherKey.SupplierCode = "ZZ"

	_, err := svc.Allocate(ctx, testKey(), 5)
	require.NoError(t, err)

	start, err := svc.Allocate(ctx, otherKey, 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, start, "dual series must not share a counter")
}

func TestAllocateRejectsNonPositiveCount(t *testing.T) {
	svc := NewService(newMemorySeqRepo(), nil, nil)
	_, err := svc.Allocate(context.Background(), testKey(), 0)
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Allocate(context.Background(), testKey(), -4)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPreviewDoesNotAdvance(t *testing.T) {
	repo := newMemorySeqRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	serials, err := svc.Preview(ctx, testKey(), 3)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, serials)

	// Preview is idempotent.
	serials, err = svc.Preview(ctx, testKey(), 3)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, serials)

	start, err := svc.Allocate(ctx, testKey(), 3)
	require.NoError(t, err)
	require.EqualValues(t, 1, start)

	serials, err = svc.Preview(ctx, testKey(), 2)
	require.NoError(t, err)
	require.Equal(t, []int64{4, 5}, serials)

	seq, err := svc.Status(ctx, testKey())
	require.NoError(t, err)
	require.EqualValues(t, 3, seq.LastSerial)
	require.EqualValues(t, 3, seq.TotalGenerated)
}

func TestResetGuardsIssuedSerials(t *testing.T) {
	repo := newMemorySeqRepo()
	audit := &recordingAudit{}
	svc := NewService(repo, audit, nil)
	ctx := context.Background()

	_, err := svc.Allocate(ctx, testKey(), 10)
	require.NoError(t, err)

	err = svc.Reset(ctx, testKey(), 5, 42)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, audit.logs)

	require.NoError(t, svc.Reset(ctx, testKey(), 100, 42))
	seq, err := svc.Status(ctx, testKey())
	require.NoError(t, err)
	require.EqualValues(t, 100, seq.LastSerial)

	require.Len(t, audit.logs, 1)
	require.Equal(t, "SEQUENCE_RESET", audit.logs[0].Action)
	require.EqualValues(t, 42, audit.logs[0].ActorID)
}

func TestResetUnknownKey(t *testing.T) {
	svc := NewService(newMemorySeqRepo(), nil, nil)
	err := svc.Reset(context.Background(), testKey(), 10, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCurrentPeriodUsesInjectedClock(t *testing.T) {
	svc := NewService(newMemorySeqRepo(), nil, fixedClock(time.Date(2021, time.March, 15, 0, 0, 0, 0, time.UTC)))
	period, err := svc.CurrentPeriod()
	require.NoError(t, err)
	require.Equal(t, "AB", period.YearCode)
	require.Equal(t, "B", period.YearShort)
	require.Equal(t, "C", period.MonthCode)
}
