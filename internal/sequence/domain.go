package sequence

import (
	"fmt"
	"time"

	"github.com/trackline-erp/trackline/internal/shared"
)

// Key identifies one monotonic counter. Finished-goods series carry an
// empty supplier code; spare-part series carry the real one. Two series
// never share a counter.
type Key struct {
	ModelCode    string
	SupplierCode string
	YearCode     string
	MonthCode    string
}

// String renders the key for audit entries and idempotency keys.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s%s", k.ModelCode, k.SupplierCode, k.YearCode, k.MonthCode)
}

// SerialSequence is one counter row.
type SerialSequence struct {
	Key
	LastSerial     int64
	TotalGenerated int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

var (
	// ErrNotFound indicates the counter row does not exist.
	ErrNotFound = fmt.Errorf("sequence: %w", shared.ErrNotFound)
	// ErrValidation indicates invalid allocation input.
	ErrValidation = fmt.Errorf("sequence: %w", shared.ErrValidation)
)
