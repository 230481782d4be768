package serial

import (
	"fmt"
	"time"

	"github.com/trackline-erp/trackline/internal/shared"
)

// Status is the lifecycle state of an issued serial. Transitions move
// strictly forward; nothing is skippable or reversible.
type Status string

const (
	StatusGenerated    Status = "GENERATED"
	StatusSentToVendor Status = "SENT_TO_VENDOR"
	StatusReceived     Status = "RECEIVED"
	StatusRejected     Status = "REJECTED"
	StatusConsumed     Status = "CONSUMED"
)

var forwardTransitions = map[Status][]Status{
	StatusGenerated:    {StatusSentToVendor},
	StatusSentToVendor: {StatusReceived},
	StatusReceived:     {StatusRejected, StatusConsumed},
}

// CanTransition reports whether from may move directly to to.
func CanTransition(from, to Status) bool {
	for _, next := range forwardTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// POSerial is one issued barcode row. Rows are append-only; only status
// and the receiving stamps ever change.
type POSerial struct {
	ID            int64
	Barcode       string
	SerialNo      int64
	ModelCode     string
	ItemType      string
	PORef         string
	Status        Status
	GRNID         int64 // zero until received
	GRNItemID     int64 // zero until received
	ReceivedBy    int64 // zero until received
	ReceivedAt    time.Time
	WarrantyStart time.Time
	WarrantyEnd   time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// WarrantyStatus computes the warranty state at now.
func (p POSerial) WarrantyStatus(now time.Time) string {
	if p.WarrantyEnd.IsZero() {
		return "NONE"
	}
	if p.WarrantyEnd.After(now) {
		return "ACTIVE"
	}
	return "EXPIRED"
}

// StatusCounts tallies serials per lifecycle state for one PO.
type StatusCounts struct {
	Generated    int64 `json:"generated"`
	SentToVendor int64 `json:"sent_to_vendor"`
	Received     int64 `json:"received"`
	Rejected     int64 `json:"rejected"`
	Consumed     int64 `json:"consumed"`
	Total        int64 `json:"total"`
}

// DashboardCounts aggregates issuance and receiving activity globally.
type DashboardCounts struct {
	IssuedTotal   int64 `json:"issued_total"`
	InTransit     int64 `json:"in_transit"`
	ReceivedTotal int64 `json:"received_total"`
	ReceivedToday int64 `json:"received_today"`
	RejectedTotal int64 `json:"rejected_total"`
	OpenPOCount   int64 `json:"open_po_count"`
}

var (
	// ErrNotFound indicates an unknown PO or barcode.
	ErrNotFound = fmt.Errorf("serial: %w", shared.ErrNotFound)
	// ErrInvalidState occurs when a transition violates the lifecycle.
	ErrInvalidState = fmt.Errorf("serial: %w", shared.ErrInvalidState)
	// ErrValidation indicates invalid input.
	ErrValidation = fmt.Errorf("serial: %w", shared.ErrValidation)
	// ErrDuplicate indicates the barcode was already issued.
	ErrDuplicate = fmt.Errorf("serial: %w", shared.ErrDuplicateCode)
)
