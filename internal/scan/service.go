package scan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trackline-erp/trackline/internal/barcode"
	"github.com/trackline-erp/trackline/internal/serial"
	"github.com/trackline-erp/trackline/internal/shared"
)

// SerialPort is the slice of the serial registry the gateway needs.
type SerialPort interface {
	GetByBarcode(ctx context.Context, code string) (serial.POSerial, error)
	MarkReceived(ctx context.Context, code string, grnID, grnItemID, userID int64) (serial.POSerial, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts scan outcomes.
type MetricsPort interface {
	CountScan(outcome string)
}

// Service is the warehouse receiving gateway. It owns no rows itself;
// every mutation goes through the serial registry.
type Service struct {
	serials SerialPort
	audit   AuditPort
	metrics MetricsPort
	now     func() time.Time
}

// NewService constructs the scan gateway. A nil clock falls back to wall
// time; metrics and audit may be nil.
func NewService(serials SerialPort, audit AuditPort, metrics MetricsPort, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{serials: serials, audit: audit, metrics: metrics, now: clock}
}

// Result is one scanned barcode's detail plus decoded fields.
type Result struct {
	Serial   serial.POSerial
	Fields   barcode.Fields
	Warranty string
}

// Scan receives one barcode against a GRN. The barcode must decode, must
// have been issued, and must currently be SENT_TO_VENDOR; anything else
// fails without touching the row.
func (s *Service) Scan(ctx context.Context, code string, grnID, grnItemID, userID int64) (Result, error) {
	code = normalize(code)
	fields, err := barcode.Decode(code)
	if err != nil {
		s.countScan("invalid")
		return Result{}, err
	}
	if grnID <= 0 {
		s.countScan("invalid")
		return Result{}, fmt.Errorf("grn id required: %w", shared.ErrValidation)
	}
	row, err := s.serials.MarkReceived(ctx, code, grnID, grnItemID, userID)
	if err != nil {
		s.countScan("invalid")
		return Result{}, err
	}
	s.countScan("valid")
	s.recordAudit(ctx, "SCAN_RECEIVE", code, map[string]any{"grn_id": grnID, "grn_item_id": grnItemID})
	return Result{Serial: row, Fields: fields, Warranty: row.WarrantyStatus(s.now())}, nil
}

// BulkOutcome is one barcode's verdict within a bulk scan.
type BulkOutcome struct {
	Barcode string `json:"barcode"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Status  string `json:"status,omitempty"`
}

// BulkResult tallies a bulk scan.
type BulkResult struct {
	Valid    int           `json:"valid"`
	Invalid  int           `json:"invalid"`
	Outcomes []BulkOutcome `json:"outcomes"`
}

// BulkScan applies Scan to each barcode independently. One bad barcode
// never aborts the batch; the caller always gets the full tally.
func (s *Service) BulkScan(ctx context.Context, codes []string, grnID, userID int64) (BulkResult, error) {
	if len(codes) == 0 {
		return BulkResult{}, fmt.Errorf("no barcodes supplied: %w", shared.ErrValidation)
	}
	result := BulkResult{Outcomes: make([]BulkOutcome, 0, len(codes))}
	for _, code := range codes {
		code = normalize(code)
		res, err := s.Scan(ctx, code, grnID, 0, userID)
		if err != nil {
			result.Invalid++
			result.Outcomes = append(result.Outcomes, BulkOutcome{
				Barcode: code,
				Error:   shared.UserSafeMessage(err),
			})
			continue
		}
		result.Valid++
		result.Outcomes = append(result.Outcomes, BulkOutcome{
			Barcode: code,
			OK:      true,
			Status:  string(res.Serial.Status),
		})
	}
	s.recordAudit(ctx, "SCAN_BULK", uuid.NewString(), map[string]any{
		"grn_id":  grnID,
		"valid":   result.Valid,
		"invalid": result.Invalid,
	})
	return result, nil
}

// Validate decodes and looks up a barcode without mutating anything.
func (s *Service) Validate(ctx context.Context, code string) (Result, error) {
	code = normalize(code)
	fields, err := barcode.Decode(code)
	if err != nil {
		return Result{}, err
	}
	row, err := s.serials.GetByBarcode(ctx, code)
	if err != nil {
		return Result{}, err
	}
	return Result{Serial: row, Fields: fields, Warranty: row.WarrantyStatus(s.now())}, nil
}

// Lookup returns full detail plus the computed warranty status.
func (s *Service) Lookup(ctx context.Context, code string) (Result, error) {
	return s.Validate(ctx, code)
}

func (s *Service) countScan(outcome string) {
	if s.metrics != nil {
		s.metrics.CountScan(outcome)
	}
}

func (s *Service) recordAudit(ctx context.Context, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	actor := shared.ActorFromContext(ctx)
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actor.ID, Action: action, Entity: "scan", EntityID: entityID, Meta: meta})
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
