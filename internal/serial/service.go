package serial

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/trackline-erp/trackline/internal/barcode"
	"github.com/trackline-erp/trackline/internal/registry"
	"github.com/trackline-erp/trackline/internal/sequence"
	"github.com/trackline-erp/trackline/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetByBarcode(ctx context.Context, code string) (POSerial, error)
	ListByPO(ctx context.Context, poRef string) ([]POSerial, error)
	CountsByPO(ctx context.Context, poRef string) (StatusCounts, error)
	DashboardCounts(ctx context.Context, now time.Time) (DashboardCounts, error)
	MarkSentToVendor(ctx context.Context, poRef string) (int64, error)
	TransitionStatus(ctx context.Context, code string, from, to Status) (POSerial, error)
	MarkReceived(ctx context.Context, code string, grnID, grnItemID, receivedBy int64, receivedAt, warrantyStart, warrantyEnd time.Time) (POSerial, error)
}

// TxRepository exposes the operations of one issuance transaction. The
// sequence advance and the row inserts commit or roll back together.
type TxRepository interface {
	AllocateSequence(ctx context.Context, key sequence.Key, count int64) (int64, error)
	InsertSerials(ctx context.Context, rows []POSerial) error
}

// RegistryPort resolves barcode model codes against the code registry.
type RegistryPort interface {
	ResolveModelCode(ctx context.Context, modelCode string) (registry.ModelCodeReference, error)
}

// SequencePort previews upcoming serials without advancing the counter.
// Allocation itself runs inside the issuance transaction, not through
// this port.
type SequencePort interface {
	Preview(ctx context.Context, key sequence.Key, count int64) ([]int64, error)
}

// IdempotencyPort guards replayed issuance requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts issued serials per item type.
type MetricsPort interface {
	CountIssued(itemType string, n int)
}

// WarrantyMonths is stamped on every received serial.
const WarrantyMonths = 12

const dashboardCacheKey = "trackline:serial:dashboard"
const dashboardCacheTTL = 30 * time.Second

// Service owns the issued-serial lifecycle.
type Service struct {
	repo    RepositoryPort
	reg     RegistryPort
	seqs    SequencePort
	idem    IdempotencyPort
	audit   AuditPort
	metrics MetricsPort
	cache   *redis.Client // nil disables dashboard caching
	sf      singleflight.Group
	now     func() time.Time
}

// NewService constructs the serial registry service. A nil clock falls
// back to wall time; audit, metrics and cache may be nil.
func NewService(repo RepositoryPort, reg RegistryPort, seqs SequencePort, idem IdempotencyPort, audit AuditPort, metrics MetricsPort, cache *redis.Client, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{repo: repo, reg: reg, seqs: seqs, idem: idem, audit: audit, metrics: metrics, cache: cache, now: clock}
}

// GenerateInput describes one batch issuance request.
type GenerateInput struct {
	PORef          string
	ModelCode      string
	SupplierCode   string // spare parts only
	ChannelCode    string // spare parts only
	Quantity       int64
	IdempotencyKey string // optional replay guard
}

// GenerateForPO reserves a contiguous serial block, encodes a barcode for
// every serial and persists the rows as GENERATED, all in one transaction.
func (s *Service) GenerateForPO(ctx context.Context, input GenerateInput) ([]POSerial, error) {
	poRef := strings.TrimSpace(input.PORef)
	if poRef == "" {
		return nil, fmt.Errorf("po reference required: %w", ErrValidation)
	}
	if input.Quantity <= 0 {
		return nil, fmt.Errorf("quantity %d: %w", input.Quantity, ErrValidation)
	}
	ref, err := s.reg.ResolveModelCode(ctx, input.ModelCode)
	if err != nil {
		return nil, err
	}
	key, fields, err := s.issuanceKey(ref, input.SupplierCode, input.ChannelCode)
	if err != nil {
		return nil, err
	}

	if input.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, input.IdempotencyKey, "serial"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return nil, fmt.Errorf("issuance already processed: %w", ErrDuplicate)
			}
			return nil, err
		}
	}

	issuedAt := s.now()
	rows := make([]POSerial, 0, input.Quantity)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		start, err := tx.AllocateSequence(ctx, key, input.Quantity)
		if err != nil {
			return err
		}
		for i := int64(0); i < input.Quantity; i++ {
			f := fields
			f.Serial = start + i
			code, err := barcode.Encode(f.Kind, f)
			if err != nil {
				return err
			}
			rows = append(rows, POSerial{
				Barcode:   code,
				SerialNo:  f.Serial,
				ModelCode: ref.ModelCode,
				ItemType:  string(ref.ItemType()),
				PORef:     poRef,
				Status:    StatusGenerated,
				CreatedAt: issuedAt,
			})
		}
		return tx.InsertSerials(ctx, rows)
	})
	if err != nil {
		if input.IdempotencyKey != "" && s.idem != nil {
			_ = s.idem.Delete(ctx, input.IdempotencyKey)
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.CountIssued(string(ref.ItemType()), len(rows))
	}
	s.recordAudit(ctx, "SERIAL_GENERATE", poRef, map[string]any{
		"model_code": ref.ModelCode,
		"quantity":   input.Quantity,
		"first":      rows[0].Barcode,
		"last":       rows[len(rows)-1].Barcode,
	})
	s.invalidateDashboard(ctx)
	return rows, nil
}

// PreviewInput mirrors GenerateInput minus the PO binding.
type PreviewInput struct {
	ModelCode    string
	SupplierCode string
	ChannelCode  string
	Quantity     int64
}

// Preview returns the barcodes the next issuance would produce without
// advancing any counter.
func (s *Service) Preview(ctx context.Context, input PreviewInput) ([]string, error) {
	if input.Quantity <= 0 {
		return nil, fmt.Errorf("quantity %d: %w", input.Quantity, ErrValidation)
	}
	ref, err := s.reg.ResolveModelCode(ctx, input.ModelCode)
	if err != nil {
		return nil, err
	}
	key, fields, err := s.issuanceKey(ref, input.SupplierCode, input.ChannelCode)
	if err != nil {
		return nil, err
	}
	serials, err := s.seqs.Preview(ctx, key, input.Quantity)
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(serials))
	for _, n := range serials {
		f := fields
		f.Serial = n
		code, err := barcode.Encode(f.Kind, f)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// issuanceKey derives the sequence key and barcode field template for a
// resolved model reference. Spare parts carry supplier+channel and the
// one-letter year; finished goods carry the model and two-letter year.
// Each distinct tuple owns its own counter row.
func (s *Service) issuanceKey(ref registry.ModelCodeReference, supplierCode, channelCode string) (sequence.Key, barcode.Fields, error) {
	period, err := sequence.PeriodFor(s.now())
	if err != nil {
		return sequence.Key{}, barcode.Fields{}, err
	}
	if ref.ItemType() == registry.ItemTypeSparePart {
		supplierCode = strings.ToUpper(strings.TrimSpace(supplierCode))
		channelCode = strings.ToUpper(strings.TrimSpace(channelCode))
		if len(supplierCode) != 2 {
			return sequence.Key{}, barcode.Fields{}, fmt.Errorf("supplier code %q must be 2 characters: %w", supplierCode, ErrValidation)
		}
		if !barcode.IsChannelCode(channelCode) {
			return sequence.Key{}, barcode.Fields{}, fmt.Errorf("channel code %q not registered: %w", channelCode, ErrValidation)
		}
		key := sequence.Key{
			ModelCode:    ref.ModelCode,
			SupplierCode: supplierCode,
			YearCode:     period.YearShort,
			MonthCode:    period.MonthCode,
		}
		fields := barcode.Fields{
			Kind:         barcode.KindSparePart,
			SupplierCode: supplierCode,
			YearCode:     period.YearShort,
			MonthCode:    period.MonthCode,
			ChannelCode:  channelCode,
		}
		return key, fields, nil
	}
	key := sequence.Key{
		ModelCode: ref.ModelCode,
		YearCode:  period.YearCode,
		MonthCode: period.MonthCode,
	}
	fields := barcode.Fields{
		Kind:      barcode.KindFinishedGoods,
		YearCode:  period.YearCode,
		MonthCode: period.MonthCode,
		ModelCode: ref.ModelCode,
	}
	return key, fields, nil
}

// MarkSentToVendor bulk-transitions a PO's GENERATED rows. Rows already
// past that state are left alone, so replays are no-ops.
func (s *Service) MarkSentToVendor(ctx context.Context, poRef string) (int64, error) {
	poRef = strings.TrimSpace(poRef)
	if poRef == "" {
		return 0, fmt.Errorf("po reference required: %w", ErrValidation)
	}
	updated, err := s.repo.MarkSentToVendor(ctx, poRef)
	if err != nil {
		return 0, err
	}
	if updated > 0 {
		s.recordAudit(ctx, "SERIAL_MARK_SENT", poRef, map[string]any{"updated": updated})
		s.invalidateDashboard(ctx)
	}
	return updated, nil
}

// MarkReceived transitions one barcode from SENT_TO_VENDOR to RECEIVED,
// stamping GRN linkage and the warranty window. The scan gateway is the
// only caller.
func (s *Service) MarkReceived(ctx context.Context, code string, grnID, grnItemID, userID int64) (POSerial, error) {
	current, err := s.repo.GetByBarcode(ctx, code)
	if err != nil {
		return POSerial{}, err
	}
	if current.Status != StatusSentToVendor {
		return POSerial{}, fmt.Errorf("barcode %s in state %s: %w", code, current.Status, ErrInvalidState)
	}
	receivedAt := s.now()
	row, err := s.repo.MarkReceived(ctx, code, grnID, grnItemID, userID,
		receivedAt, receivedAt, receivedAt.AddDate(0, WarrantyMonths, 0))
	if err != nil {
		return POSerial{}, err
	}
	s.invalidateDashboard(ctx)
	return row, nil
}

// Reject moves a RECEIVED serial to its REJECTED terminal state.
func (s *Service) Reject(ctx context.Context, code string) (POSerial, error) {
	return s.transition(ctx, code, StatusRejected, "SERIAL_REJECT")
}

// Consume moves a RECEIVED serial to its CONSUMED terminal state.
func (s *Service) Consume(ctx context.Context, code string) (POSerial, error) {
	return s.transition(ctx, code, StatusConsumed, "SERIAL_CONSUME")
}

func (s *Service) transition(ctx context.Context, code string, to Status, action string) (POSerial, error) {
	current, err := s.repo.GetByBarcode(ctx, code)
	if err != nil {
		return POSerial{}, err
	}
	if !CanTransition(current.Status, to) {
		return POSerial{}, fmt.Errorf("barcode %s %s -> %s: %w", code, current.Status, to, ErrInvalidState)
	}
	row, err := s.repo.TransitionStatus(ctx, code, current.Status, to)
	if err != nil {
		return POSerial{}, err
	}
	s.recordAudit(ctx, action, code, map[string]any{"from": current.Status, "to": to})
	s.invalidateDashboard(ctx)
	return row, nil
}

// ListByPO returns every serial issued for a PO.
func (s *Service) ListByPO(ctx context.Context, poRef string) ([]POSerial, error) {
	return s.repo.ListByPO(ctx, strings.TrimSpace(poRef))
}

// GetByBarcode returns one issued serial.
func (s *Service) GetByBarcode(ctx context.Context, code string) (POSerial, error) {
	return s.repo.GetByBarcode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

// CountsByPO tallies a PO's serials per state.
func (s *Service) CountsByPO(ctx context.Context, poRef string) (StatusCounts, error) {
	return s.repo.CountsByPO(ctx, strings.TrimSpace(poRef))
}

// ExportFormat selects the vendor-printing rendering.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportText ExportFormat = "txt"
)

// Export renders a PO's barcodes for vendor printing.
func (s *Service) Export(ctx context.Context, poRef string, format ExportFormat) (string, error) {
	rows, err := s.ListByPO(ctx, poRef)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("po %s has no serials: %w", poRef, ErrNotFound)
	}
	var b strings.Builder
	switch format {
	case ExportCSV:
		b.WriteString("barcode,serial_no,model_code,status\n")
		for _, row := range rows {
			fmt.Fprintf(&b, "%s,%d,%s,%s\n", row.Barcode, row.SerialNo, row.ModelCode, row.Status)
		}
	case ExportText:
		for _, row := range rows {
			b.WriteString(row.Barcode)
			b.WriteByte('\n')
		}
	default:
		return "", fmt.Errorf("export format %q: %w", format, ErrValidation)
	}
	return b.String(), nil
}

// Dashboard returns global issuance counters, cached briefly under a
// singleflight guard so a burst of dashboard loads costs one query.
func (s *Service) Dashboard(ctx context.Context) (DashboardCounts, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, dashboardCacheKey).Bytes(); err == nil {
			var counts DashboardCounts
			if json.Unmarshal(cached, &counts) == nil {
				return counts, nil
			}
		}
	}
	v, err, _ := s.sf.Do(dashboardCacheKey, func() (any, error) {
		counts, err := s.repo.DashboardCounts(ctx, s.now())
		if err != nil {
			return DashboardCounts{}, err
		}
		if s.cache != nil {
			if payload, err := json.Marshal(counts); err == nil {
				s.cache.Set(ctx, dashboardCacheKey, payload, dashboardCacheTTL)
			}
		}
		return counts, nil
	})
	if err != nil {
		return DashboardCounts{}, err
	}
	return v.(DashboardCounts), nil
}

func (s *Service) invalidateDashboard(ctx context.Context) {
	if s.cache != nil {
		s.cache.Del(ctx, dashboardCacheKey)
	}
}

func (s *Service) recordAudit(ctx context.Context, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	actor := shared.ActorFromContext(ctx)
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actor.ID, Action: action, Entity: "po_serial", EntityID: entityID, Meta: meta})
}
