package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trackline-erp/trackline/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	GetOrCreate(ctx context.Context, key Key) (SerialSequence, error)
	Get(ctx context.Context, key Key) (SerialSequence, error)
	Allocate(ctx context.Context, key Key, count int64) (int64, error)
	SetLastSerial(ctx context.Context, key Key, value int64) error
	ListByModel(ctx context.Context, modelCode string) ([]SerialSequence, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns serial-number allocation. All contention is delegated to
// the repository's atomic read-modify-write; the service never loops
// single increments.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the allocator. A nil clock falls back to wall time;
// tests inject a fixed one.
func NewService(repo RepositoryPort, audit AuditPort, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{repo: repo, audit: audit, now: clock}
}

// CurrentPeriod returns the period codes for the injected clock's now.
func (s *Service) CurrentPeriod() (Period, error) {
	return PeriodFor(s.now())
}

// GetOrCreate returns the counter row for key, creating it at zero.
func (s *Service) GetOrCreate(ctx context.Context, key Key) (SerialSequence, error) {
	if err := validateKey(key); err != nil {
		return SerialSequence{}, err
	}
	return s.repo.GetOrCreate(ctx, key)
}

// Allocate atomically reserves [start .. start+count-1] under key and
// returns start. Concurrent callers for the same key never overlap.
func (s *Service) Allocate(ctx context.Context, key Key, count int64) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	if count <= 0 {
		return 0, fmt.Errorf("allocate count %d: %w", count, ErrValidation)
	}
	return s.repo.Allocate(ctx, key, count)
}

// Preview returns the serials the next Allocate(count) would hand out
// without advancing any state.
func (s *Service) Preview(ctx context.Context, key Key, count int64) ([]int64, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, fmt.Errorf("preview count %d: %w", count, ErrValidation)
	}
	seq, err := s.repo.Get(ctx, key)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	serials := make([]int64, 0, count)
	for i := int64(1); i <= count; i++ {
		serials = append(serials, seq.LastSerial+i)
	}
	return serials, nil
}

// Status returns the counter row for key.
func (s *Service) Status(ctx context.Context, key Key) (SerialSequence, error) {
	if err := validateKey(key); err != nil {
		return SerialSequence{}, err
	}
	return s.repo.Get(ctx, key)
}

// ListByModel returns every counter row for a model code.
func (s *Service) ListByModel(ctx context.Context, modelCode string) ([]SerialSequence, error) {
	if modelCode == "" {
		return nil, fmt.Errorf("model code required: %w", ErrValidation)
	}
	return s.repo.ListByModel(ctx, modelCode)
}

// Reset rewrites last_serial. It is privileged, audited, and refuses to
// move the counter below serials that were already issued.
func (s *Service) Reset(ctx context.Context, key Key, newValue int64, actorID int64) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if newValue < 0 {
		return fmt.Errorf("reset value %d: %w", newValue, ErrValidation)
	}
	seq, err := s.repo.Get(ctx, key)
	if err != nil {
		return err
	}
	if newValue < seq.LastSerial {
		return fmt.Errorf("reset to %d below issued serial %d: %w", newValue, seq.LastSerial, ErrValidation)
	}
	if err := s.repo.SetLastSerial(ctx, key, newValue); err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "SEQUENCE_RESET",
			Entity:   "serial_sequence",
			EntityID: key.String(),
			Meta:     map[string]any{"from": seq.LastSerial, "to": newValue},
		})
	}
	return nil
}

func validateKey(key Key) error {
	if key.ModelCode == "" || key.YearCode == "" || key.MonthCode == "" {
		return fmt.Errorf("incomplete sequence key %q: %w", key.String(), ErrValidation)
	}
	return nil
}

