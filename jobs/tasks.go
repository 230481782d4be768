package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/trackline-erp/trackline/internal/registry"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRegistryAutoLink links unlinked model code references to catalog
	// products by SKU.
	TaskRegistryAutoLink = "registry:auto_link"
	// TaskRegistrySyncMissing creates references for products lacking one.
	TaskRegistrySyncMissing = "registry:sync_missing"
	// TaskIdempotencyCleanup prunes processed idempotency keys.
	TaskIdempotencyCleanup = "shared:idempotency_cleanup"
)

// CleanupPayload bounds the idempotency retention window.
type CleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewAutoLinkTask constructs the reconciliation task.
func NewAutoLinkTask() *asynq.Task {
	return asynq.NewTask(TaskRegistryAutoLink, nil)
}

// NewSyncMissingTask constructs the seeding task.
func NewSyncMissingTask() *asynq.Task {
	return asynq.NewTask(TaskRegistrySyncMissing, nil)
}

// NewCleanupTask constructs the idempotency cleanup task.
func NewCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(CleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}

// RegistryReconciler is the slice of the registry service the worker uses.
type RegistryReconciler interface {
	AutoLinkProducts(ctx context.Context) (registry.ReconcileResult, error)
	SyncMissingReferences(ctx context.Context) (registry.ReconcileResult, error)
}

// IdempotencyCleaner prunes old idempotency keys.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// Handlers bundles the task handlers with their dependencies.
type Handlers struct {
	Registry RegistryReconciler
	Idem     IdempotencyCleaner
	Logger   *slog.Logger
}

// HandleAutoLink processes TaskRegistryAutoLink tasks.
func (h Handlers) HandleAutoLink(ctx context.Context, _ *asynq.Task) error {
	result, err := h.Registry.AutoLinkProducts(ctx)
	if err != nil {
		h.Logger.Error("auto link job", slog.Any("error", err))
		return err
	}
	h.Logger.Info("auto link job",
		slog.Int("linked", result.Linked),
		slog.Int("not_found", result.NotFound))
	return nil
}

// HandleSyncMissing processes TaskRegistrySyncMissing tasks.
func (h Handlers) HandleSyncMissing(ctx context.Context, _ *asynq.Task) error {
	result, err := h.Registry.SyncMissingReferences(ctx)
	if err != nil {
		h.Logger.Error("sync missing job", slog.Any("error", err))
		return err
	}
	h.Logger.Info("sync missing job",
		slog.Int("created", result.Created),
		slog.Int("already", result.AlreadyLinked))
	return nil
}

// HandleCleanup processes TaskIdempotencyCleanup tasks.
func (h Handlers) HandleCleanup(ctx context.Context, t *asynq.Task) error {
	var payload CleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Retention <= 0 {
		payload.Retention = 72 * time.Hour
	}
	if err := h.Idem.Cleanup(ctx, payload.Retention); err != nil {
		h.Logger.Error("idempotency cleanup job", slog.Any("error", err))
		return err
	}
	return nil
}
