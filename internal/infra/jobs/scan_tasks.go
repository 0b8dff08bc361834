package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/logger"
)

const (
	// TypeScanExecute is the task type for executing a scan run.
	TypeScanExecute = "scan:execute"
)

// ScanExecutePayload contains the data for one scan execution job.
type ScanExecutePayload struct {
	ScanID   string `json:"scan_id"`
	TenantID string `json:"tenant_id"`
}

// NewScanExecuteTask creates a task for executing a scan run. Retries are
// disabled: a failed run is a terminal scan state, not a transient error,
// and re-running it would double-count findings metrics.
func NewScanExecuteTask(payload ScanExecutePayload, timeout time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal scan execute payload: %w", err)
	}

	opts := []asynq.Option{
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),
		asynq.Queue("scans"),
	}

	return asynq.NewTask(TypeScanExecute, data, opts...), nil
}

// ScanExecutor defines the interface for running a dequeued scan.
// This is implemented by ScanService.
type ScanExecutor interface {
	Execute(ctx context.Context, scanID shared.ID) error
}

// ScanTaskHandler handles scan execution tasks.
type ScanTaskHandler struct {
	executor ScanExecutor
	logger   *logger.Logger
}

// NewScanTaskHandler creates a new scan task handler.
func NewScanTaskHandler(executor ScanExecutor, log *logger.Logger) *ScanTaskHandler {
	return &ScanTaskHandler{
		executor: executor,
		logger:   log.With("component", "scan_task_handler"),
	}
}

// HandleScanExecute handles one scan execution task.
func (h *ScanTaskHandler) HandleScanExecute(ctx context.Context, t *asynq.Task) error {
	var payload ScanExecutePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("failed to unmarshal scan execute payload", "error", err)
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	scanID, err := shared.IDFromString(payload.ScanID)
	if err != nil {
		h.logger.Error("invalid scan_id", "scan_id", payload.ScanID, "error", err)
		return fmt.Errorf("invalid scan_id: %w", err)
	}

	h.logger.Info("processing scan task", "scan_id", payload.ScanID, "tenant_id", payload.TenantID)

	if err := h.executor.Execute(ctx, scanID); err != nil {
		h.logger.Error("scan execution failed", "scan_id", payload.ScanID, "error", err)
		return fmt.Errorf("execute scan %s: %w", payload.ScanID, err)
	}
	return nil
}
