package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/logger"
)

// Client enqueues background jobs using Asynq. It implements the scan
// service's enqueuer contract.
type Client struct {
	client      *asynq.Client
	scanTimeout time.Duration
	logger      *logger.Logger
}

// ClientConfig contains configuration for the job client.
type ClientConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ScanTimeout   time.Duration
}

// NewClient creates a new job client for enqueueing tasks.
func NewClient(cfg ClientConfig, log *logger.Logger) *Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	return &Client{
		client:      client,
		scanTimeout: cfg.ScanTimeout,
		logger:      log.With("component", "job_client"),
	}
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueScan enqueues a scan execution job. The task timeout sits above
// the scan timeout so the service, not asynq, decides when a run is dead.
func (c *Client) EnqueueScan(ctx context.Context, scanID, tenantID shared.ID) error {
	task, err := NewScanExecuteTask(ScanExecutePayload{
		ScanID:   scanID.String(),
		TenantID: tenantID.String(),
	}, c.scanTimeout+time.Minute)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		c.logger.Error("failed to enqueue scan",
			"scan_id", scanID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Info("scan queued",
		"task_id", info.ID,
		"scan_id", scanID.String(),
		"queue", info.Queue,
	)
	return nil
}
