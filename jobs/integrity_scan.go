package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/provisio-erp/provisio-erp/internal/ledger"
	jobmetrics "github.com/provisio-erp/provisio-erp/internal/jobs"
)

// PositionScanner recomputes stock positions from the movement stream.
type PositionScanner interface {
	ScanPositions(ctx context.Context) ([]ledger.PositionDrift, error)
}

// IntegrityScanJob verifies that every stock position matches the
// quantity implied by its movement history.
type IntegrityScanJob struct {
	scanner PositionScanner
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewIntegrityScanJob constructs the job.
func NewIntegrityScanJob(scanner PositionScanner, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityScanJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntegrityScanJob{scanner: scanner, logger: logger, metrics: metrics}
}

// Handle processes TaskLedgerIntegrityScan tasks.
func (j *IntegrityScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload IntegrityScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics.Track("ledger_integrity_scan")
	drifts, err := j.scanner.ScanPositions(ctx)
	if err != nil {
		j.logger.Error("integrity scan failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger.Info("integrity scan finished",
		slog.String("requested", payload.Requested),
		slog.Int("drifting_positions", len(drifts)))
	return tracker.End(nil)
}
