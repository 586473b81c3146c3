// Package cron drives the periodic dispatch sweep. RunOnce is directly
// callable (tests, the protected HTTP trigger) and Run wraps it in a
// ticker loop for in-process scheduling.
package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/campushub/messaging/internal/model"
	msgsvc "github.com/campushub/messaging/internal/service/message"
)

type lifecycleEngine interface {
	DueMessages(ctx context.Context, limit int) ([]model.Message, error)
	Dispatch(ctx context.Context, id uuid.UUID, force bool) (msgsvc.DispatchResult, error)
}

// Report aggregates the outcome of one sweep for observability.
type Report struct {
	Processed int      `json:"processed"`
	Sent      int      `json:"sent"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Dispatcher sweeps due messages through the lifecycle engine in batches.
// Overlapping sweeps are safe: the engine's per-message locking guarantees
// each message is sent at most once, losers observe a skipped no-op.
type Dispatcher struct {
	engine    lifecycleEngine
	batchSize int
}

// NewDispatcher creates a dispatcher over the given engine.
func NewDispatcher(engine lifecycleEngine, batchSize int) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 100
	}

	return &Dispatcher{engine: engine, batchSize: batchSize}
}

// RunOnce dispatches every due message once. Per-message failures are
// recorded in the report, never propagated: one bad message must not stop
// the batch.
func (d *Dispatcher) RunOnce(ctx context.Context) Report {
	var report Report

	messages, err := d.engine.DueMessages(ctx, d.batchSize)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("query due messages: %v", err))
		return report
	}

	for _, msg := range messages {
		if ctx.Err() != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("batch interrupted: %v", ctx.Err()))
			break
		}

		report.Processed++

		res, err := d.engine.Dispatch(ctx, msg.ID, false)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", msg.ID, err))
			continue
		}

		switch {
		case res.Success:
			report.Sent++
		case res.Skipped:
			// A concurrent sweep already handled it.
		default:
			report.Failed++
			if res.Reason != "" {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", msg.ID, res.Reason))
			}
		}
	}

	return report
}

// Run invokes RunOnce on every tick until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	zlog.Logger.Info().Dur("interval", interval).Msg("cron dispatcher started")

	for {
		select {
		case <-ctx.Done():
			zlog.Logger.Info().Msg("cron dispatcher stopped")
			return
		case <-ticker.C:
			report := d.RunOnce(ctx)
			if report.Processed > 0 || len(report.Errors) > 0 {
				zlog.Logger.Info().
					Int("processed", report.Processed).
					Int("sent", report.Sent).
					Int("failed", report.Failed).
					Int("errors", len(report.Errors)).
					Msg("cron sweep finished")
			}
		}
	}
}
