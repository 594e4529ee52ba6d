// Package worker implements the steady-state worker loop (C6): leasing
// requests from the coordinator, driving recursive distribution under a
// per-request timeout, and retiring once either lifetime budget expires.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/pithecene-io/triage/coordinator"
	"github.com/pithecene-io/triage/distribute"
	"github.com/pithecene-io/triage/log"
	"github.com/pithecene-io/triage/metrics"
	"github.com/pithecene-io/triage/types"
)

// pollInterval is how long the loop sleeps when the task queue is empty.
const pollInterval = 250 * time.Millisecond

// Config bounds one worker process's lifetime.
type Config struct {
	// MaxFiles retires the worker after this many requests are popped,
	// counting both leased requests and tasks skipped as already expired.
	// Despite the name, this counts requests, not individual file nodes
	// (preserved from the source system's behavior; see design notes).
	MaxFiles int
	// TimeToLive retires the worker after this much wall-clock uptime.
	TimeToLive time.Duration
}

// Worker runs the lease/distribute/retire loop for one process.
type Worker struct {
	coord       *coordinator.Client
	distributor *distribute.Distributor
	metrics     *metrics.Collector
	logger      *log.Logger
	cfg         Config
}

// New builds a Worker.
func New(coord *coordinator.Client, distributor *distribute.Distributor, collector *metrics.Collector, logger *log.Logger, cfg Config) *Worker {
	return &Worker{
		coord:       coord,
		distributor: distributor,
		metrics:     collector,
		logger:      logger,
		cfg:         cfg,
	}
}

// Run drives the worker to retirement: it returns nil once either lifetime
// budget (max_files or time_to_live) is exhausted, and returns the context's
// error if the outer context is cancelled first (e.g. by a supervisor's
// shutdown signal).
func (w *Worker) Run(ctx context.Context) error {
	workExpire := time.Now().Add(w.cfg.TimeToLive)
	filesDone := 0

	for {
		if filesDone >= w.cfg.MaxFiles || time.Now().After(workExpire) {
			w.logger.Info("worker retiring, lifetime budget exhausted", map[string]any{"files_done": filesDone})
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rootID, expireAt, ok, err := w.coord.PopTask(ctx)
		if err != nil {
			w.logger.Error("pop_task failed", map[string]any{"error": err.Error()})
			w.metrics.IncCoordinatorFaults()
			sleep(ctx)
			continue
		}
		if !ok {
			sleep(ctx)
			continue
		}

		timeout := time.Until(expireAt)
		if timeout <= 0 {
			w.logger.Debug("popped task already expired, skipping", map[string]any{"root_id": rootID})
			w.metrics.IncRequestsSkipped()
			filesDone++
			continue
		}

		w.metrics.IncRequestsLeased()
		w.processRequest(ctx, rootID, expireAt, timeout)
		filesDone++
	}
}

func sleep(ctx context.Context) {
	timer := time.NewTimer(pollInterval)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// processRequest drives one request's file tree to completion with an
// explicit work stack (depth-first, child-insertion order), bounded by a
// request-level timeout. A fatal error from any node aborts the whole
// request without emitting FIN; every other per-node failure is already
// absorbed inside the distributor.
func (w *Worker) processRequest(ctx context.Context, rootID string, expireAt time.Time, timeout time.Duration) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stack := []*types.File{types.NewRootFile(rootID)}

	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := w.distributor.Distribute(reqCtx, rootID, node, expireAt)
		if err != nil {
			w.abandonRequest(rootID, err)
			return
		}

		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}

	if err := w.coord.EmitFin(reqCtx, rootID, expireAt); err != nil {
		w.logger.Error("failed to emit FIN", map[string]any{"root_id": rootID, "error": err.Error()})
		w.metrics.IncCoordinatorFaults()
		return
	}
	w.metrics.IncRequestsCompleted()
}

func (w *Worker) abandonRequest(rootID string, err error) {
	var scanErr *types.ScanError
	if errors.As(err, &scanErr) && scanErr.Kind == types.KindRequestTimeout {
		w.logger.Debug("request timed out, FIN not emitted", map[string]any{"root_id": rootID})
		w.metrics.IncRequestsTimedOut()
		return
	}
	w.logger.Error("request abandoned", map[string]any{"root_id": rootID, "error": err.Error()})
}
