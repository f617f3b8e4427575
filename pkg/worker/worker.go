// Package worker implements the execution stage: consuming one work item
// delivery, claiming it in the idempotency ledger, running the simulation,
// and committing the result.
//
// The transport delivers at least once, so every decision here reduces to
// an Ack/Nack that keeps the claim-execute-commit sequence safe under
// duplicate and concurrent deliveries of the same work item id.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/sola-insurance/storm-sims/pkg/channel"
	"github.com/sola-insurance/storm-sims/pkg/ledger"
	"github.com/sola-insurance/storm-sims/pkg/logger"
	"github.com/sola-insurance/storm-sims/pkg/models"
	"github.com/sola-insurance/storm-sims/pkg/output"
	"github.com/sola-insurance/storm-sims/pkg/storm"
)

// Outcome is the worker's decision for one delivery.
type Outcome int

const (
	// Completed means the work is done (now or previously); ack.
	Completed Outcome = iota
	// Rejected means the item failed terminally; ack so it stops looping.
	Rejected
	// Deferred means the item should be redelivered later; nack.
	Deferred
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Rejected:
		return "rejected"
	case Deferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// Runner executes one simulation. pkg/storm's Registry satisfies this.
type Runner interface {
	Run(ctx context.Context, item models.WorkItem) (models.SimulationResult, error)
}

const (
	defaultExecuteTimeout = 30 * time.Minute
	defaultWriteTimeout   = 2 * time.Minute
)

// Options tune per-delivery timeouts.
type Options struct {
	// ExecuteTimeout bounds one simulation run.
	ExecuteTimeout time.Duration

	// WriteTimeout bounds one result commit.
	WriteTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ExecuteTimeout <= 0 {
		o.ExecuteTimeout = defaultExecuteTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	return o
}

// Worker processes work item deliveries.
type Worker struct {
	ledger ledger.Ledger
	runner Runner
	writer output.ResultWriter
	opts   Options
	log    logger.Logger
}

// New creates a Worker.
func New(led ledger.Ledger, runner Runner, writer output.ResultWriter, opts Options, log logger.Logger) *Worker {
	if log == nil {
		log = logger.New()
	}
	return &Worker{
		ledger: led,
		runner: runner,
		writer: writer,
		opts:   opts.withDefaults(),
		log:    log.WithPrefix("worker"),
	}
}

// Handle adapts HandleDelivery to the channel's handler signature, mapping
// the outcome to the transport acknowledgment. Errors never escape; a
// delivery always resolves to an ack or a nack.
func (w *Worker) Handle(ctx context.Context, d channel.Delivery) {
	outcome, err := w.HandleDelivery(ctx, d.Item)
	if err != nil {
		w.log.WithField("sim", d.Item.ID).Errorf("delivery %s: %v", outcome, err)
	}

	if outcome == Deferred {
		d.Nack()
		return
	}
	d.Ack()
}

// HandleDelivery runs the claim-execute-commit state machine for one work
// item delivery.
func (w *Worker) HandleDelivery(ctx context.Context, item models.WorkItem) (Outcome, error) {
	log := w.log.WithField("sim", item.ID)

	claim, err := w.ledger.TryClaim(ctx, item.ID)
	if err != nil {
		// Cannot tell whether the item ran; redeliver and let a later
		// claim attempt decide.
		return Deferred, fmt.Errorf("claim failed: %w", err)
	}

	switch claim {
	case ledger.AlreadyCompleted:
		log.Debugf("duplicate delivery of finished sim, acking")
		return Completed, nil
	case ledger.AlreadyPending:
		log.Debugf("sim is in flight elsewhere, deferring")
		return Deferred, nil
	}

	// Claim won: this invocation owns the item.
	log.Infof("starting %s simulation (batch %s)", item.StormType, item.BatchID)
	start := time.Now()

	result, err := w.execute(ctx, item)
	if err != nil {
		return w.failExecution(ctx, item, err)
	}

	// The result must be durably written before the ledger flips to
	// Completed. If this process dies between the two, the claim is still
	// Pending and a redelivery re-runs the item; the idempotent upsert
	// makes the second write harmless.
	if err := w.commit(ctx, item, result); err != nil {
		w.release(ctx, item.ID)
		return Deferred, fmt.Errorf("result write failed, retrying via redelivery: %w", err)
	}

	if err := w.ledger.MarkCompleted(ctx, item.ID); err != nil {
		// The result row exists and the claim is still Pending; the
		// redelivery path re-runs into the AlreadyPending/upsert guards.
		return Deferred, fmt.Errorf("failed to mark completed: %w", err)
	}

	log.Infof("sim %s completed in %.1fs", item.ID, time.Since(start).Seconds())
	return Completed, nil
}

func (w *Worker) execute(ctx context.Context, item models.WorkItem) (models.SimulationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, w.opts.ExecuteTimeout)
	defer cancel()
	return w.runner.Run(ctx, item)
}

func (w *Worker) commit(ctx context.Context, item models.WorkItem, result models.SimulationResult) error {
	ctx, cancel := context.WithTimeout(ctx, w.opts.WriteTimeout)
	defer cancel()
	return w.writer.Upsert(ctx, item.ID, result)
}

// failExecution resolves a computation error: terminal failures are
// recorded and acked so a poison item stops looping, transient ones roll
// the claim back and rely on redelivery.
func (w *Worker) failExecution(ctx context.Context, item models.WorkItem, execErr error) (Outcome, error) {
	if storm.IsTerminal(execErr) {
		if err := w.ledger.MarkFailed(ctx, item.ID); err != nil {
			w.log.Errorf("failed to mark %s failed: %v", item.ID, err)
		}
		return Rejected, fmt.Errorf("simulation failed terminally: %w", execErr)
	}

	w.release(ctx, item.ID)
	return Deferred, fmt.Errorf("simulation failed, retrying via redelivery: %w", execErr)
}

func (w *Worker) release(ctx context.Context, id string) {
	if err := w.ledger.Release(ctx, id); err != nil {
		// Leaves a stuck Pending claim; surfaced so an operator can clear
		// it, since there is no reaper.
		w.log.Errorf("failed to release claim on %s: %v", id, err)
	}
}
