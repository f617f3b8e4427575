// Package dispatch implements the trigger stage: turning one batch request
// into N work items published onto the message channel.
//
// The trigger itself is reached over an at-most-once path (an HTTP call or
// a scheduler), and re-invoking it mints a fresh batch id and therefore N
// duplicate simulations. That is why dispatch is a separate stage from
// execution and why it is guarded by a dispatch record instead of relying
// on transport retries.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/sola-insurance/storm-sims/pkg/channel"
	"github.com/sola-insurance/storm-sims/pkg/logger"
	"github.com/sola-insurance/storm-sims/pkg/models"
)

// ErrInvalidRequest rejects a batch request before anything is published.
var ErrInvalidRequest = errors.New("invalid batch request")

// ErrDuplicateTrigger rejects a re-invocation of an already dispatched
// trigger.
var ErrDuplicateTrigger = errors.New("duplicate trigger invocation")

const (
	defaultMaxInFlight    = 8
	defaultPublishRetries = 3
	defaultRetryBaseDelay = 200 * time.Millisecond
	defaultPublishTimeout = 30 * time.Second
)

// Options tune the fan-out.
type Options struct {
	// Topic the work items are published onto.
	Topic string

	// SupportedStormTypes lists the storm types the request may name.
	SupportedStormTypes []string

	// MaxInFlight bounds concurrent publishes.
	MaxInFlight int

	// MaxPublishRetries is how many times one item's publish is retried
	// after its first failure before the item counts as failed.
	MaxPublishRetries int

	// RetryBaseDelay is the first backoff step; it doubles per retry.
	RetryBaseDelay time.Duration

	// PublishTimeout bounds a single publish attempt.
	PublishTimeout time.Duration

	// PublishRate paces publishes across the batch. Zero means unpaced.
	PublishRate rate.Limit
}

func (o Options) withDefaults() Options {
	if o.MaxInFlight < 1 {
		o.MaxInFlight = defaultMaxInFlight
	}
	if o.MaxPublishRetries < 0 {
		o.MaxPublishRetries = 0
	} else if o.MaxPublishRetries == 0 {
		o.MaxPublishRetries = defaultPublishRetries
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = defaultRetryBaseDelay
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = defaultPublishTimeout
	}
	return o
}

// Dispatcher generates work items for a batch request and fans them out.
type Dispatcher struct {
	pub     channel.Publisher
	guard   Guard
	opts    Options
	limiter *rate.Limiter
	log     logger.Logger
	now     func() time.Time
}

// New creates a Dispatcher. The guard may be nil when the caller's trigger
// path is genuinely at-most-once.
func New(pub channel.Publisher, guard Guard, opts Options, log logger.Logger) *Dispatcher {
	opts = opts.withDefaults()
	if log == nil {
		log = logger.New()
	}

	var limiter *rate.Limiter
	if opts.PublishRate > 0 {
		limiter = rate.NewLimiter(opts.PublishRate, 1)
	}

	return &Dispatcher{
		pub:     pub,
		guard:   guard,
		opts:    opts,
		limiter: limiter,
		log:     log.WithPrefix("dispatch"),
		now:     time.Now,
	}
}

// HandleBatch validates the request, generates NumSims work items with
// deterministic ids, and publishes them with bounded concurrency.
//
// Publishing is best-effort per item: an item whose retries are exhausted
// is counted in NumFailed, and the rest of the batch proceeds. Only an
// invalid request or a duplicate trigger returns an error.
func (d *Dispatcher) HandleBatch(ctx context.Context, req models.BatchRequest) (models.BatchSummary, error) {
	if req.StormType == "" {
		req.StormType = models.DefaultStormType
	}
	if err := req.Validate(); err != nil {
		return models.BatchSummary{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !d.stormTypeSupported(req.StormType) {
		return models.BatchSummary{}, fmt.Errorf("%w: unsupported storm type %q", ErrInvalidRequest, req.StormType)
	}

	batchID := uuid.NewString()
	runTimestamp := d.now().Unix()

	if d.guard != nil && req.RequestKey != "" {
		record := models.BatchDispatchRecord{
			BatchID:     batchID,
			RequestedAt: d.now(),
			NumSims:     req.NumSims,
			Status:      models.BatchDispatching,
		}
		if err := d.guard.Begin(ctx, req.RequestKey, record); err != nil {
			return models.BatchSummary{}, err
		}
	}

	d.log.Infof("starting %s fan-out: N=%d batch=%s topic=%s",
		req.StormType, req.NumSims, batchID, d.opts.Topic)

	var published, failed atomic.Int64
	var wg sync.WaitGroup
	sem := make(chan struct{}, d.opts.MaxInFlight)

	for seq := 0; seq < req.NumSims; seq++ {
		item := models.NewWorkItem(batchID, seq, runTimestamp, req)

		wg.Add(1)
		sem <- struct{}{}
		go func(item models.WorkItem) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := d.publishWithRetry(ctx, item); err != nil {
				failed.Add(1)
				d.log.Errorf("giving up on sim %s: %v", item.ID, err)
				return
			}
			published.Add(1)
		}(item)
	}
	wg.Wait()

	if d.guard != nil && req.RequestKey != "" {
		if err := d.guard.Finish(ctx, req.RequestKey); err != nil {
			d.log.Warnf("failed to finish dispatch record for %s: %v", req.RequestKey, err)
		}
	}

	summary := models.BatchSummary{
		BatchID:      batchID,
		NumPublished: int(published.Load()),
		NumFailed:    int(failed.Load()),
	}
	d.log.Infof("fan-out done: batch=%s published=%d failed=%d",
		summary.BatchID, summary.NumPublished, summary.NumFailed)
	return summary, nil
}

// Republish re-sends specific items of an existing batch, keeping the
// original batch id and run timestamp so redeliveries still dedupe against
// the ledger.
func (d *Dispatcher) Republish(ctx context.Context, batchID string, runTimestamp int64, seqs []int, req models.BatchRequest) (models.BatchSummary, error) {
	if batchID == "" {
		return models.BatchSummary{}, fmt.Errorf("%w: batch id is required", ErrInvalidRequest)
	}
	if len(seqs) == 0 {
		return models.BatchSummary{}, fmt.Errorf("%w: no sim ids to republish", ErrInvalidRequest)
	}
	if req.StormType == "" {
		req.StormType = models.DefaultStormType
	}

	summary := models.BatchSummary{BatchID: batchID}
	for _, seq := range seqs {
		item := models.NewWorkItem(batchID, seq, runTimestamp, req)
		if err := d.publishWithRetry(ctx, item); err != nil {
			summary.NumFailed++
			d.log.Errorf("giving up on sim %s: %v", item.ID, err)
			continue
		}
		summary.NumPublished++
	}
	return summary, nil
}

func (d *Dispatcher) stormTypeSupported(stormType string) bool {
	if len(d.opts.SupportedStormTypes) == 0 {
		return true
	}
	for _, t := range d.opts.SupportedStormTypes {
		if t == stormType {
			return true
		}
	}
	return false
}

func (d *Dispatcher) publishWithRetry(ctx context.Context, item models.WorkItem) error {
	delay := d.opts.RetryBaseDelay

	var err error
	for attempt := 0; attempt <= d.opts.MaxPublishRetries; attempt++ {
		if attempt > 0 {
			d.log.Warnf("retrying publish of sim %s (attempt %d): %v", item.ID, attempt+1, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		err = d.publishOnce(ctx, item)
		if err == nil {
			return nil
		}
	}
	return fmt.Errorf("publish retries exhausted for %s: %w", item.ID, err)
}

func (d *Dispatcher) publishOnce(ctx context.Context, item models.WorkItem) error {
	ctx, cancel := context.WithTimeout(ctx, d.opts.PublishTimeout)
	defer cancel()
	return d.pub.Publish(ctx, d.opts.Topic, item)
}
