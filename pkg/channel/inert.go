package channel

import (
	"context"
	"sync/atomic"

	"github.com/sola-insurance/storm-sims/pkg/logger"
	"github.com/sola-insurance/storm-sims/pkg/models"
)

// Inert is a publisher that logs items instead of dispatching them. It backs
// the dry-run mode, which validates the fan-out logic without queueing real
// simulations.
type Inert struct {
	log   logger.Logger
	count atomic.Int64
}

// NewInert creates a dry-run publisher.
func NewInert(log logger.Logger) *Inert {
	if log == nil {
		log = logger.New()
	}
	return &Inert{log: log.WithPrefix("dry-run")}
}

// Publish logs the item and drops it.
func (p *Inert) Publish(_ context.Context, topic string, item models.WorkItem) error {
	p.count.Add(1)
	p.log.Infof("skipping publish of sim %s (storm=%s) onto %s", item.ID, item.StormType, topic)
	return nil
}

// Count returns how many items would have been published.
func (p *Inert) Count() int64 {
	return p.count.Load()
}
