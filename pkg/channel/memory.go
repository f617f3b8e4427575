package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sola-insurance/storm-sims/pkg/models"
)

const defaultMemoryBuffer = 1024

// Memory is an in-process channel used for local runs and tests. It keeps
// the transport's at-least-once shape: a nacked delivery is re-enqueued and
// delivered again, and nothing stops a test from publishing the same item
// twice.
type Memory struct {
	mu        sync.Mutex
	topics    map[string]chan models.WorkItem
	published []models.WorkItem

	// RedeliverDelay is how long a nacked item waits before re-enqueue.
	RedeliverDelay time.Duration
}

// NewMemory creates an in-memory channel.
func NewMemory() *Memory {
	return &Memory{
		topics: make(map[string]chan models.WorkItem),
	}
}

func (m *Memory) queue(topic string) chan models.WorkItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.topics[topic]
	if !ok {
		q = make(chan models.WorkItem, defaultMemoryBuffer)
		m.topics[topic] = q
	}
	return q
}

// Publish enqueues the item for delivery on the topic.
func (m *Memory) Publish(_ context.Context, topic string, item models.WorkItem) error {
	select {
	case m.queue(topic) <- item:
	default:
		return fmt.Errorf("memory channel topic %s is full", topic)
	}

	m.mu.Lock()
	m.published = append(m.published, item)
	m.mu.Unlock()
	return nil
}

// Receive delivers items to the handler until the context is canceled.
// Returns nil on cancellation, matching the behavior of the Pub/Sub
// subscriber.
func (m *Memory) Receive(ctx context.Context, topic string, h Handler) error {
	q := m.queue(topic)
	for {
		select {
		case <-ctx.Done():
			return nil
		case item := <-q:
			d := NewDelivery(item,
				func() {},
				func() { m.redeliver(q, item) },
			)
			h(ctx, d)
		}
	}
}

func (m *Memory) redeliver(q chan models.WorkItem, item models.WorkItem) {
	enqueue := func() {
		select {
		case q <- item:
		default:
		}
	}
	if m.RedeliverDelay > 0 {
		time.AfterFunc(m.RedeliverDelay, enqueue)
		return
	}
	enqueue()
}

// Published returns a copy of every item published so far, in publish order.
func (m *Memory) Published() []models.WorkItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := make([]models.WorkItem, len(m.published))
	copy(items, m.published)
	return items
}

// Pending returns how many items are waiting for delivery on the topic.
func (m *Memory) Pending(topic string) int {
	return len(m.queue(topic))
}
