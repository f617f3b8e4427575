// Package channel abstracts the publish/subscribe transport that carries
// work items from the trigger stage to the workers.
//
// The transport is assumed to deliver at least once, in no particular order,
// possibly to more than one worker invocation for the same item. Consumers
// own the idempotency story; the channel only promises that a published item
// will eventually be delivered until it is acked.
package channel

import (
	"context"

	"github.com/sola-insurance/storm-sims/pkg/models"
)

// Publisher sends work items onto a named topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, item models.WorkItem) error
}

// Handler processes one delivery. It must call exactly one of Ack or Nack
// before returning.
type Handler func(ctx context.Context, d Delivery)

// Subscriber delivers work items from a topic or subscription to a handler
// until the context is canceled.
type Subscriber interface {
	Receive(ctx context.Context, topic string, h Handler) error
}

// Delivery is one received work item plus its acknowledgment hooks. Ack
// confirms processing; Nack asks the transport to redeliver later.
type Delivery struct {
	Item models.WorkItem

	ack  func()
	nack func()
}

// NewDelivery wraps an item with its transport acknowledgment callbacks.
func NewDelivery(item models.WorkItem, ack, nack func()) Delivery {
	return Delivery{Item: item, ack: ack, nack: nack}
}

// Ack confirms the delivery. The transport may still redeliver if the ack is
// not durably recorded in time.
func (d Delivery) Ack() {
	if d.ack != nil {
		d.ack()
	}
}

// Nack rejects the delivery so the transport redelivers it later.
func (d Delivery) Nack() {
	if d.nack != nil {
		d.nack()
	}
}
