package channel

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"

	"github.com/sola-insurance/storm-sims/pkg/logger"
	"github.com/sola-insurance/storm-sims/pkg/models"
)

// PubSub publishes and receives work items over Google Cloud Pub/Sub.
//
// Publish blocks until the server acknowledges the message. Receive uses the
// streaming pull API; messages that cannot be decoded are acked and dropped,
// since redelivering a malformed payload can never succeed.
type PubSub struct {
	client *pubsub.Client
	log    logger.Logger

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewPubSub connects to Pub/Sub in the given project.
func NewPubSub(ctx context.Context, projectID string, log logger.Logger) (*PubSub, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required for pubsub")
	}
	if log == nil {
		log = logger.New()
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	return &PubSub{
		client: client,
		log:    log.WithPrefix("pubsub"),
		topics: make(map[string]*pubsub.Topic),
	}, nil
}

func (p *PubSub) topic(name string) *pubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.topics[name]
	if !ok {
		t = p.client.Topic(name)
		p.topics[name] = t
	}
	return t
}

// Publish sends the item onto the topic and waits for the server ack.
func (p *PubSub) Publish(ctx context.Context, topic string, item models.WorkItem) error {
	data, err := item.Encode()
	if err != nil {
		return err
	}

	res := p.topic(topic).Publish(ctx, &pubsub.Message{Data: data})
	id, err := res.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to publish work item %s: %w", item.ID, err)
	}

	p.log.Debugf("published sim %s as message %s", item.ID, id)
	return nil
}

// Receive pulls messages from the subscription and hands them to the
// handler. Blocks until the context is canceled.
func (p *PubSub) Receive(ctx context.Context, subscription string, h Handler) error {
	sub := p.client.Subscription(subscription)

	err := sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		item, err := models.DecodeWorkItem(msg.Data)
		if err != nil {
			p.log.Errorf("dropping undecodable message %s: %v", msg.ID, err)
			msg.Ack()
			return
		}
		h(ctx, NewDelivery(item, msg.Ack, msg.Nack))
	})
	if err != nil {
		return fmt.Errorf("subscription %s receive failed: %w", subscription, err)
	}
	return nil
}

// Close flushes pending publishes and releases the client.
func (p *PubSub) Close() error {
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.mu.Unlock()
	return p.client.Close()
}
