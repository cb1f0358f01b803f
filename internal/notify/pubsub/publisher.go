// Package pubsub implements a Google Cloud Pub/Sub publisher.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// Publisher publishes JSON payloads to a Pub/Sub topic. It is bound to its
// topic at construction; the topic argument on Publish is ignored.
type Publisher struct {
	topic *pubsub.Topic
}

// New creates a Publisher for the provided topic.
func New(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

// Publish marshals the payload to JSON and publishes it, waiting for the
// broker to acknowledge with a message id.
func (p *Publisher) Publish(ctx context.Context, _ string, payload any) (string, error) {
	if p.topic == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"content-type": "application/json"},
	}
	result := p.topic.Publish(ctx, msg)
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Stop flushes outstanding publishes and releases topic resources.
func (p *Publisher) Stop() {
	if p.topic != nil {
		p.topic.Stop()
	}
}
