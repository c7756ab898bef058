package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// Publisher hands a task to the worker fleet.
type Publisher interface {
	Publish(ctx context.Context, task TaskEnvelope) error
}

type listPusher interface {
	RPush(ctx context.Context, list string, values ...any) (int64, error)
}

// RedisPublisher appends tasks to a Redis list consumed with BLPOP.
type RedisPublisher struct {
	client listPusher
	list   string
}

func NewRedisPublisher(client listPusher, list string) (*RedisPublisher, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	list = strings.TrimSpace(list)
	if list == "" {
		return nil, errors.New("queue list name is required")
	}
	return &RedisPublisher{client: client, list: list}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, task TaskEnvelope) error {
	payload, err := task.Encode()
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if _, err := p.client.RPush(ctx, p.list, payload); err != nil {
		return fmt.Errorf("push task to %s: %w", p.list, err)
	}
	return nil
}

type topicPublisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// PubSubPublisher publishes tasks to a Pub/Sub topic and waits for the
// server acknowledgement.
type PubSubPublisher struct {
	topic topicPublisher
	stop  func()
}

func NewPubSubPublisher(p *gcppubsub.Publisher) (*PubSubPublisher, error) {
	if p == nil {
		return nil, errors.New("pubsub publisher is required")
	}
	return &PubSubPublisher{topic: &gcpPublisher{Publisher: p}, stop: p.Stop}, nil
}

// Stop flushes pending messages and releases the publisher.
func (p *PubSubPublisher) Stop() {
	if p.stop != nil {
		p.stop()
	}
}

func (p *PubSubPublisher) Publish(ctx context.Context, task TaskEnvelope) error {
	payload, err := task.Encode()
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	msg := &gcppubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"generation_id":  task.GenerationID.String(),
			"tenant_id":      task.TenantID.String(),
			"channel":        string(task.Channel),
			"correlation_id": task.CorrelationID,
			"created_at":     task.CreatedAt.Format(time.RFC3339Nano),
		},
	}
	result := p.topic.Publish(ctx, msg)
	if result == nil {
		return errors.New("publisher returned nil result")
	}
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish task: %w", err)
	}
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
