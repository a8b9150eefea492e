package publishers

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// topicPublisher publishes one message and waits for the server-assigned id.
type topicPublisher func(ctx context.Context, msg *pubsub.Message) (string, error)

// pubsubPublisher implements the Publisher interface for GCP Pub/Sub topics.
type pubsubPublisher struct {
	id      string
	typ     string
	topic   string
	publish topicPublisher
	closeFn func() error
	log     Logger
}

func newPubSubPublisher(ctx context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.PubSub == nil {
		return nil, fmt.Errorf("publisher %q missing pubsub configuration", cfg.ID)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var opts []option.ClientOption
	if cfg.PubSub.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.PubSub.CredentialsFile))
	}
	if cfg.PubSub.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.PubSub.Endpoint))
	}

	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(cfg.PubSub.Topic)

	return &pubsubPublisher{
		id:    cfg.ID,
		typ:   TypePubSub,
		topic: cfg.PubSub.Topic,
		publish: func(ctx context.Context, msg *pubsub.Message) (string, error) {
			return topic.Publish(ctx, msg).Get(ctx)
		},
		closeFn: func() error {
			topic.Stop()
			return client.Close()
		},
		log: ensureLogger(log),
	}, nil
}

func (p *pubsubPublisher) ID() string   { return p.id }
func (p *pubsubPublisher) Type() string { return p.typ }

// Publish sends the event to the configured topic.
func (p *pubsubPublisher) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msgID, err := p.publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: eventAttributes(evt),
	})
	if err != nil {
		p.log.ErrorObj("pubsub publisher send failed", "publisher_pubsub_error", map[string]any{
			"publisher_id": p.id,
			"topic":        p.topic,
			"error":        err.Error(),
		})
		return fmt.Errorf("publish to pubsub: %w", err)
	}
	p.log.DebugObj("pubsub publisher delivered event", "publisher_pubsub_delivery", map[string]any{
		"publisher_id": p.id,
		"call_id":      evt.CallID,
		"message_id":   msgID,
	})
	return nil
}

// Close stops the topic's background publisher and releases the client.
func (p *pubsubPublisher) Close() error {
	if p == nil || p.closeFn == nil {
		return nil
	}
	return p.closeFn()
}
