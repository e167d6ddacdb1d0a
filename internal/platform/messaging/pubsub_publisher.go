package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Recipient addresses a single notification.
type Recipient struct {
	UID   string `json:"uid,omitempty"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Message is a rendered notification handed to the mail relay subscriber.
type Message struct {
	Kind       string      `json:"kind"`
	Subject    string      `json:"subject"`
	Body       string      `json:"body"`
	Locale     string      `json:"locale,omitempty"`
	Recipients []Recipient `json:"recipients"`
	OrderID    string      `json:"orderId,omitempty"`
	StoreID    string      `json:"storeId,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// PubSubPublisher publishes notifications to a topic.
type PubSubPublisher struct {
	topic     *pubsub.Topic
	published metric.Int64Counter
}

// NewPubSubPublisher constructs a publisher for topic.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub publisher: topic is required")
	}
	counter, err := otel.Meter("github.com/vendorhub/marketplace/internal/platform/messaging").
		Int64Counter("notifications.published", metric.WithDescription("Notification publish attempts by kind and outcome"))
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher: counter: %w", err)
	}
	return &PubSubPublisher{topic: topic, published: counter}, nil
}

// Publish sends msg and waits for the server-assigned id.
func (p *PubSubPublisher) Publish(ctx context.Context, msg Message) (string, error) {
	if len(msg.Recipients) == 0 {
		return "", errors.New("pubsub publisher: no recipients")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal notification: %w", err)
	}

	attrs := map[string]string{"kind": msg.Kind}
	if id := strings.TrimSpace(msg.OrderID); id != "" {
		attrs["orderId"] = id
	}
	if id := strings.TrimSpace(msg.StoreID); id != "" {
		attrs["storeId"] = id
	}
	if msg.Locale != "" {
		attrs["locale"] = msg.Locale
	}

	id, err := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
	p.published.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", msg.Kind),
		attribute.Bool("success", err == nil),
	))
	if err != nil {
		return "", fmt.Errorf("publish notification: %w", err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *PubSubPublisher) Stop() {
	p.topic.Stop()
}
