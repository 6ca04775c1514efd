package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

// AccessEventMessage is the broker payload for one committed access event.
type AccessEventMessage struct {
	EventID      int64  `json:"event_id"`
	StudentID    string `json:"student_id"`
	CredentialID string `json:"credential_id"`
	Action       string `json:"action"`
	OccurredAt   string `json:"occurred_at"`
}

func NewAccessEventMessage(ev types.AccessEvent) AccessEventMessage {
	return AccessEventMessage{
		EventID:      ev.ID,
		StudentID:    ev.StudentID,
		CredentialID: ev.CredentialID,
		Action:       ev.Action.String(),
		OccurredAt:   ev.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// encodePublishing builds the AMQP message for ev.
func encodePublishing(ev types.AccessEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(NewAccessEventMessage(ev))
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    ev.Timestamp.UTC(),
		MessageId:    fmt.Sprintf("access_event-%d", ev.ID),
		Type:         "access_event",
		DeliveryMode: amqp.Persistent,
	}, nil
}

type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// AMQPPublisher publishes access events to a durable direct exchange.
type AMQPPublisher struct {
	conn       *amqp.Connection
	mu         sync.Mutex // amqp channels are not safe for concurrent publish
	ch         *amqp.Channel
	exchange   string
	routingKey string
}

func NewAMQPPublisher(cfg AMQPConfig) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp declare exchange %s: %w", cfg.Exchange, err)
	}

	return &AMQPPublisher{
		conn:       conn,
		ch:         ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
	}, nil
}

func (p *AMQPPublisher) PublishAccessEvent(ctx context.Context, ev types.AccessEvent) error {
	msg, err := encodePublishing(ev)
	if err != nil {
		return fmt.Errorf("encode access event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, msg); err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.ch.Close()
	return p.conn.Close()
}
