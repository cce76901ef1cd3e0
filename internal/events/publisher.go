package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/gw-dg/palanam-latency/internal/models"
)

// Publisher pushes flagged detections onto a RabbitMQ topic exchange so
// downstream consumers (review queues, takedown automation) can react.
type Publisher struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

type Config struct {
	URL        string
	Exchange   string
	Queue      string
	RoutingKey string
}

func NewPublisher(cfg Config) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	_, err = channel.QueueDeclare(
		cfg.Queue, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	err = channel.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	return &Publisher{
		conn:       conn,
		channel:    channel,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
	}, nil
}

type detectionMessage struct {
	SessionID  string    `json:"session_id"`
	Timestamp  float64   `json:"timestamp"`
	FrameIndex int       `json:"frame_index"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	DetectedAt time.Time `json:"detected_at"`
}

func (p *Publisher) PublishDetection(ctx context.Context, d models.Detection) error {
	body, err := json.Marshal(detectionMessage{
		SessionID:  d.SessionID,
		Timestamp:  d.Timestamp,
		FrameIndex: d.FrameIndex,
		Label:      d.Label,
		Confidence: d.Confidence,
		DetectedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal detection: %w", err)
	}

	return p.channel.PublishWithContext(ctx,
		p.exchange,
		p.routingKey,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
		},
	)
}

func (p *Publisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
