// Package broker carries article events and sync jobs over RabbitMQ.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"article_sync/internal/domain"
)

const ActionImported = "imported"

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
	JobsQueue  string
}

func dial(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	return conn, ch, nil
}

func closeAll(conn *amqp.Connection, ch *amqp.Channel) error {
	if ch != nil {
		ch.Close()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Publisher emits an event for every imported article.
type Publisher struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	conn, ch, err := dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		closeAll(conn, ch)
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		cfg.QueueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		closeAll(conn, ch)
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		cfg.RoutingKey,
		cfg.Exchange,
		false,
		nil,
	)
	if err != nil {
		closeAll(conn, ch)
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &Publisher{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger.With("component", "publisher"),
	}, nil
}

type ArticleMessage struct {
	Action    string                 `json:"action"`
	Article   domain.ImportedArticle `json:"article"`
	Timestamp time.Time              `json:"timestamp"`
}

func (p *Publisher) Publish(ctx context.Context, article *domain.ImportedArticle) error {
	msg := ArticleMessage{
		Action:    ActionImported,
		Article:   *article,
		Timestamp: time.Now().UTC(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		p.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	p.logger.Debug("published article",
		"id", article.LocalID,
		"external_id", article.ExternalID,
		"source", article.SourceURL,
	)

	return nil
}

func (p *Publisher) Close() error {
	return closeAll(p.conn, p.channel)
}
