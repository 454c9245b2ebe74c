//go:build integration

package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"article_sync/internal/domain"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
	logger    *slog.Logger
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) config(name string) Config {
	return Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-" + name,
		RoutingKey: "test-routing-key-" + name,
		QueueName:  "test-queue-" + name,
		JobsQueue:  "test-jobs-" + name,
	}
}

func (s *RabbitMQIntegrationSuite) TestPublisher_Connection() {
	pub, err := NewPublisher(s.config("conn"), s.logger)
	s.NoError(err)
	s.NotNil(pub)

	s.NoError(pub.Close())
}

func (s *RabbitMQIntegrationSuite) TestPublisher_MessageFormat() {
	cfg := s.config("format")

	pub, err := NewPublisher(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	category := 4
	thumbnail := int64(9)
	article := &domain.ImportedArticle{
		LocalID:     3,
		ExternalID:  789,
		SourceURL:   "https://remote.example",
		OriginalURL: "https://remote.example/full",
		Title:       "Full Article",
		Content:     "<p>Body</p>",
		PublishedAt: time.Now().UTC().Truncate(time.Second),
		AuthorID:    2,
		CategoryID:  &category,
		ThumbnailID: &thumbnail,
	}

	s.Require().NoError(pub.Publish(s.ctx, article))

	msg := s.consumeMessage(cfg.QueueName)
	s.Require().NotNil(msg)
	s.Equal("application/json", msg.ContentType)
	s.Equal(uint8(amqp.Persistent), msg.DeliveryMode)

	var received ArticleMessage
	s.Require().NoError(json.Unmarshal(msg.Body, &received))
	s.Equal("imported", received.Action)
	s.Equal(int64(789), received.Article.ExternalID)
	s.Equal("https://remote.example", received.Article.SourceURL)
	s.Equal("Full Article", received.Article.Title)
	s.Require().NotNil(received.Article.CategoryID)
	s.Equal(4, *received.Article.CategoryID)
	s.False(received.Timestamp.IsZero())
}

type recordingExecutor struct {
	jobs chan domain.Job
}

func (e *recordingExecutor) Execute(_ context.Context, job domain.Job) error {
	e.jobs <- job
	return nil
}

func (s *RabbitMQIntegrationSuite) TestJobQueue_DispatchAndConsume() {
	cfg := s.config("jobs")

	producer, err := NewJobQueue(cfg, time.Minute, s.logger)
	s.Require().NoError(err)
	defer producer.Close()

	consumer, err := NewJobQueue(cfg, time.Minute, s.logger)
	s.Require().NoError(err)
	defer consumer.Close()

	job := domain.Job{
		ID:          "job-1",
		SourceURL:   "https://remote.example",
		Trigger:     domain.TriggerExternal,
		RequestedAt: time.Now().UTC().Truncate(time.Second),
	}
	s.Require().NoError(producer.Dispatch(s.ctx, job))

	exec := &recordingExecutor{jobs: make(chan domain.Job, 1)}
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	go func() { _ = consumer.Consume(ctx, exec) }()

	select {
	case got := <-exec.jobs:
		s.Equal(job.ID, got.ID)
		s.Equal(job.SourceURL, got.SourceURL)
		s.Equal(domain.TriggerExternal, got.Trigger)
		s.True(job.RequestedAt.Equal(got.RequestedAt))
	case <-time.After(5 * time.Second):
		s.Fail("timeout waiting for job")
	}
}

func (s *RabbitMQIntegrationSuite) consumeMessage(queue string) *amqp.Delivery {
	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()

	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	msgs, err := ch.Consume(queue, "", true, false, false, false, nil)
	s.Require().NoError(err)

	select {
	case msg := <-msgs:
		return &msg
	case <-time.After(5 * time.Second):
		s.Fail("Timeout waiting for message")
		return nil
	}
}
