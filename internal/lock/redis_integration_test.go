//go:build integration

package lock

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type RedisLockIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container testcontainers.Container
	url       string
	logger    *slog.Logger
}

func (s *RedisLockIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := testcontainers.GenericContainer(s.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	s.Require().NoError(err)
	s.container = container

	host, err := container.Host(s.ctx)
	s.Require().NoError(err)
	port, err := container.MappedPort(s.ctx, "6379")
	s.Require().NoError(err)
	s.url = fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

func (s *RedisLockIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRedisLockIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RedisLockIntegrationSuite))
}

func (s *RedisLockIntegrationSuite) TestTryLock_ExclusiveAcrossClients() {
	a, err := NewRedis(s.ctx, s.url, time.Minute, s.logger)
	s.Require().NoError(err)
	defer a.Close()
	b, err := NewRedis(s.ctx, s.url, time.Minute, s.logger)
	s.Require().NoError(err)
	defer b.Close()

	release, err := a.TryLock(s.ctx, "https://a.example")
	s.Require().NoError(err)

	_, err = b.TryLock(s.ctx, "https://a.example")
	s.ErrorIs(err, ErrLocked)

	release()

	again, err := b.TryLock(s.ctx, "https://a.example")
	s.Require().NoError(err)
	again()
}

func (s *RedisLockIntegrationSuite) TestTryLock_ExpiresAfterTTL() {
	l, err := NewRedis(s.ctx, s.url, 200*time.Millisecond, s.logger)
	s.Require().NoError(err)
	defer l.Close()

	_, err = l.TryLock(s.ctx, "https://ttl.example")
	s.Require().NoError(err)

	s.Eventually(func() bool {
		release, err := l.TryLock(s.ctx, "https://ttl.example")
		if err != nil {
			return false
		}
		release()
		return true
	}, 5*time.Second, 100*time.Millisecond)
}
