package containers

import (
	"context"
	"fmt"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// RedisContainer wraps the testcontainers redis module for cache tests
type RedisContainer struct {
	*tcredis.RedisContainer
	Addr string
}

// NewRedisContainer starts a Redis test container and resolves its
// host-mapped address for client configuration
func NewRedisContainer(ctx context.Context) (*RedisContainer, error) {
	rc, err := tcredis.Run(ctx,
		"redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort(nat.Port("6379/tcp")),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}

	host, err := rc.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get redis host: %w", err)
	}

	port, err := rc.MappedPort(ctx, nat.Port("6379/tcp"))
	if err != nil {
		return nil, fmt.Errorf("failed to get redis port: %w", err)
	}

	return &RedisContainer{
		RedisContainer: rc,
		Addr:           fmt.Sprintf("%s:%s", host, port.Port()),
	}, nil
}
