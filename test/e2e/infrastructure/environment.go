package infrastructure

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/compose"
)

// TestEnvironment runs the backing services (PostgreSQL and Redis) through
// Docker Compose and applies the ticket schema, so e2e tests exercise the
// same wiring the deployment does.
type TestEnvironment struct {
	compose     *compose.DockerCompose
	DB          *sql.DB
	RedisClient *redis.Client
	PostgresURL string
	RedisAddr   string

	ctx context.Context
	t   *testing.T
}

const composeContent = `
services:
  postgres:
    image: postgres:16-alpine
    environment:
      POSTGRES_DB: tab_test
      POSTGRES_USER: test
      POSTGRES_PASSWORD: test123
    ports:
      - "5432"
    healthcheck:
      test: ["CMD-SHELL", "pg_isready -U test -d tab_test"]
      interval: 5s
      timeout: 5s
      retries: 5

  redis:
    image: redis:7-alpine
    command: redis-server --save "" --loglevel warning
    ports:
      - "6379"
    healthcheck:
      test: ["CMD", "redis-cli", "ping"]
      interval: 5s
      timeout: 5s
      retries: 5
`

// NewTestEnvironment brings the stack up and blocks until both services
// answer health checks.
func NewTestEnvironment(t *testing.T) *TestEnvironment {
	ctx := context.Background()

	composeFile, err := os.CreateTemp("", "tab-e2e-*.yml")
	require.NoError(t, err)
	defer os.Remove(composeFile.Name())

	_, err = composeFile.WriteString(composeContent)
	require.NoError(t, err)
	require.NoError(t, composeFile.Close())

	identifier := fmt.Sprintf("tab-e2e-%s-%d",
		strings.ToLower(strings.ReplaceAll(t.Name(), "/", "-")), time.Now().Unix())

	stack, err := compose.NewDockerComposeWith(
		compose.WithStackFiles(composeFile.Name()),
		compose.StackIdentifier(identifier),
	)
	require.NoError(t, err, "failed to create compose stack")

	t.Log("Starting PostgreSQL and Redis...")
	require.NoError(t, stack.Up(ctx, compose.Wait(true)), "failed to start compose stack")

	env := &TestEnvironment{
		compose: stack,
		ctx:     ctx,
		t:       t,
	}

	env.connectPostgres(stack)
	env.connectRedis(stack)
	env.applyMigrations()

	return env
}

func (env *TestEnvironment) connectPostgres(stack *compose.DockerCompose) {
	container, err := stack.ServiceContainer(env.ctx, "postgres")
	require.NoError(env.t, err, "failed to get postgres container")

	host, err := container.Host(env.ctx)
	require.NoError(env.t, err)

	port, err := container.MappedPort(env.ctx, "5432")
	require.NoError(env.t, err)

	env.PostgresURL = fmt.Sprintf("postgres://test:test123@%s:%s/tab_test?sslmode=disable",
		host, port.Port())

	env.DB, err = sql.Open("pgx", env.PostgresURL)
	require.NoError(env.t, err, "failed to connect to PostgreSQL")
	require.NoError(env.t, env.DB.PingContext(env.ctx))
}

func (env *TestEnvironment) connectRedis(stack *compose.DockerCompose) {
	container, err := stack.ServiceContainer(env.ctx, "redis")
	require.NoError(env.t, err, "failed to get redis container")

	host, err := container.Host(env.ctx)
	require.NoError(env.t, err)

	port, err := container.MappedPort(env.ctx, "6379")
	require.NoError(env.t, err)

	env.RedisAddr = fmt.Sprintf("%s:%s", host, port.Port())
	env.RedisClient = redis.NewClient(&redis.Options{Addr: env.RedisAddr})
	require.NoError(env.t, env.RedisClient.Ping(env.ctx).Err())
}

// applyMigrations runs every up migration from the repository in order.
func (env *TestEnvironment) applyMigrations() {
	_, thisFile, _, ok := runtime.Caller(0)
	require.True(env.t, ok)

	dir := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "migrations")
	entries, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	require.NoError(env.t, err)
	require.NotEmpty(env.t, entries, "no migrations found under %s", dir)
	sort.Strings(entries)

	for _, path := range entries {
		content, err := os.ReadFile(path)
		require.NoError(env.t, err)

		_, err = env.DB.ExecContext(env.ctx, string(content))
		require.NoError(env.t, err, "migration %s failed", filepath.Base(path))
	}
}

// TruncateTickets clears ticket data between test cases.
func (env *TestEnvironment) TruncateTickets() {
	_, err := env.DB.ExecContext(env.ctx, "TRUNCATE TABLE tickets RESTART IDENTITY")
	require.NoError(env.t, err)
}

// Cleanup tears the stack down. Register with t.Cleanup or defer.
func (env *TestEnvironment) Cleanup() {
	if env.DB != nil {
		env.DB.Close()
	}
	if env.RedisClient != nil {
		env.RedisClient.Close()
	}
	if env.compose != nil {
		if err := env.compose.Down(context.Background(), compose.RemoveOrphans(true), compose.RemoveVolumes(true)); err != nil {
			env.t.Logf("compose down: %v", err)
		}
	}
}
