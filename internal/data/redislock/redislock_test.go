package redislock

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(20 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}
	t.Cleanup(func() { c.Terminate(context.Background()) })

	addr, err := c.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("redis endpoint: %v", err)
	}

	return addr
}

func TestAcquire(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Addr: startRedis(t), Expiry: 5 * time.Second, Tries: 1}

	client, err := Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	first := New(log, client, cfg)
	second := New(log, client, cfg)

	release, err := first.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if _, err := second.Acquire(ctx); err == nil {
		t.Fatal("second locker acquired a held mutex")
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}

	release, err = second.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestAcquireContextDone(t *testing.T) {
	cfg := Config{Addr: startRedis(t), Tries: 1000}

	client, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	l := New(log, client, cfg)

	release, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := l.Acquire(ctx); err == nil {
		t.Fatal("acquired a held mutex")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("acquire kept retrying for %v after the context was done", elapsed)
	}
}

func TestOpenUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := Open(ctx, Config{Addr: "127.0.0.1:1"}); err == nil {
		t.Fatal("expected error opening unreachable redis")
	}
}
