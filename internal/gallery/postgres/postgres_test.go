//go:build integration

package postgres

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/face-gallery/internal/config"
	"github.com/kozaktomas/face-gallery/internal/gallery"
	"github.com/kozaktomas/face-gallery/internal/gallery/gallerytest"
)

func startContainer(t *testing.T) config.DatabaseConfig {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil || container == nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	return config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}
}

func TestStoreContract(t *testing.T) {
	cfg := startContainer(t)

	gallerytest.Run(t, func(t *testing.T) gallery.Backend {
		s, err := Open(context.Background(), cfg, nil)
		if err != nil {
			t.Fatalf("Open error: %v", err)
		}
		if _, err := s.pool.DB().Exec("TRUNCATE gallery_records RESTART IDENTITY"); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return s
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	cfg := startContainer(t)
	ctx := context.Background()

	pool, err := NewPool(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	first, err := pool.Migrate(ctx)
	if err != nil {
		t.Fatalf("first Migrate error: %v", err)
	}
	if !slices.Contains(first, "001_gallery_records.sql") {
		t.Errorf("expected 001_gallery_records.sql to be applied, got %v", first)
	}

	second, err := pool.Migrate(ctx)
	if err != nil {
		t.Fatalf("second Migrate error: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("expected nothing to apply, got %v", second)
	}

	applied, err := pool.MigrationsApplied(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(applied, first) {
		t.Errorf("MigrationsApplied = %v, want %v", applied, first)
	}
}
