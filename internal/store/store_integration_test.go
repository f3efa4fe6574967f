//go:build integration

package store

import (
	"context"
	"os"
	"testing"
)

func setupTestStore(t *testing.T) Backend {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := NewPostgres(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestIntegration_Postgres(t *testing.T) {
	runBackendTests(t, setupTestStore)
}
