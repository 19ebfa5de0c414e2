package redis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/saviobatista/ais-receiver/internal/testutils"
	"github.com/testcontainers/testcontainers-go"
	redisMod "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestClient_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := redisMod.Run(ctx, "redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections"),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	defer func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	}()

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Failed to get Redis connection string: %v", err)
	}

	client, err := New(strings.TrimPrefix(uri, "redis://"), time.Minute)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer client.Close()

	msg := testutils.MockMessage(369190000, time.Now(), map[string]any{"callsign": "WDL8813"})
	if err := client.StoreVessel(ctx, msg); err != nil {
		t.Fatalf("StoreVessel() failed: %v", err)
	}

	got, err := client.GetVessel(ctx, 369190000)
	if err != nil {
		t.Fatalf("GetVessel() failed: %v", err)
	}
	if got["callsign"] != "WDL8813" {
		t.Errorf("Unexpected vessel %v", got)
	}
}
