//go:build integration

package alpaca

import (
	"context"
	"os"
	"testing"
	"time"
)

func credentials(t *testing.T) (string, string) {
	key := os.Getenv("TEST_APCA_API_KEY_ID")
	secret := os.Getenv("TEST_APCA_API_SECRET_KEY")
	if key == "" || secret == "" {
		t.Skip("Skipping integration test: TEST_APCA credentials not set")
	}
	return key, secret
}

func TestIntegration_LatestTrade(t *testing.T) {
	key, secret := credentials(t)
	src := NewSource(key, secret)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	obs, err := src.LivePrice(ctx, "AAPL") // liquid symbol
	if err != nil {
		t.Fatalf("LivePrice failed: %v", err)
	}
	if !obs.Price.IsPositive() {
		t.Errorf("expected a positive price, got %s", obs.Price)
	}
	t.Logf("AAPL last trade %s at %s", obs.Price, obs.ObservedAt)
}
