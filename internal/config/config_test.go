package config

import (
	"testing"
	"time"
)

func TestLoadDispatchDefaults(t *testing.T) {
	t.Setenv("NEAR_ETA_DELIVERY_TIME_MS", "")
	t.Setenv("NEAR_ETA_TAKEAWAY_TIME_MS", "")
	t.Setenv("CHECK_NEAR_ETA_INTERVAL_MS", "")
	t.Setenv("DISPATCH_NEAR_ETA_ENABLED", "")

	cfg := Load()

	if cfg.NearETADeliveryOffset != 20*time.Minute {
		t.Fatalf("expected delivery offset 20m, got %s", cfg.NearETADeliveryOffset)
	}
	if cfg.NearETATakeawayOffset != 10*time.Minute {
		t.Fatalf("expected takeaway offset 10m, got %s", cfg.NearETATakeawayOffset)
	}
	if cfg.CheckNearETAInterval != 15*time.Second {
		t.Fatalf("expected interval 15s, got %s", cfg.CheckNearETAInterval)
	}
	if !cfg.NearETAEnabled {
		t.Fatal("expected near-eta surface enabled by default")
	}
}

func TestLoadDispatchOverrides(t *testing.T) {
	t.Setenv("NEAR_ETA_DELIVERY_TIME_MS", "900000")
	t.Setenv("NEAR_ETA_TAKEAWAY_TIME_MS", "300000")
	t.Setenv("CHECK_NEAR_ETA_INTERVAL_MS", "5000")
	t.Setenv("DISPATCH_NEAR_ETA_ENABLED", "false")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test,,")

	cfg := Load()

	if cfg.NearETADeliveryOffset != 15*time.Minute {
		t.Fatalf("expected delivery offset 15m, got %s", cfg.NearETADeliveryOffset)
	}
	if cfg.NearETATakeawayOffset != 5*time.Minute {
		t.Fatalf("expected takeaway offset 5m, got %s", cfg.NearETATakeawayOffset)
	}
	if cfg.CheckNearETAInterval != 5*time.Second {
		t.Fatalf("expected interval 5s, got %s", cfg.CheckNearETAInterval)
	}
	if cfg.NearETAEnabled {
		t.Fatal("expected near-eta surface disabled")
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.test" {
		t.Fatalf("unexpected origins: %#v", cfg.AllowedOrigins)
	}
}

func TestParseMillisRejectsNonPositive(t *testing.T) {
	if got := parseMillis("-5", time.Second); got != time.Second {
		t.Fatalf("expected fallback, got %s", got)
	}
	if got := parseMillis("abc", time.Second); got != time.Second {
		t.Fatalf("expected fallback, got %s", got)
	}
}
