package cache

import (
	"testing"
	"time"

	"marketpulse-api/internal/config"
)

func TestFormatKeySkipsBlankParts(t *testing.T) {
	got := QuoteLatestKey("000001")
	want := "marketpulse:quote:latest:000001"
	if got != want {
		t.Fatalf("QuoteLatestKey = %q, want %q", got, want)
	}

	if got := formatKey("bars", "", " ", "600036"); got != "marketpulse:bars:600036" {
		t.Fatalf("formatKey = %q", got)
	}
}

func TestBarsAndIndicatorKeys(t *testing.T) {
	if got := BarsKey("600036", "1d"); got != "marketpulse:bars:600036:1d" {
		t.Fatalf("BarsKey = %q", got)
	}
	if got := IndicatorsKey("600036", "1w"); got != "marketpulse:indicators:600036:1w" {
		t.Fatalf("IndicatorsKey = %q", got)
	}
	if got := BreadthSummaryKey(); got != "marketpulse:breadth:summary" {
		t.Fatalf("BreadthSummaryKey = %q", got)
	}
}

func TestNewTTLSetDefaults(t *testing.T) {
	ttl := NewTTLSet(config.CacheTTL{})
	if ttl.Short != 10*time.Second || ttl.Medium != time.Minute || ttl.Long != 5*time.Minute {
		t.Fatalf("unexpected defaults: %+v", ttl)
	}

	ttl = NewTTLSet(config.CacheTTL{Short: 5, Medium: 30, Long: 600})
	if ttl.Short != 5*time.Second || ttl.Medium != 30*time.Second || ttl.Long != 600*time.Second {
		t.Fatalf("unexpected overrides: %+v", ttl)
	}
}

func TestTTLScaled(t *testing.T) {
	ttl := NewTTLSet(config.CacheTTL{Short: 10, Long: 300})
	if got := SyncLockTTL(ttl); got != 5*time.Second {
		t.Fatalf("SyncLockTTL = %s", got)
	}
	if got := SyncLastRunTTL(ttl); got != 600*time.Second {
		t.Fatalf("SyncLastRunTTL = %s", got)
	}
}
