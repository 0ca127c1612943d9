package cache

import (
	"strings"
	"time"

	"marketpulse-api/internal/config"
)

// Namespace is the Redis key prefix for the MarketPulse application.
const Namespace = "marketpulse"

// TTLClass represents a config-driven TTL bucket.
type TTLClass string

const (
	TTLShort  TTLClass = "short"
	TTLMedium TTLClass = "medium"
	TTLLong   TTLClass = "long"
)

// TTLSet normalises cache TTLs from config into time.Duration values.
type TTLSet struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// NewTTLSet converts config TTLs (in seconds) into durations.
func NewTTLSet(cfg config.CacheTTL) TTLSet {
	return TTLSet{
		Short:  durationOrDefault(cfg.Short, 10*time.Second),
		Medium: durationOrDefault(cfg.Medium, time.Minute),
		Long:   durationOrDefault(cfg.Long, 5*time.Minute),
	}
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds < 0 {
		return 0
	}
	if seconds == 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// Duration returns the configured duration for the given TTL class.
func (t TTLSet) Duration(class TTLClass) time.Duration {
	switch class {
	case TTLShort:
		return t.Short
	case TTLMedium:
		return t.Medium
	case TTLLong:
		return t.Long
	default:
		return 0
	}
}

// Scaled applies a multiplier to a TTL class, useful for half/double TTL variants.
func (t TTLSet) Scaled(class TTLClass, factor float64) time.Duration {
	base := t.Duration(class)
	if base <= 0 || factor <= 0 {
		return base
	}
	return time.Duration(float64(base) * factor)
}

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// --- Quote & Bar Keys -------------------------------------------------------

// QuoteLatestKey stores the most recent realtime quote for a stock.
func QuoteLatestKey(code string) string {
	return formatKey("quote", "latest", code)
}

// BarsKey stores a rendered kline window for one stock and period.
func BarsKey(code, period string) string {
	return formatKey("bars", code, period)
}

// InstrumentKey stores static instrument metadata (name, market, industry).
func InstrumentKey(code string) string {
	return formatKey("instrument", code)
}

// --- Indicator & Summary Keys -----------------------------------------------

// IndicatorsKey caches a computed indicator set for one stock and period.
func IndicatorsKey(code, period string) string {
	return formatKey("indicators", code, period)
}

// BreadthSummaryKey caches the aggregated up/down breadth payload.
func BreadthSummaryKey() string {
	return formatKey("breadth", "summary")
}

// --- Sync Keys ----------------------------------------------------------------

// SyncLockKey is a short-lived guard against overlapping sync runs.
func SyncLockKey() string {
	return formatKey("lock", "sync")
}

// SyncLastRunKey stores a summary of the most recent sync batch.
func SyncLastRunKey() string {
	return formatKey("sync", "last_run")
}

// --- TTL Helpers ------------------------------------------------------------

// QuoteTTL returns the short-lived TTL for realtime quote keys.
func QuoteTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLShort)
}

// BarsTTL returns the TTL for kline windows; bars only change once per period.
func BarsTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLMedium)
}

// InstrumentTTL returns the TTL for static instrument metadata.
func InstrumentTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLLong)
}

// IndicatorsTTL returns the TTL for computed indicator payloads.
func IndicatorsTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLMedium)
}

// BreadthSummaryTTL returns the TTL for the breadth summary payload.
func BreadthSummaryTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLShort)
}

// SyncLockTTL returns the TTL for the sync guard lock.
func SyncLockTTL(ttl TTLSet) time.Duration {
	return ttl.Scaled(TTLShort, 0.5) // target ~5s when short=10s
}

// SyncLastRunTTL returns the TTL for the last sync summary.
func SyncLastRunTTL(ttl TTLSet) time.Duration {
	return ttl.Scaled(TTLLong, 2) // target ~600s when long=300s
}
