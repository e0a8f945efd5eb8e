package config

// Engine tuning knobs: queue retry policy, worker count, lock timing,
// backing-store selection and rate-limit rules.  Everything here has a
// sensible default so a bare environment still boots; the base Config in
// config.go stays strict because those values have no safe default.

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/samuraifrenchienft/music-legends-engine/internal/ratelimit"
)

// Store backend selectors.  "mysql" persists across restarts; "memory"
// is for development and tests.
const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

// EngineConfig carries the tunables for the minting engine itself.
type EngineConfig struct {
	SeasonID          string                    // season new purchases mint into
	QueueMaxAttempts  int                       // handler failures before dead-lettering
	QueueClaimTimeout time.Duration             // how long a claimed message stays invisible
	QueuePollInterval time.Duration             // worker sleep when all queues are empty
	WorkerCount       int                       // background worker goroutines
	LockTTL           time.Duration             // distributed lock expiry
	LockWaitTimeout   time.Duration             // how long Acquire waits for a contended lock
	LockRetryInterval time.Duration             // poll interval while waiting on a lock
	PurchaseStore     string                    // "mysql" or "memory"
	SupplyStore       string                    // "mysql" or "memory"
	RateLimitRules    map[string]ratelimit.Rule // per-action sliding-window rules
}

// LoadEngine reads the engine tunables from the environment.
func LoadEngine() EngineConfig {
	rules, err := ParseRateRules(envStr("RATE_LIMIT_RULES", "purchase:10:60,open_pack:3:5"))
	if err != nil {
		log.Fatalf("invalid RATE_LIMIT_RULES: %v", err)
	}
	return EngineConfig{
		SeasonID:          envStr("SEASON_ID", "genesis"),
		QueueMaxAttempts:  envInt("QUEUE_MAX_ATTEMPTS", 5),
		QueueClaimTimeout: envSeconds("QUEUE_CLAIM_TIMEOUT_SEC", 60),
		QueuePollInterval: envMillis("QUEUE_POLL_INTERVAL_MS", 250),
		WorkerCount:       envInt("WORKER_COUNT", 4),
		LockTTL:           envSeconds("LOCK_TTL_SEC", 10),
		LockWaitTimeout:   envSeconds("LOCK_WAIT_TIMEOUT_SEC", 5),
		LockRetryInterval: envMillis("LOCK_RETRY_INTERVAL_MS", 50),
		PurchaseStore:     storeKind("PURCHASE_STORE"),
		SupplyStore:       storeKind("SUPPLY_STORE"),
		RateLimitRules:    rules,
	}
}

// ParseRateRules parses the RATE_LIMIT_RULES format:
// "action:limit:window_sec" entries separated by commas, e.g.
// "purchase:10:60,open_pack:3:5".
func ParseRateRules(s string) (map[string]ratelimit.Rule, error) {
	rules := make(map[string]ratelimit.Rule)
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("rule %q: want action:limit:window_sec", entry)
		}
		limit, err := strconv.Atoi(parts[1])
		if err != nil || limit <= 0 {
			return nil, fmt.Errorf("rule %q: bad limit %q", entry, parts[1])
		}
		windowSec, err := strconv.Atoi(parts[2])
		if err != nil || windowSec <= 0 {
			return nil, fmt.Errorf("rule %q: bad window %q", entry, parts[2])
		}
		rules[parts[0]] = ratelimit.Rule{
			Limit:  limit,
			Window: time.Duration(windowSec) * time.Second,
		}
	}
	return rules, nil
}

func storeKind(key string) string {
	v := envStr(key, StoreMySQL)
	if v != StoreMySQL && v != StoreMemory {
		log.Fatalf("invalid %s: %q (want %q or %q)", key, v, StoreMySQL, StoreMemory)
	}
	return v
}

func envSeconds(key string, defSec int) time.Duration {
	return time.Duration(envInt(key, defSec)) * time.Second
}

func envMillis(key string, defMS int) time.Duration {
	return time.Duration(envInt(key, defMS)) * time.Millisecond
}
