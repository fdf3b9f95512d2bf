package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)
	LogFile   string // optional, rotated log file for daemon use

	// State
	StateFile       string        // path to the JSON state snapshot
	KeepBackups     bool          // hard-link the previous snapshot before each commit
	BackupRetention time.Duration // backups older than this are pruned (newest always kept)
	PruneInterval   time.Duration // how often the daemon prunes backups

	// Sources
	RulesFile        string        // optional YAML with folder mapping and categories
	WatchRules       bool          // reload rules when RulesFile changes
	SourceFile       string        // local export file (json or yaml)
	APIURL           string        // remote bookmarks API base URL
	APIToken         string        // bearer token, required with APIURL
	APIPageSize      int           // page size requested from the API
	FetchFromFolders bool          // map folder ids to tags
	SyncInterval     time.Duration // daemon sync period

	// Enrichment
	Concurrency          int
	Enrich               bool // false => processed items are stored as skipped
	ResolveLinks         bool // follow redirects and read page metadata
	EnrichMaxAttempts    int
	EnrichInitialBackoff time.Duration
	EnrichMaxBackoff     time.Duration
	EnrichAttemptTimeout time.Duration
	MaxFailedRuns        int // 0 = retry failed items forever

	// Consumers
	OutputDir  string // markdown notes directory (empty = disabled)
	WebhookURL string // webhook endpoint (empty = disabled)

	// Redis link cache (optional, empty RedisAddr = disabled)
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts
	CacheTTL              time.Duration // link cache entry lifetime

	// Access restrictions
	AllowedHosts    []string // optional, restrict access to specific Host headers
	AllowedCIDRS    []string // optional, restrict access to specific IP (e.g. "1.2.3.4, 5.6.7.8")
	TrustProxy      bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
	SyncRateBurst   int      // POST /sync burst per client
	SyncRatePerMin  int      // POST /sync refill per client per minute
}

// RedisEnabled reports whether the link cache should be wired.
func (c *Config) RedisEnabled() bool { return c.RedisAddr != "" }

// HasSource reports whether exactly one bookmark source is configured.
func (c *Config) HasSource() bool { return c.SourceFile != "" || c.APIURL != "" }

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("MARKSYNC_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("MARKSYNC_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("MARKSYNC_LOG_LEVEL", "info"),
		PrettyLog: mustBool("MARKSYNC_PRETTY_LOG", true),
		LogFile:   getenv("MARKSYNC_LOG_FILE", ""),

		// State
		StateFile:       getenv("MARKSYNC_STATE_FILE", "./marksync-state.json"),
		KeepBackups:     mustBool("MARKSYNC_KEEP_BACKUPS", true),
		BackupRetention: mustDuration("MARKSYNC_BACKUP_RETENTION", 7*24*time.Hour),
		PruneInterval:   mustDuration("MARKSYNC_PRUNE_INTERVAL", 24*time.Hour),

		// Sources
		RulesFile:        getenv("MARKSYNC_RULES_FILE", ""),
		WatchRules:       mustBool("MARKSYNC_WATCH_RULES", true),
		SourceFile:       getenv("MARKSYNC_SOURCE_FILE", ""),
		APIURL:           getenv("MARKSYNC_API_URL", ""),
		APIPageSize:      getenvInt("MARKSYNC_API_PAGE_SIZE", 100),
		FetchFromFolders: mustBool("MARKSYNC_FETCH_FROM_FOLDERS", true),
		SyncInterval:     mustDuration("MARKSYNC_SYNC_INTERVAL", 15*time.Minute),

		// Enrichment
		Concurrency:          getenvInt("MARKSYNC_CONCURRENCY", 4),
		Enrich:               mustBool("MARKSYNC_ENRICH", true),
		ResolveLinks:         mustBool("MARKSYNC_RESOLVE_LINKS", true),
		EnrichMaxAttempts:    getenvInt("MARKSYNC_ENRICH_MAX_ATTEMPTS", 4),
		EnrichInitialBackoff: mustDuration("MARKSYNC_ENRICH_INITIAL_BACKOFF", 500*time.Millisecond),
		EnrichMaxBackoff:     mustDuration("MARKSYNC_ENRICH_MAX_BACKOFF", 10*time.Second),
		EnrichAttemptTimeout: mustDuration("MARKSYNC_ENRICH_ATTEMPT_TIMEOUT", 10*time.Second),
		MaxFailedRuns:        getenvInt("MARKSYNC_MAX_FAILED_RUNS", 5),

		// Consumers
		OutputDir:  getenv("MARKSYNC_OUTPUT_DIR", ""),
		WebhookURL: getenv("MARKSYNC_WEBHOOK_URL", ""),

		// Redis settings
		RedisAddr:             getenv("MARKSYNC_REDIS_ADDR", ""),
		RedisUser:             getenv("MARKSYNC_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("MARKSYNC_REDIS_PASSWORD_REQUIRED", false),
		RedisPassword:         getenv("MARKSYNC_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("MARKSYNC_REDIS_DB", 0),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),
		CacheTTL:              mustDuration("MARKSYNC_CACHE_TTL", 7*24*time.Hour),

		// Access restrictions
		AllowedHosts:   splitAndTrim(getenv("MARKSYNC_ALLOWED_HOSTS", "")),
		AllowedCIDRS:   parseAllowedIPs(getenv("MARKSYNC_ALLOWED_CIDRS", "")),
		TrustProxy:     mustBool("MARKSYNC_TRUST_PROXY", true),
		SyncRateBurst:  getenvInt("MARKSYNC_SYNC_RATE_BURST", 3),
		SyncRatePerMin: getenvInt("MARKSYNC_SYNC_RATE_PER_MIN", 6),
	}

	if cfg.SourceFile != "" && cfg.APIURL != "" {
		panic("❌ FATAL: MARKSYNC_SOURCE_FILE and MARKSYNC_API_URL are mutually exclusive")
	}
	if cfg.APIURL != "" {
		cfg.APIToken = requireEnv("MARKSYNC_API_TOKEN")
	}

	// Validate Redis password configuration
	if cfg.RedisEnabled() && cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
		panic("❌ FATAL: MARKSYNC_REDIS_PASSWORD is required when MARKSYNC_REDIS_PASSWORD_REQUIRED=true")
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		if cfg.APIToken != "" {
			cfgCopy.APIToken = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// RequireSource panics unless a bookmark source is configured. Commands that
// only read local state skip it.
func (c *Config) RequireSource() {
	if !c.HasSource() {
		panic("❌ FATAL: one of MARKSYNC_SOURCE_FILE or MARKSYNC_API_URL must be set")
	}
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
