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

	SourcesDir  string        // root of the imagery catalog ("sources" directory)
	PolicyFile  string        // optional YAML check policy, empty = built-in defaults
	RunInterval time.Duration // interval between two validation runs (default: 24h)
	RunOnce     bool          // run a single batch, write OUTPUT_FILE and exit
	OutputFile  string        // optional JSON result list for external renderers

	// Probing
	HTTPTimeout     time.Duration // per-request timeout (default: 30s)
	BatchTimeout    time.Duration // deadline for a whole run, 0 = none
	MaxConcurrency  int           // concurrent source evaluations, 0 = unlimited
	TilePaceDelay   time.Duration // pause between two TMS tile probes (default: 500ms)
	HostMinInterval time.Duration // minimum spacing between requests to the same host
	UserAgent       string
	MaxBodyBytes    int64
	SkipTLSVerify   bool // many imagery servers have broken chains (default: true)

	// Redis (optional, empty address disables persistence)
	RedisAddr           string
	RedisUser           string
	RedisPassword       string
	RedisDB             int
	RedisDT             time.Duration // Redis dial timeout (ex: 5s)
	RedisRT             time.Duration // Redis read timeout (ex: 3s)
	RedisWT             time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait        time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout    time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize       int
	RedisConnectTimeout time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold  int           // warn after this many attempts
	RedisResultTTL      time.Duration // expiry of persisted results

	AllowedHosts []string // optional, restrict access to specific Host headers
	AllowedCIDRS []string // optional, restrict POST /api/run to these networks
	TrustProxy   bool     // true => trust X-Forwarded-For headers
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("ELIWATCH_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("ELIWATCH_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("ELIWATCH_LOG_LEVEL", "info"),
		PrettyLog: mustBool("ELIWATCH_PRETTY_LOG", false),

		// Catalog and runs
		SourcesDir:  requireEnv("ELIWATCH_SOURCES_DIR"),
		PolicyFile:  getenv("ELIWATCH_POLICY_FILE", ""),
		RunInterval: mustDuration("ELIWATCH_RUN_INTERVAL", 24*time.Hour),
		RunOnce:     mustBool("ELIWATCH_RUN_ONCE", false),
		OutputFile:  getenv("ELIWATCH_OUTPUT_FILE", ""),

		// Probing
		HTTPTimeout:     mustDuration("ELIWATCH_HTTP_TIMEOUT", 30*time.Second),
		BatchTimeout:    mustDuration("ELIWATCH_BATCH_TIMEOUT", 2*time.Hour),
		MaxConcurrency:  getenvInt("ELIWATCH_MAX_CONCURRENCY", 0),
		TilePaceDelay:   mustDuration("ELIWATCH_TILE_PACE_DELAY", 500*time.Millisecond),
		HostMinInterval: mustDuration("ELIWATCH_HOST_MIN_INTERVAL", 0),
		UserAgent:       getenv("ELIWATCH_USER_AGENT", ""),
		MaxBodyBytes:    int64(getenvInt("ELIWATCH_MAX_BODY_BYTES", 16<<20)),
		SkipTLSVerify:   mustBool("ELIWATCH_SKIP_TLS_VERIFY", true),

		// Redis settings
		RedisAddr:           getenv("ELIWATCH_REDIS_ADDR", ""),
		RedisUser:           getenv("ELIWATCH_REDIS_USERNAME", "default"),
		RedisPassword:       getenv("ELIWATCH_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("ELIWATCH_REDIS_DB", 0),
		RedisDT:             mustDuration("ELIWATCH_REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("ELIWATCH_REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("ELIWATCH_REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:        mustDuration("ELIWATCH_REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("ELIWATCH_REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:       getenvInt("ELIWATCH_REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("ELIWATCH_REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("ELIWATCH_REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:  getenvInt("ELIWATCH_REDIS_WARN_THRESHOLD", 3),
		RedisResultTTL:      mustDuration("ELIWATCH_REDIS_RESULT_TTL", 7*24*time.Hour),

		// Access restrictions
		AllowedHosts: splitAndTrim(getenv("ELIWATCH_ALLOWED_HOSTS", "")),
		AllowedCIDRS: parseAllowedIPs(getenv("ELIWATCH_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("ELIWATCH_TRUST_PROXY", false),
	}

	if cfg.MaxConcurrency < 0 {
		panic(fmt.Sprintf("❌ FATAL: ELIWATCH_MAX_CONCURRENCY must be >= 0, got %d", cfg.MaxConcurrency))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		if cfgCopy.RedisPassword != "" {
			cfgCopy.RedisPassword = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// RedisEnabled reports whether run snapshots are persisted.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
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
