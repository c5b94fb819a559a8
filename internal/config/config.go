package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProfileBasic    = "basic"
	ProfileEnhanced = "enhanced"
)

type Config struct {
	Profile  string
	APIPort  string
	LogLevel string

	GeminiAPIKey string
	GeminiModel  string

	RequestsPerMinute int
	PageCap           int
	MaxTextChars      int
	MinTextChars      int
	MinUploadBytes    int
	MaxUploadBytes    int
	AllowedExtensions []string
	BatchCooldown     time.Duration
	IncludeMetadata   bool

	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
	BreakerEnabled      bool

	NATSURL             string
	NATSProgressSubject string

	MetricsEnabled bool

	APIRateLimitRPS     float64
	APIRateLimitBurst   int
	APIMaxInFlight      int
	APIBackpressureWait time.Duration
}

type profileDefaults struct {
	maxTextChars   int
	minTextChars   int
	minUploadBytes int
}

func defaultsFor(profile string) profileDefaults {
	if profile == ProfileBasic {
		return profileDefaults{
			maxTextChars:   8000,
			minTextChars:   10,
			minUploadBytes: 1,
		}
	}
	return profileDefaults{
		maxTextChars:   12000,
		minTextChars:   20,
		minUploadBytes: 1024,
	}
}

func Load() Config {
	profile := strings.ToLower(mustEnv("SMARTDOC_PROFILE", ProfileEnhanced))
	if profile != ProfileBasic {
		profile = ProfileEnhanced
	}
	def := defaultsFor(profile)

	cfg := Config{
		Profile:  profile,
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		GeminiAPIKey: mustEnv("GEMINI_API_KEY", ""),
		GeminiModel:  mustEnv("GEMINI_MODEL", "gemini-1.5-flash"),

		RequestsPerMinute: mustEnvInt("REQUESTS_PER_MINUTE", 0),
		PageCap:           mustEnvInt("PAGE_CAP", 5),
		MaxTextChars:      mustEnvInt("MAX_TEXT_CHARS", def.maxTextChars),
		MinTextChars:      mustEnvInt("MIN_TEXT_CHARS", def.minTextChars),
		MinUploadBytes:    mustEnvInt("MIN_UPLOAD_BYTES", def.minUploadBytes),
		MaxUploadBytes:    mustEnvInt("MAX_UPLOAD_BYTES", 10*1024*1024),
		AllowedExtensions: splitList(mustEnv("ALLOWED_EXTENSIONS", ".pdf")),
		BatchCooldown:     mustEnvDuration("BATCH_COOLDOWN", 2*time.Second),
		IncludeMetadata:   mustEnvBool("INCLUDE_METADATA", true),

		RetryMaxAttempts:    mustEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialBackoff: mustEnvDuration("RETRY_INITIAL_BACKOFF", 2*time.Second),
		RetryMaxBackoff:     mustEnvDuration("RETRY_MAX_BACKOFF", 8*time.Second),
		RetryMultiplier:     mustEnvFloat("RETRY_MULTIPLIER", 2.0),
		BreakerEnabled:      mustEnvBool("BREAKER_ENABLED", true),

		NATSURL:             mustEnv("NATS_URL", ""),
		NATSProgressSubject: mustEnv("NATS_PROGRESS_SUBJECT", "smartdoc.batch.progress"),

		MetricsEnabled: mustEnvBool("METRICS_ENABLED", true),

		APIRateLimitRPS:     mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst:   mustEnvInt("API_RATE_LIMIT_BURST", 10),
		APIMaxInFlight:      mustEnvInt("API_MAX_IN_FLIGHT", 32),
		APIBackpressureWait: mustEnvDuration("API_BACKPRESSURE_WAIT", 250*time.Millisecond),
	}

	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = catalogRPM(cfg.GeminiModel)
	}
	return cfg
}

// MinRequestInterval is the spacing the rate limiter enforces.
func (c Config) MinRequestInterval() time.Duration {
	if c.RequestsPerMinute <= 0 {
		return 0
	}
	return time.Minute / time.Duration(c.RequestsPerMinute)
}

// Validate reports configuration problems without failing hard; callers
// decide whether a missing key is fatal.
func (c Config) Validate() []string {
	var problems []string
	if c.GeminiAPIKey == "" {
		problems = append(problems, "GEMINI_API_KEY not set")
	}
	if cat, err := LoadCatalog(); err == nil && !cat.HasModel(c.GeminiModel) {
		problems = append(problems, fmt.Sprintf("unknown model: %s", c.GeminiModel))
	}
	if c.MaxUploadBytes <= 0 {
		problems = append(problems, "invalid max upload size")
	}
	if c.MinUploadBytes > c.MaxUploadBytes {
		problems = append(problems, "min upload size exceeds max upload size")
	}
	if c.PageCap <= 0 {
		problems = append(problems, "page cap must be positive")
	}
	if c.MaxTextChars <= 0 {
		problems = append(problems, "max text chars must be positive")
	}
	return problems
}

func catalogRPM(model string) int {
	cat, err := LoadCatalog()
	if err != nil {
		return 10
	}
	rpm := cat.Model(model).RequestsPerMinute
	if rpm <= 0 {
		return 10
	}
	return rpm
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, ".") {
			p = "." + p
		}
		out = append(out, p)
	}
	return out
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

// mustEnvDuration accepts Go durations ("1500ms") or whole seconds ("2").
func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
