package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName          string
	AppVersion       string
	Environment      string
	HTTPAddr         string
	PublicURL        string
	AuthCookieSecure bool
	NodeID           int64
	TimeZone         string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis     RedisConfig
	Referral  ReferralConfig
	Email     EmailConfig
	SMS       SMSConfig
	Payout    PayoutConfig
	Scheduler SchedulerConfig
	RateLimit RateLimitConfig
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type ReferralConfig struct {
	CodePolicy      string
	CodeLength      int
	CodeMaxAttempts int
	LockTTLSeconds  int
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type SMSConfig struct {
	Provider   string
	BaseURL    string
	AccountSID string
	AuthToken  string
	FromNumber string
}

type PayoutConfig struct {
	Provider string
	BaseURL  string
	APIKey   string
}

type SchedulerConfig struct {
	Enabled          bool
	Interval         time.Duration
	SessionRetention time.Duration
}

type RateLimitConfig struct {
	PublicLookupRate  float64
	PublicLookupBurst int
}

const (
	CodePolicyRandom  = "random"
	CodePolicyBranded = "branded"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	authCookieSecure := environment == "production"
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	cfg := Config{
		AppName:          getenv("APP_SERVICE", "referly"),
		AppVersion:       getenv("APP_VERSION", "0.1.0"),
		Environment:      environment,
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		PublicURL:        strings.TrimRight(getenv("APP_URL", "http://localhost:8080"), "/"),
		AuthCookieSecure: authCookieSecure,
		NodeID:           getenvInt64("SNOWFLAKE_NODE", 1),
		TimeZone:         getenv("APP_TIMEZONE", "UTC"),
		OTLPEndpoint:     getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "referly"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Redis: RedisConfig{
			Enabled:  getenvBool("REDIS_ENABLED", false),
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "localhost:6379")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Referral: ReferralConfig{
			CodePolicy:      normalizeCodePolicy(getenv("REFERRAL_CODE_POLICY", CodePolicyRandom)),
			CodeLength:      getenvInt("REFERRAL_CODE_LENGTH", 8),
			CodeMaxAttempts: getenvInt("REFERRAL_CODE_MAX_ATTEMPTS", 3),
			LockTTLSeconds:  getenvInt("REFERRAL_LOCK_TTL_SECONDS", 10),
		},
		Email: EmailConfig{
			SMTPHost:     getenv("SMTP_HOST", "localhost"),
			SMTPPort:     getenvInt("SMTP_PORT", 1025),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "Contractor Referrals <noreply@referly.local>"),
		},
		SMS: SMSConfig{
			Provider:   strings.ToLower(getenv("SMS_PROVIDER", "")),
			BaseURL:    getenv("TWILIO_BASE_URL", "https://api.twilio.com"),
			AccountSID: strings.TrimSpace(getenv("TWILIO_ACCOUNT_SID", "")),
			AuthToken:  strings.TrimSpace(getenv("TWILIO_AUTH_TOKEN", "")),
			FromNumber: strings.TrimSpace(getenv("TWILIO_PHONE_NUMBER", "")),
		},
		Payout: PayoutConfig{
			Provider: strings.ToLower(getenv("PAYOUT_PROVIDER", "")),
			BaseURL:  getenv("TREMENDOUS_BASE_URL", "https://testflight.tremendous.com/api/v2"),
			APIKey:   strings.TrimSpace(getenv("TREMENDOUS_API_KEY", "")),
		},
		Scheduler: SchedulerConfig{
			Enabled:          getenvBool("SCHEDULER_ENABLED", true),
			Interval:         getenvDuration("SCHEDULER_INTERVAL", time.Hour),
			SessionRetention: getenvDuration("SCHEDULER_SESSION_RETENTION", 24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			PublicLookupRate:  getenvFloat("RATE_LIMIT_PUBLIC_LOOKUP_RATE", 1),
			PublicLookupBurst: getenvInt("RATE_LIMIT_PUBLIC_LOOKUP_BURST", 10),
		},
	}

	return cfg
}

// Location resolves the business time zone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(c.TimeZone))
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func normalizeCodePolicy(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case CodePolicyBranded:
		return CodePolicyBranded
	default:
		return CodePolicyRandom
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
