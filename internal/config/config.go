package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/notifyhub/rental-notifier/internal/domain"
)

// Claim ledger backends.
const (
	ClaimStorePostgres = "postgres"
	ClaimStoreSQLite   = "sqlite"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only DATABASE_URL is required.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Database
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Claim ledger backend: postgres (shared) or sqlite (single host).
	ClaimStoreDriver string
	SQLitePath       string

	// Aggregator thresholds
	BacklogAge    time.Duration
	ModerationAge time.Duration
	ReviewDelay   time.Duration
	Location      *time.Location

	// Triggers
	InlineThrottle   time.Duration
	InlineTimeout    time.Duration
	PassTimeout      time.Duration
	ScheduleInterval time.Duration
	CronSecret       string
	RedisURL         string

	// Dispatch
	DispatchTimeout time.Duration
	RateLimit       int
	ChannelRates    map[domain.Channel]int

	// Rendering
	BaseURL string
	Brand   string

	// Channel credentials; an adapter is registered only when its required
	// fields are set.
	SMTP     SMTP
	Telegram Bot
	VK       Bot
	VAPID    VAPID
}

type SMTP struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	ImplicitTLS bool
	Timeout     time.Duration
}

func (s SMTP) Enabled() bool { return s.Host != "" && s.From != "" }

type Bot struct {
	Token   string
	APIURL  string
	Timeout time.Duration
}

func (b Bot) Enabled() bool { return b.Token != "" }

type VAPID struct {
	PublicKey  string
	PrivateKey string
	Subject    string
	TTL        time.Duration
	Timeout    time.Duration
}

func (v VAPID) Enabled() bool { return v.PublicKey != "" && v.PrivateKey != "" }

// Load reads an optional .env file, then the process environment. Variables
// already set in the environment win over the file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	tz := getEnv("TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load TIMEZONE %q: %w", tz, err)
	}

	driver := strings.ToLower(getEnv("CLAIM_STORE_DRIVER", ClaimStorePostgres))
	if driver != ClaimStorePostgres && driver != ClaimStoreSQLite {
		return nil, fmt.Errorf("CLAIM_STORE_DRIVER must be %q or %q, got %q", ClaimStorePostgres, ClaimStoreSQLite, driver)
	}

	rate := getInt("RATE_LIMIT_PER_CHANNEL", 30)
	channelRates := make(map[domain.Channel]int, len(domain.AllChannels))
	for _, ch := range domain.AllChannels {
		channelRates[ch] = getInt("RATE_LIMIT_"+strings.ToUpper(string(ch)), rate)
	}

	providerTimeout := getDuration("PROVIDER_TIMEOUT", 10*time.Second)

	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL: dbURL,
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 25)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 5)),

		ClaimStoreDriver: driver,
		SQLitePath:       getEnv("SQLITE_PATH", "claims.db"),

		BacklogAge:    getDuration("BACKLOG_AGE", 30*time.Minute),
		ModerationAge: getDuration("MODERATION_AGE", 30*time.Minute),
		ReviewDelay:   getDuration("REVIEW_DELAY", 24*time.Hour),
		Location:      loc,

		InlineThrottle:   getDuration("INLINE_THROTTLE", 5*time.Minute),
		InlineTimeout:    getDuration("INLINE_TIMEOUT", 30*time.Second),
		PassTimeout:      getDuration("PASS_TIMEOUT", 5*time.Minute),
		ScheduleInterval: getDuration("SCHEDULE_INTERVAL", 0),
		CronSecret:       os.Getenv("CRON_SECRET"),
		RedisURL:         os.Getenv("REDIS_URL"),

		DispatchTimeout: getDuration("DISPATCH_TIMEOUT", 15*time.Second),
		RateLimit:       rate,
		ChannelRates:    channelRates,

		BaseURL: strings.TrimRight(getEnv("BASE_URL", "http://localhost:3000"), "/"),
		Brand:   getEnv("BRAND", "Rental"),

		SMTP: SMTP{
			Host:        os.Getenv("SMTP_HOST"),
			Port:        getInt("SMTP_PORT", 465),
			Username:    os.Getenv("SMTP_USER"),
			Password:    os.Getenv("SMTP_PASSWORD"),
			From:        os.Getenv("SMTP_FROM"),
			ImplicitTLS: getBool("SMTP_IMPLICIT_TLS", true),
			Timeout:     providerTimeout,
		},
		Telegram: Bot{
			Token:   os.Getenv("TELEGRAM_BOT_TOKEN"),
			APIURL:  getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
			Timeout: providerTimeout,
		},
		VK: Bot{
			Token:   os.Getenv("VK_BOT_TOKEN"),
			APIURL:  getEnv("VK_API_URL", "https://api.vk.com"),
			Timeout: providerTimeout,
		},
		VAPID: VAPID{
			PublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
			PrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
			Subject:    getEnv("VAPID_SUBJECT", "mailto:support@example.com"),
			TTL:        getDuration("VAPID_TTL", 24*time.Hour),
			Timeout:    providerTimeout,
		},
	}, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
