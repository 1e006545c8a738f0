package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/yukikurage/chore-reward-api/internal/constants"
)

type Config struct {
	DBDriver      string
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	RedisHost     string
	RedisPort     string
	SessionSecret string
	JWTSecret     string
	GinMode       string
	Port          string
	OpenAIAPIKey  string

	// External ledger collaborator
	LedgerURL     string
	LedgerAPIKey  string
	LedgerTimeout time.Duration

	// Notification collaborator
	KafkaBrokers           []string
	KafkaNotificationTopic string

	InviteMaxUses int
	InviteTTL     time.Duration

	// Cron specs; "off" disables the job
	ExpirySchedule          string
	SettlementRetrySchedule string

	JoinRatePerMinute int
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DBDriver:      getEnv("DB_DRIVER", "mysql"),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "3306"),
		DBUser:        getEnv("DB_USER", "choreuser"),
		DBPassword:    getEnv("DB_PASSWORD", "chorepassword"),
		DBName:        getEnv("DB_NAME", "chore_rewards"),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		SessionSecret: getEnv("SESSION_SECRET", "default-secret-key-change-me"),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		GinMode:       getEnv("GIN_MODE", "debug"),
		Port:          getEnv("PORT", "8080"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),

		LedgerURL:     getEnv("LEDGER_URL", "http://localhost:9090"),
		LedgerAPIKey:  getEnv("LEDGER_API_KEY", ""),
		LedgerTimeout: getDuration("LEDGER_TIMEOUT", constants.DefaultLedgerTimeout),

		KafkaBrokers:           getList("KAFKA_BROKERS"),
		KafkaNotificationTopic: getEnv("KAFKA_NOTIFICATION_TOPIC", "chore.notifications"),

		InviteMaxUses: getInt("INVITE_MAX_USES", constants.DefaultInviteMaxUses),
		InviteTTL:     getDuration("INVITE_TTL", constants.DefaultInviteTTL),

		ExpirySchedule:          getEnv("EXPIRY_SCHEDULE", "@every 5m"),
		SettlementRetrySchedule: getEnv("SETTLEMENT_RETRY_SCHEDULE", "@every 10m"),

		JoinRatePerMinute: getInt("JOIN_RATE_PER_MINUTE", 10),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

func getList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
