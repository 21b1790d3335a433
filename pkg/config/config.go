package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort      string
	Environment     string
	FirebaseProject string

	// FirebaseCredentialsJSON wins over FirebaseCredentialsPath when both are set.
	FirebaseCredentialsJSON string
	FirebaseCredentialsPath string

	// StorageDriver selects the conversation repository: memory, firestore or postgres.
	StorageDriver string
	PostgresDSN   string

	// RealtimeBus selects how unread events reach every API instance: memory, redis or nats.
	RealtimeBus   string
	RedisAddr     string
	RedisPassword string
	RedisChannel  string
	NatsServers   []string
	NatsSubject   string

	// DevTokens maps static bearer tokens to user IDs ("token:uid,token2:uid2").
	// Only honoured outside production.
	DevTokens map[string]string

	// AllowedOrigins restricts websocket upgrades; empty allows any origin.
	AllowedOrigins []string

	MarkReadPerMinute int
	MessagesPerMinute int
}

// ClientConfig drives the unread sync agent (cmd/unreadsync).
type ClientConfig struct {
	Environment      string
	APIBaseURL       string
	WebsocketURL     string
	AuthToken        string
	RefreshInterval  time.Duration
	RequestTimeout   time.Duration
	PullAttempts     int
	MarkReadAttempts int
	ResyncAttempts   int
	RetryBaseDelay   time.Duration
	DropdownLimit    int

	// WatchConversations gets one unread marker per conversation ID.
	WatchConversations []string
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		Environment:             getEnv("ENVIRONMENT", "development"),
		FirebaseProject:         getEnv("FIREBASE_PROJECT_ID", ""),
		StorageDriver:           getEnv("STORAGE_DRIVER", "memory"),
		FirebaseCredentialsJSON: getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
		FirebaseCredentialsPath: getEnv("FIREBASE_SERVICE_ACCOUNT_PATH", ""),
		PostgresDSN:             getEnv("POSTGRES_DSN", ""),
		RealtimeBus:             getEnv("REALTIME_BUS", "memory"),
		RedisAddr:               getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:           getEnv("REDIS_PASSWORD", ""),
		RedisChannel:            getEnv("REDIS_CHANNEL", "partshub:unread"),
		NatsServers:             getEnvAsList("NATS_SERVERS", []string{"nats://localhost:4222"}),
		NatsSubject:             getEnv("NATS_SUBJECT", "partshub.unread"),
		DevTokens:               getEnvAsPairs("DEV_TOKENS"),
		AllowedOrigins:          getEnvAsList("ALLOWED_ORIGINS", nil),
		MarkReadPerMinute:       int(getEnvAsInt64("MARK_READ_PER_MINUTE", 120)),
		MessagesPerMinute:       int(getEnvAsInt64("MESSAGES_PER_MINUTE", 30)),
	}

	return config, nil
}

func LoadClient() (*ClientConfig, error) {
	godotenv.Load()

	config := &ClientConfig{
		Environment:      getEnv("ENVIRONMENT", "development"),
		APIBaseURL:       getEnv("API_BASE_URL", "http://localhost:8080"),
		WebsocketURL:     getEnv("WEBSOCKET_URL", "ws://localhost:8080/ws"),
		AuthToken:        getEnv("AUTH_TOKEN", ""),
		RefreshInterval:  getEnvAsDuration("REFRESH_INTERVAL", time.Minute),
		RequestTimeout:   getEnvAsDuration("REQUEST_TIMEOUT", 10*time.Second),
		PullAttempts:     int(getEnvAsInt64("PULL_ATTEMPTS", 2)),
		MarkReadAttempts: int(getEnvAsInt64("MARK_READ_ATTEMPTS", 3)),
		ResyncAttempts:   int(getEnvAsInt64("RESYNC_ATTEMPTS", 3)),
		RetryBaseDelay:   getEnvAsDuration("RETRY_BASE_DELAY", 500*time.Millisecond),
		DropdownLimit:    int(getEnvAsInt64("DROPDOWN_LIMIT", 5)),

		WatchConversations: getEnvAsList("WATCH_CONVERSATIONS", nil),
	}

	return config, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsPairs(key string) map[string]string {
	out := make(map[string]string)
	for _, pair := range getEnvAsList(key, nil) {
		k, v, ok := strings.Cut(pair, ":")
		if !ok || k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}
