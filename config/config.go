package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Chat     ChatConfig
	CORS     CORSConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type ChatConfig struct {
	// WelcomeName is the reserved sender name for the server's welcome
	// message. Clients never send under this name.
	WelcomeName string
	WelcomeText string
	// WelcomeWindow is how long an identical welcome suppresses the next one.
	WelcomeWindow time.Duration
	// HistoryLimit caps GET /api/chat/messages when no limit is given.
	HistoryLimit int
	// EventsPerSec rate-limits inbound frames per websocket connection.
	EventsPerSec int
	EventsBurst  int
	// HistoryTTL bounds how long a cached history response may be served.
	HistoryTTL time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		redisDB = 0
	}

	historyLimit, err := strconv.Atoi(getEnv("CHAT_HISTORY_LIMIT", "50"))
	if err != nil || historyLimit <= 0 {
		historyLimit = 50
	}

	eventsPerSec, err := strconv.Atoi(getEnv("CHAT_EVENTS_PER_SECOND", "20"))
	if err != nil || eventsPerSec <= 0 {
		eventsPerSec = 20
	}

	origins := strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"), ",")

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "classpage"),
			Password: getEnv("DB_PASSWORD", "classpage_password"),
			DBName:   getEnv("DB_NAME", "classpage_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Chat: ChatConfig{
			WelcomeName:   getEnv("CHAT_WELCOME_NAME", "Class Bot"),
			WelcomeText:   getEnv("CHAT_WELCOME_TEXT", "Welcome to the class chat!"),
			WelcomeWindow: 60 * time.Second,
			HistoryLimit:  historyLimit,
			EventsPerSec:  eventsPerSec,
			EventsBurst:   40,
			HistoryTTL:    30 * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: origins,
		},
	}

	if cfg.Chat.WelcomeName == "" {
		return nil, fmt.Errorf("CHAT_WELCOME_NAME must not be empty")
	}

	return cfg, nil
}

// GetDSN returns the database connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
