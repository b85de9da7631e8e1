package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// This function will Load the ENVIRONMENT VARIABLES from .env if GO_ENV variable is not set
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	return nil
}

type EnvironmentVariable struct {
	GO_ENV          string
	PORT            int
	ALLOWED_ORIGINS string

	DATABASE_URL string

	// Sessions
	NEXTAUTH_SECRET string
	NEXTAUTH_URL    string

	CRON_SECRET  string
	CRON_ENABLED bool

	// Wompi
	WOMPI_PRIVATE_KEY   string
	WOMPI_BASE_URL      string
	WOMPI_EVENTS_SECRET string

	// Redis
	REDIS_HOST     string
	REDIS_PORT     string
	REDIS_PASSWORD string

	// Generation
	ANTHROPIC_API_KEY    string
	ANTHROPIC_BASE_URL   string
	ANTHROPIC_MODEL      string
	YOUTUBE_DATA_API_KEY string
	WORKER_CONCURRENCY   int

	// Content document store: "memory" or "spaces"
	CONTENT_STORE          string
	DO_SPACES_ACCESS_KEY   string
	DO_SPACES_SECRET_KEY   string
	DO_SPACES_BUCKET       string
	DO_SPACES_REGION       string
	DO_SPACES_ENDPOINT     string
	DO_SPACES_CDN_ENDPOINT string

	// Seed
	ADMIN_EMAIL    string
	ADMIN_PASSWORD string
}

func Get() (*EnvironmentVariable, error) {
	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil {
		port = 8080
	}

	concurrency, err := strconv.Atoi(os.Getenv("WORKER_CONCURRENCY"))
	if err != nil || concurrency < 1 {
		concurrency = 2
	}

	envVariables := &EnvironmentVariable{
		GO_ENV:          os.Getenv("GO_ENV"),
		PORT:            port,
		ALLOWED_ORIGINS: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
		DATABASE_URL:    os.Getenv("DATABASE_URL"),
		// Sessions
		NEXTAUTH_SECRET: os.Getenv("NEXTAUTH_SECRET"),
		NEXTAUTH_URL:    getEnv("NEXTAUTH_URL", "http://localhost:3000"),
		// Cron
		CRON_SECRET:  os.Getenv("CRON_SECRET"),
		CRON_ENABLED: os.Getenv("CRON_ENABLED") != "false",
		// Wompi
		WOMPI_PRIVATE_KEY:   os.Getenv("WOMPI_PRIVATE_KEY"),
		WOMPI_BASE_URL:      strings.TrimSuffix(getEnv("WOMPI_BASE_URL", "https://sandbox.wompi.co/v1"), "/"),
		WOMPI_EVENTS_SECRET: os.Getenv("WOMPI_EVENTS_SECRET"),
		// Redis
		REDIS_HOST:     getEnv("REDIS_HOST", "localhost"),
		REDIS_PORT:     getEnv("REDIS_PORT", "6379"),
		REDIS_PASSWORD: os.Getenv("REDIS_PASSWORD"),
		// Generation
		ANTHROPIC_API_KEY:    os.Getenv("ANTHROPIC_API_KEY"),
		ANTHROPIC_BASE_URL:   strings.TrimSuffix(getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"), "/"),
		ANTHROPIC_MODEL:      getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-latest"),
		YOUTUBE_DATA_API_KEY: os.Getenv("YOUTUBE_DATA_API_KEY"),
		WORKER_CONCURRENCY:   concurrency,
		// Content store
		CONTENT_STORE:          getEnv("CONTENT_STORE", "memory"),
		DO_SPACES_ACCESS_KEY:   os.Getenv("DO_SPACES_ACCESS_KEY"),
		DO_SPACES_SECRET_KEY:   os.Getenv("DO_SPACES_SECRET_KEY"),
		DO_SPACES_BUCKET:       os.Getenv("DO_SPACES_BUCKET"),
		DO_SPACES_REGION:       os.Getenv("DO_SPACES_REGION"),
		DO_SPACES_ENDPOINT:     os.Getenv("DO_SPACES_ENDPOINT"),
		DO_SPACES_CDN_ENDPOINT: os.Getenv("DO_SPACES_CDN_ENDPOINT"),
		// Seed
		ADMIN_EMAIL:    os.Getenv("ADMIN_EMAIL"),
		ADMIN_PASSWORD: os.Getenv("ADMIN_PASSWORD"),
	}

	return envVariables, nil
}

// Validate reports the variables a server process cannot start without.
func (e *EnvironmentVariable) Validate() error {
	var missing []string
	if e.DATABASE_URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if e.NEXTAUTH_SECRET == "" {
		missing = append(missing, "NEXTAUTH_SECRET")
	}
	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}
	return nil
}

// IsProduction reports whether GO_ENV is production.
func (e *EnvironmentVariable) IsProduction() bool {
	return e.GO_ENV == "production"
}

// RedisAddr returns host:port for the Redis client.
func (e *EnvironmentVariable) RedisAddr() string {
	return e.REDIS_HOST + ":" + e.REDIS_PORT
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
