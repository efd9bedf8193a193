package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	GinMode  string
	TZ       string
	Location *time.Location

	DBHost       string
	DBPort       string
	DBUser       string
	DBPassword   string
	DBName       string
	DBSSLMode    string
	DBMaxRetries int

	LibraryPort       string
	GatewayPort       string
	LibraryServiceURL string

	FinePerDay int64
	LoanDays   int
	SeedData   bool

	JWTSecret string
	TokenTTL  time.Duration

	BreakerMaxFailures int
	BreakerTimeout     time.Duration
	RetryInterval      time.Duration
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded, using system environment")
	} else {
		log.Printf(".env file loaded")
	}

	cfg := &Config{
		GinMode: getEnv("GIN_MODE", "debug"),
		TZ:      getEnv("TZ", "Asia/Jakarta"),

		DBHost:       getEnv("DB_HOST", "postgres"),
		DBPort:       getEnv("DB_PORT", "5432"),
		DBUser:       getEnv("DB_USER", "program"),
		DBPassword:   getEnv("DB_PASSWORD", "test"),
		DBName:       getEnv("DB_NAME", "perpustakaan"),
		DBSSLMode:    getEnv("DB_SSLMODE", "disable"),
		DBMaxRetries: getEnvInt("DB_MAX_RETRIES", 10),

		LibraryPort:       getEnv("LIBRARY_PORT", "8060"),
		GatewayPort:       getEnv("GATEWAY_PORT", "8080"),
		LibraryServiceURL: getEnv("LIBRARY_SERVICE_URL", "http://library:8060"),

		FinePerDay: int64(getEnvInt("FINE_PER_DAY", 1000)),
		LoanDays:   getEnvInt("LOAN_DAYS", 14),
		SeedData:   getEnvBool("SEED_DATA", false),

		JWTSecret: getEnv("JWT_SECRET", "perpustakaan-secret"),
		TokenTTL:  getEnvDuration("TOKEN_TTL", 24*time.Hour),

		BreakerMaxFailures: getEnvInt("BREAKER_MAX_FAILURES", 5),
		BreakerTimeout:     getEnvDuration("BREAKER_TIMEOUT", 30*time.Second),
		RetryInterval:      getEnvDuration("RETRY_INTERVAL", 10*time.Second),
	}

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		log.Printf("Unknown TZ %q, falling back to UTC: %v", cfg.TZ, err)
		loc = time.UTC
	}
	cfg.Location = loc

	if os.Getenv("JWT_SECRET") == "" {
		log.Println("JWT_SECRET is not set, using the development default")
	}
	return cfg
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode)
}

// Now returns the current instant in the configured location.
func (c *Config) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}
