package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Config holds all recognized environment options.
type Config struct {
	Port        string
	Environment string

	// Database
	DBDriver   string // postgres or sqlite
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	SQLitePath string

	// Logging
	LogLevel  string
	LogFormat string

	// Refresh pipeline
	SymbolsFile      string
	SectorMapFile    string
	ProviderPriority []string
	RefreshWorkers   int

	// Provider credentials (absence degrades the provider, never crashes)
	PolygonAPIKey      string
	AlphaVantageAPIKey string

	// Daily refresh schedule
	ScheduleEnabled bool
	ScheduleTime    string // "HH:MM", UTC
}

var AppConfig *Config
var DB *gorm.DB

// LoadConfig loads environment variables into AppConfig.
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "screener_db"),
		SQLitePath: getEnv("SQLITE_PATH", "data/screener.db"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		SymbolsFile:      getEnv("SYMBOLS_FILE", "data/stock_symbols.txt"),
		SectorMapFile:    getEnv("SECTOR_MAP_FILE", ""),
		ProviderPriority: splitList(getEnv("DATA_PROVIDER_PRIORITY", "yahoo,alphavantage,polygon")),
		RefreshWorkers:   getEnvInt("REFRESH_WORKERS", 1),

		PolygonAPIKey:      getEnv("POLYGON_API_KEY", ""),
		AlphaVantageAPIKey: getEnv("ALPHAVANTAGE_API_KEY", ""),

		ScheduleEnabled: getEnvBool("REFRESH_SCHEDULE_ENABLED", false),
		ScheduleTime:    getEnv("REFRESH_SCHEDULE_TIME", "06:00"),
	}

	AppConfig = config
	return config, nil
}

// InitDB opens the configured database and verifies the connection.
func InitDB() (*gorm.DB, error) {
	var logLevel gormlogger.LogLevel
	if AppConfig.Environment == "production" {
		logLevel = gormlogger.Error
	} else {
		logLevel = gormlogger.Warn
	}
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(logLevel)}

	var db *gorm.DB
	var err error

	switch AppConfig.DBDriver {
	case "sqlite":
		log.Info().Str("path", AppConfig.SQLitePath).Msg("Connecting to sqlite database")
		db, err = gorm.Open(sqlite.Open(AppConfig.SQLitePath), gormCfg)
	case "postgres":
		log.Info().
			Str("host", maskHost(AppConfig.DBHost)).
			Str("port", AppConfig.DBPort).
			Str("dbname", AppConfig.DBName).
			Msg("Connecting to postgres database")
		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=prefer TimeZone=UTC",
			AppConfig.DBHost,
			AppConfig.DBUser,
			AppConfig.DBPassword,
			AppConfig.DBName,
			AppConfig.DBPort,
		)
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", AppConfig.DBDriver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection with ping
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	DB = db
	return db, nil
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid integer env value, using default")
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
