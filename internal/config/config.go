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
	AppEnv         string
	Port           string
	AllowedOrigins []string

	DatabaseURL string
	DBHost      string
	DBUser      string
	DBPass      string
	DBName      string
	DBPort      string

	RedisURL string

	MeiliSearchHost string
	MeiliMasterKey  string
	SearchEnabled   bool

	JWTSecret string

	// Location decides where calendar days (streaks, daily quests, weeks) begin.
	Location *time.Location

	CronWeeklyGoals  string
	CronStreakBonus  string
	CronQuestExpiry  string
	SchedulerLockTTL time.Duration
	StoreTimeout     time.Duration
	DailyLoginPoints int
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPass:      os.Getenv("DB_PASS"),
		DBName:      getEnv("DB_NAME", "gamiledger"),
		DBPort:      getEnv("DB_PORT", "5432"),

		RedisURL: os.Getenv("REDIS_URL"),

		MeiliSearchHost: getEnv("MEILISEARCH_HOST", "http://localhost:7700"),
		MeiliMasterKey:  os.Getenv("MEILI_MASTER_KEY"),
		SearchEnabled:   getEnv("SEARCH_ENABLED", "true") == "true",

		JWTSecret: os.Getenv("JWT_SECRET"),

		CronWeeklyGoals: getEnv("CRON_WEEKLY_GOALS", "5 0 * * 1"),
		CronStreakBonus: getEnv("CRON_STREAK_BONUS", "50 23 * * *"),
		CronQuestExpiry: getEnv("CRON_QUEST_EXPIRY", "@hourly"),
	}

	if cfg.JWTSecret == "" && cfg.IsProduction() {
		return nil, fmt.Errorf("JWT_SECRET is required in production")
	}

	if !strings.HasPrefix(cfg.MeiliSearchHost, "http") {
		cfg.MeiliSearchHost = "http://" + cfg.MeiliSearchHost + ":7700"
	}

	loc, err := time.LoadLocation(getEnv("LEDGER_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid LEDGER_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	// Parsing durations
	cfg.SchedulerLockTTL, err = parseDuration(getEnv("SCHEDULER_LOCK_TTL", "10m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_LOCK_TTL: %w", err)
	}
	cfg.StoreTimeout, err = parseDuration(getEnv("STORE_TIMEOUT", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid STORE_TIMEOUT: %w", err)
	}

	cfg.DailyLoginPoints, err = strconv.Atoi(getEnv("DAILY_LOGIN_POINTS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid DAILY_LOGIN_POINTS: %w", err)
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
