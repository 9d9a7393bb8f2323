package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"otengine/overtime"
	"otengine/timeutil"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type Config struct {
	DatabaseURL   string
	JWTSecret     string
	JWTExpiration time.Duration
	ServerPort    string
	Timezone      *time.Location
	LogLevel      logrus.Level
	LogFormat     string

	ReconcileSchedule    string
	ReconcileLookback    int
	ReconcileThreshold   time.Duration
	ReconcileEarlyLead   time.Duration
	ReconcileConcurrency int

	DefaultCheckIn        timeutil.Clock
	OTApprovalPolicy      overtime.ApprovalPolicy
	UnlockReasonMinLength int

	IndoorAccuracy   float64
	IndoorMultiplier float64
}

// Load reads the environment, after merging a .env file when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var errs []string
	fail := func(key string, err error) {
		errs = append(errs, fmt.Sprintf("%s: %v", key, err))
	}

	cfg := &Config{
		DatabaseURL:       getEnv("DATABASE_URL", "postgresql://postgres@localhost:5432/otengine"),
		JWTSecret:         getEnv("JWT_SECRET", "your-super-secret-key-change-in-production"),
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		LogFormat:         strings.ToLower(getEnv("LOG_FORMAT", "text")),
		ReconcileSchedule: getEnv("RECONCILE_SCHEDULE", "@every 1h"),
	}

	var err error
	if cfg.JWTExpiration, err = getEnvDuration("JWT_EXPIRATION", 24*time.Hour); err != nil {
		fail("JWT_EXPIRATION", err)
	}
	if cfg.Timezone, err = time.LoadLocation(getEnv("TIMEZONE", "Asia/Kolkata")); err != nil {
		fail("TIMEZONE", err)
	}
	if cfg.LogLevel, err = logrus.ParseLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		fail("LOG_LEVEL", err)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		fail("LOG_FORMAT", fmt.Errorf("want text or json, got %q", cfg.LogFormat))
	}
	if _, err := cron.ParseStandard(cfg.ReconcileSchedule); err != nil {
		fail("RECONCILE_SCHEDULE", err)
	}
	if cfg.DefaultCheckIn, err = timeutil.ParseClock(getEnv("DEFAULT_CHECK_IN_TIME", "09:00 AM")); err != nil {
		fail("DEFAULT_CHECK_IN_TIME", err)
	}
	if cfg.OTApprovalPolicy, err = overtime.ParseApprovalPolicy(getEnv("OT_APPROVAL_POLICY", "preserve")); err != nil {
		fail("OT_APPROVAL_POLICY", err)
	}
	if cfg.ReconcileLookback, err = getEnvInt("RECONCILE_LOOKBACK_DAYS", 3); err != nil {
		fail("RECONCILE_LOOKBACK_DAYS", err)
	}
	if cfg.ReconcileThreshold, err = getEnvDuration("RECONCILE_FLAT_THRESHOLD", 5*time.Hour); err != nil {
		fail("RECONCILE_FLAT_THRESHOLD", err)
	}
	if cfg.ReconcileEarlyLead, err = getEnvDuration("RECONCILE_EARLY_LEAD", 5*time.Minute); err != nil {
		fail("RECONCILE_EARLY_LEAD", err)
	}
	if cfg.ReconcileConcurrency, err = getEnvInt("RECONCILE_LOOKUP_CONCURRENCY", 8); err != nil {
		fail("RECONCILE_LOOKUP_CONCURRENCY", err)
	}
	if cfg.UnlockReasonMinLength, err = getEnvInt("UNLOCK_REASON_MIN_LENGTH", 10); err != nil {
		fail("UNLOCK_REASON_MIN_LENGTH", err)
	}
	if cfg.IndoorAccuracy, err = getEnvFloat("LOCATION_INDOOR_ACCURACY", 100); err != nil {
		fail("LOCATION_INDOOR_ACCURACY", err)
	}
	if cfg.IndoorMultiplier, err = getEnvFloat("LOCATION_INDOOR_MULTIPLIER", 15); err != nil {
		fail("LOCATION_INDOOR_MULTIPLIER", err)
	}
	if cfg.ReconcileLookback < 1 {
		fail("RECONCILE_LOOKBACK_DAYS", fmt.Errorf("must be at least 1"))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.ParseFloat(value, 64)
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return time.ParseDuration(value)
}
