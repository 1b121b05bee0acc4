package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

func Load() App {
	cfg := App{
		DatabaseURL:      must("DATABASE_URL"),
		Env:              getenv("APP_ENV", "dev"),
		SweepInterval:    getenvDuration("SWEEP_INTERVAL", time.Hour),
		LateRatePerDay:   getenvFloat("LATE_RATE_PER_DAY", 5000),
		DamageFeeMin:     getenvFloat("DAMAGE_FEE_MIN", 50000),
		DamageFeeMax:     getenvFloat("DAMAGE_FEE_MAX", 500000),
		DamageFeeDefault: getenvFloat("DAMAGE_FEE_DEFAULT", 50000),
		LostMultiplier:   getenvFloat("LOST_MULTIPLIER", 1.5),
	}
	return cfg
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvFloat(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("invalid numeric env, using default", "key", k, "value", v)
		return def
	}
	return f
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration env, using default", "key", k, "value", v)
		return def
	}
	return d
}

func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		slog.Error("required env missing", "key", k)
		panic("missing env " + k)
	}
	return v
}
