package config

import "time"

type App struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	Env         string `env:"APP_ENV" default:"dev"`

	SweepInterval time.Duration `env:"SWEEP_INTERVAL" default:"1h"`

	LateRatePerDay   float64 `env:"LATE_RATE_PER_DAY" default:"5000"`
	DamageFeeMin     float64 `env:"DAMAGE_FEE_MIN" default:"50000"`
	DamageFeeMax     float64 `env:"DAMAGE_FEE_MAX" default:"500000"`
	DamageFeeDefault float64 `env:"DAMAGE_FEE_DEFAULT" default:"50000"`
	LostMultiplier   float64 `env:"LOST_MULTIPLIER" default:"1.5"`
}
