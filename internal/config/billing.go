package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type BillingConfig struct {
	EntryFeeCC     int64 `env:"ENTRY_FEE_CC" envDefault:"10"`
	FreeMinutes    int   `env:"FREE_MINUTES" envDefault:"10"`
	PerMinuteFeeCC int64 `env:"PER_MINUTE_FEE_CC" envDefault:"2"`

	// TickPeriod is one metered minute. Only tests shrink it.
	TickPeriod time.Duration `env:"BILLING_TICK_PERIOD" envDefault:"60s"`
}

func LoadBilling() (BillingConfig, error) {
	var cfg BillingConfig
	err := env.Parse(&cfg)
	return cfg, err
}
