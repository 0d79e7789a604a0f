package config

import "github.com/caarlos0/env/v11"

type RoomConfig struct {
	HostCamSlots  int `env:"HOST_CAM_SLOTS" envDefault:"1"`
	GuestCamSlots int `env:"GUEST_CAM_SLOTS" envDefault:"4"`

	BaseRevealPriceCC int64 `env:"BASE_REVEAL_PRICE_CC" envDefault:"20"`

	// SlotClaimRetries bounds the allocator's internal retry loop when a
	// claim loses the race for a slot.
	SlotClaimRetries int `env:"SLOT_CLAIM_RETRIES" envDefault:"3"`
}

func LoadRoom() (RoomConfig, error) {
	var cfg RoomConfig
	err := env.Parse(&cfg)
	return cfg, err
}
