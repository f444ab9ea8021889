// Package config loads the pool's bootstrap configuration from a TOML
// file, following the teacher's config.Load/createDefault pattern.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk bootstrap configuration for the pool's
// operational parameters (spec.md §3 PoolConfig, IRParams).
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	RPCAddress    string `toml:"RPCAddress"`
	DataDir       string `toml:"DataDir"`

	BaseAsset              string `toml:"BaseAsset"`
	BaseAssetDecimals      uint32 `toml:"BaseAssetDecimals"`
	FlashLoanFeeBps        uint32 `toml:"FlashLoanFeeBps"`
	InitialHealthBps       uint32 `toml:"InitialHealthBps"`
	TimestampWindowSeconds uint64 `toml:"TimestampWindowSeconds"`
	GracePeriodSeconds     uint64 `toml:"GracePeriodSeconds"`
	UserAssetsLimit        uint32 `toml:"UserAssetsLimit"`
	LiquidationProtocolFee uint32 `toml:"LiquidationProtocolFeeBps"`

	IRAlphaBps        uint32 `toml:"IRAlphaBps"`
	IRInitialRateBps  uint32 `toml:"IRInitialRateBps"`
	IRMaxRateBps      uint32 `toml:"IRMaxRateBps"`
	IRScalingCoeffBps uint32 `toml:"IRScalingCoeffBps"`
}

// Load loads the configuration from path, creating a default file if
// none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// createDefault writes and returns a conservative default configuration
// matching the reference pool's bootstrap values (spec.md §9 IRParams
// invariants: initial_rate <= 10000 < max_rate; scaling_coeff < 10000).
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:          ":6001",
		RPCAddress:             ":8080",
		DataDir:                "./pool-data",
		BaseAssetDecimals:      7,
		FlashLoanFeeBps:        9,
		InitialHealthBps:       2_500,
		TimestampWindowSeconds: 300,
		GracePeriodSeconds:     600,
		UserAssetsLimit:        8,
		LiquidationProtocolFee: 500,
		IRAlphaBps:             200,
		IRInitialRateBps:       0,
		IRMaxRateBps:           10_500,
		IRScalingCoeffBps:      9_000,
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
