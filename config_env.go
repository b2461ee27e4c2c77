package trustchain

import (
	"time"

	"github.com/openfedgo/trustchain/core/config"
	"github.com/openfedgo/trustchain/core/validator"
)

// EnvEngineConfig holds the scalar knobs of EngineConfig as environment
// variables, for deployments that configure the resolver from the process
// environment rather than building EngineConfig by hand. Trust anchors
// still come from wherever the caller sources its federation's public
// keys (a file, a secrets manager, ...); there is no sane env var shape
// for a JWK Set.
type EnvEngineConfig struct {
	AllowedDeltaSeconds int      `env:"TRUSTCHAIN_ALLOWED_DELTA_SECONDS" envDefault:"300" validate:"positive"`
	MaxChainDepth       int      `env:"TRUSTCHAIN_MAX_CHAIN_DEPTH" envDefault:"10" validate:"positive"`
	HTTPTimeoutSeconds  int      `env:"TRUSTCHAIN_HTTP_TIMEOUT_SECONDS" envDefault:"10" validate:"positive"`
	DeadlineSeconds     int      `env:"TRUSTCHAIN_DEADLINE_SECONDS" envDefault:"0"`
	Priority            []string `env:"TRUSTCHAIN_PRIORITY" envSeparator:","`
}

// LoadEnvEngineConfig reads EnvEngineConfig from the process environment
// using core/config.Load and rejects non-positive timing values with
// core/validator before they reach EngineConfig.
func LoadEnvEngineConfig() (EnvEngineConfig, error) {
	var e EnvEngineConfig
	if err := config.Load(&e); err != nil {
		return EnvEngineConfig{}, err
	}
	if err := validator.ValidateStruct(&e); err != nil {
		return EnvEngineConfig{}, err
	}
	return e, nil
}

// ApplyTo overlays e's scalar settings onto cfg, leaving TrustAnchors
// untouched.
func (e EnvEngineConfig) ApplyTo(cfg EngineConfig) EngineConfig {
	cfg.AllowedDelta = time.Duration(e.AllowedDeltaSeconds) * time.Second
	cfg.MaxChainDepth = e.MaxChainDepth
	cfg.HTTPTimeout = time.Duration(e.HTTPTimeoutSeconds) * time.Second
	cfg.Deadline = time.Duration(e.DeadlineSeconds) * time.Second
	if len(e.Priority) > 0 {
		cfg.Priority = e.Priority
	}
	return cfg
}
