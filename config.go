package trustchain

import (
	"time"

	"github.com/go-jose/go-jose/v4"
)

// EngineConfig configures a TrustChainResolver (spec.md §6's "Configuration
// inputs"). Build it directly; LoadEnvEngineConfig and EnvEngineConfig.ApplyTo
// overlay its scalar settings and priority list from the environment.
type EngineConfig struct {
	// TrustAnchors maps entity id -> verification keys. Anchors are the only
	// root of trust; their keys are never sourced from chain content.
	TrustAnchors map[string]jose.JSONWebKeySet

	// Priority lists anchor ids in preference order for the priority rule
	// (spec.md §4.6). Optional.
	Priority []string

	// AllowedDelta is the accepted clock-skew tolerance. Default 300s.
	AllowedDelta time.Duration

	// MaxChainDepth bounds the collector's recursion. Default 10.
	MaxChainDepth int

	// HTTPTimeout is the per-request timeout for every fetch. Default 10s.
	HTTPTimeout time.Duration

	// Deadline bounds one resolve() call's total wall-clock time, including
	// every fetch it issues. Zero means no deadline beyond the caller's own
	// context.
	Deadline time.Duration
}

// withDefaults fills in spec.md §6's documented defaults for any zero field.
func (c EngineConfig) withDefaults() EngineConfig {
	if c.AllowedDelta == 0 {
		c.AllowedDelta = 300 * time.Second
	}
	if c.MaxChainDepth == 0 {
		c.MaxChainDepth = 10
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	return c
}
