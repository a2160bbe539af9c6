// Package plan maps inbound credentials to a service tier and its limits.
package plan

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

type Tier string

const (
	TierAnonymous Tier = "anonymous"
	TierFree      Tier = "free"
	TierPro       Tier = "pro"
)

// Limits holds a tier's quota ceilings. Zero means unlimited.
type Limits struct {
	MaxOpsPerDay     int64 `yaml:"max_ops_per_day"`
	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes"`
	MaxPages         int64 `yaml:"max_pages"`
}

var defaultLimits = map[Tier]Limits{
	TierAnonymous: {
		MaxOpsPerDay:     8,
		MaxFileSizeBytes: 10 * 1024 * 1024,
		MaxPages:         25,
	},
	TierFree: {
		MaxOpsPerDay:     30,
		MaxFileSizeBytes: 50 * 1024 * 1024,
		MaxPages:         100,
	},
	TierPro: {},
}

var limits = defaultLimits

// LimitsFor returns the quota limits for a tier. Unknown tiers get the
// anonymous limits.
func LimitsFor(tier Tier) Limits {
	if l, ok := limits[tier]; ok {
		return l
	}
	return limits[TierAnonymous]
}

// LoadLimits replaces the built-in tier limits with values from a YAML file.
// Tiers absent from the file keep their defaults. An empty path is a no-op.
func LoadLimits(path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read plans file: %w", err)
	}

	var loaded map[Tier]Limits
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parse plans file: %w", err)
	}

	merged := make(map[Tier]Limits, len(defaultLimits))
	for tier, l := range defaultLimits {
		merged[tier] = l
	}
	for tier, l := range loaded {
		merged[tier] = l
	}
	limits = merged

	log.Printf("Plan limits loaded from %s", path)
	return nil
}
