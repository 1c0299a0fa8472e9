package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SitePolicy is the operator-editable allowlist of sensor `site` tags
// plus a severity_text map. Only the allowlist is applied (by
// cropcoordinator.Translate); SeverityText is parsed but no other package
// reads it, so labels always come from types.ComputeLabel's fixed
// thresholds. Unlike Config, it is parsed
// directly with yaml.v3 rather than through viper, because it is
// content an operator hand-edits rather than deployment configuration.
type SitePolicy struct {
	AllowedSites []string          `yaml:"allowed_sites"`
	SeverityText map[string]string `yaml:"severity_text"`
}

// DefaultSitePolicy allows every site and uses no severity overrides.
func DefaultSitePolicy() SitePolicy {
	return SitePolicy{}
}

// LoadSitePolicy reads and parses a site policy document. An empty path
// returns DefaultSitePolicy() without error.
func LoadSitePolicy(path string) (SitePolicy, error) {
	if path == "" {
		return DefaultSitePolicy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return SitePolicy{}, fmt.Errorf("policy: failed to read %s: %w", path, err)
	}

	var policy SitePolicy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return SitePolicy{}, fmt.Errorf("policy: failed to parse %s: %w", path, err)
	}

	return policy, nil
}

// Allows reports whether the given sensor site tag is permitted. An empty
// allowlist permits every site.
func (p SitePolicy) Allows(site string) bool {
	if len(p.AllowedSites) == 0 {
		return true
	}
	for _, s := range p.AllowedSites {
		if s == site {
			return true
		}
	}
	return false
}
