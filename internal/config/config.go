// Package config loads and converts hostlist compiler configurations.
//
// Configurations may be authored in JSON, YAML, or TOML. The external
// compiler only accepts JSON, so every configuration can be converted to
// canonical JSON via ToJSON regardless of its source format.
package config

import (
	"encoding/json"
	"fmt"
)

// SourceType identifies the rule syntax of a filter source.
type SourceType string

const (
	// SourceAdblock is the adblock-style rule syntax (default).
	SourceAdblock SourceType = "adblock"

	// SourceHosts is the /etc/hosts style syntax.
	SourceHosts SourceType = "hosts"
)

// FilterSource describes a single input list within a configuration.
type FilterSource struct {
	// Name is a human-readable label for the source.
	Name string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`

	// Source is the location of the list: a URL or a filesystem path.
	Source string `json:"source" yaml:"source" toml:"source"`

	// Type selects the rule syntax. Empty means adblock.
	Type SourceType `json:"type,omitempty" yaml:"type,omitempty" toml:"type,omitempty"`

	// Transformations applied to this source only.
	Transformations []string `json:"transformations,omitempty" yaml:"transformations,omitempty" toml:"transformations,omitempty"`

	// Inclusions keeps only rules matching these patterns.
	Inclusions []string `json:"inclusions,omitempty" yaml:"inclusions,omitempty" toml:"inclusions,omitempty"`

	// Exclusions drops rules matching these patterns.
	Exclusions []string `json:"exclusions,omitempty" yaml:"exclusions,omitempty" toml:"exclusions,omitempty"`
}

// CompilerConfig is the top-level configuration for a compilation job.
// The field set mirrors the external compiler's configuration schema.
type CompilerConfig struct {
	Name            string         `json:"name" yaml:"name" toml:"name"`
	Description     string         `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Homepage        string         `json:"homepage,omitempty" yaml:"homepage,omitempty" toml:"homepage,omitempty"`
	License         string         `json:"license,omitempty" yaml:"license,omitempty" toml:"license,omitempty"`
	Version         string         `json:"version,omitempty" yaml:"version,omitempty" toml:"version,omitempty"`
	Sources         []FilterSource `json:"sources" yaml:"sources" toml:"sources"`
	Transformations []string       `json:"transformations,omitempty" yaml:"transformations,omitempty" toml:"transformations,omitempty"`
	Inclusions      []string       `json:"inclusions,omitempty" yaml:"inclusions,omitempty" toml:"inclusions,omitempty"`
	Exclusions      []string       `json:"exclusions,omitempty" yaml:"exclusions,omitempty" toml:"exclusions,omitempty"`

	// Provenance of the loaded configuration. Not serialized: the external
	// compiler must never see these fields.
	sourceFormat Format
	sourcePath   string
}

// SourceFormat reports the format the configuration was loaded from.
// Returns FormatUnknown for configurations built in memory.
func (c *CompilerConfig) SourceFormat() Format { return c.sourceFormat }

// SourcePath reports the file the configuration was loaded from, if any.
func (c *CompilerConfig) SourcePath() string { return c.sourcePath }

// ToJSON renders the configuration as indented canonical JSON,
// the only format accepted by the external compiler.
func (c *CompilerConfig) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling configuration: %w", err)
	}
	return data, nil
}

// Validate performs structural checks on the configuration.
func (c *CompilerConfig) Validate() error {
	if len(c.Sources) == 0 {
		return &ConfigError{
			Code:    ErrCodeInvalidConfig,
			Path:    c.sourcePath,
			Message: "configuration has no sources",
		}
	}
	for i, src := range c.Sources {
		if src.Source == "" {
			return &ConfigError{
				Code:    ErrCodeInvalidConfig,
				Path:    c.sourcePath,
				Message: fmt.Sprintf("source %d has no location", i),
			}
		}
	}
	return nil
}
