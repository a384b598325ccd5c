package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format identifies the on-disk serialization of a configuration file.
type Format int

const (
	FormatUnknown Format = iota
	FormatJSON
	FormatYAML
	FormatTOML
)

// String returns the canonical lowercase name of the format.
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	case FormatTOML:
		return "toml"
	default:
		return "unknown"
	}
}

// DetectFormat infers the configuration format from the file extension.
// Recognized extensions: .json, .yaml, .yml, .toml (case-insensitive).
func DetectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return FormatUnknown, &ConfigError{
			Code:    ErrCodeUnknownExtension,
			Path:    path,
			Message: fmt.Sprintf("unsupported configuration extension %q (expected .json, .yaml, .yml, or .toml)", ext),
		}
	}
}

// Read loads a configuration file, detecting the format from its extension.
func Read(path string) (*CompilerConfig, error) {
	return ReadAs(path, FormatUnknown)
}

// ReadAs loads a configuration file in the given format.
// FormatUnknown triggers extension-based detection.
func ReadAs(path string, format Format) (*CompilerConfig, error) {
	if format == FormatUnknown {
		detected, err := DetectFormat(path)
		if err != nil {
			return nil, err
		}
		format = detected
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ConfigError{
				Code:    ErrCodeConfigNotFound,
				Path:    path,
				Message: "configuration file not found",
				Err:     err,
			}
		}
		return nil, fmt.Errorf("reading configuration %s: %w", path, err)
	}

	cfg := &CompilerConfig{}
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, cfg)
	case FormatYAML:
		err = yaml.Unmarshal(data, cfg)
	case FormatTOML:
		err = toml.Unmarshal(data, cfg)
	default:
		return nil, &ConfigError{
			Code:    ErrCodeUnknownExtension,
			Path:    path,
			Message: fmt.Sprintf("no decoder for format %s", format),
		}
	}
	if err != nil {
		return nil, &ConfigError{
			Code:    ErrCodeInvalidConfig,
			Path:    path,
			Message: fmt.Sprintf("parsing %s configuration", format),
			Err:     err,
		}
	}

	cfg.sourceFormat = format
	cfg.sourcePath = path
	return cfg, nil
}
