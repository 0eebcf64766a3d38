package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/Aryanshanu/unifiedaai-sub002/pkg/scoring"
)

// engineVersionConstraint gates profile schema_version: this build
// understands major version 1.
var engineVersionConstraint = mustConstraint("^1")

func mustConstraint(c string) *semver.Constraints {
	parsed, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return parsed
}

// LoadEngineConfig loads an engine scoring profile from
// engine_<type>.yaml in configDir. The profile is schema-checked,
// version-gated, and structurally validated; an invalid profile never
// yields a config.
func LoadEngineConfig(configDir, engineType string) (scoring.EngineConfig, error) {
	engineType = strings.ToLower(engineType)
	path := filepath.Join(configDir, fmt.Sprintf("engine_%s.yaml", engineType))

	data, err := os.ReadFile(path)
	if err != nil {
		return scoring.EngineConfig{}, fmt.Errorf("load engine config %q: %w", engineType, err)
	}
	return parseEngineConfig(data, engineType, path)
}

// LoadEngineConfigs returns the built-in engine configs overlaid with
// every engine_*.yaml profile found in configDir. An empty configDir
// returns the built-ins alone.
func LoadEngineConfigs(configDir string) (map[string]scoring.EngineConfig, error) {
	configs := scoring.DefaultConfigs()
	if configDir == "" {
		return configs, nil
	}

	matches, err := filepath.Glob(filepath.Join(configDir, "engine_*.yaml"))
	if err != nil {
		return nil, err
	}
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		// Extract type from filename: engine_toxicity.yaml -> toxicity
		base := filepath.Base(path)
		engineType := strings.TrimSuffix(strings.TrimPrefix(base, "engine_"), ".yaml")

		cfg, err := parseEngineConfig(data, engineType, path)
		if err != nil {
			return nil, err
		}
		configs[cfg.EngineType] = cfg
	}
	return configs, nil
}

func parseEngineConfig(data []byte, engineType, path string) (scoring.EngineConfig, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return scoring.EngineConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := validateEngineDoc(doc); err != nil {
		return scoring.EngineConfig{}, fmt.Errorf("%s: %w", path, err)
	}

	version, _ := doc["schema_version"].(string)
	parsed, err := semver.NewVersion(version)
	if err != nil {
		return scoring.EngineConfig{}, fmt.Errorf("%s: invalid schema_version %q: %w", path, version, err)
	}
	if !engineVersionConstraint.Check(parsed) {
		return scoring.EngineConfig{}, fmt.Errorf("%s: schema_version %s outside supported range %s", path, version, "^1")
	}

	var cfg scoring.EngineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return scoring.EngineConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.EngineType == "" {
		cfg.EngineType = engineType
	}
	if err := cfg.Validate(); err != nil {
		return scoring.EngineConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// validateEngineDoc checks the raw document against the embedded JSON
// Schema. YAML values are round-tripped through encoding/json first so
// the validator sees canonical JSON types.
func validateEngineDoc(doc map[string]any) error {
	schema, err := compiledEngineSchema()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode profile for validation: %w", err)
	}
	var jsonDoc any
	if err := json.Unmarshal(raw, &jsonDoc); err != nil {
		return fmt.Errorf("decode profile for validation: %w", err)
	}

	if err := schema.Validate(jsonDoc); err != nil {
		return fmt.Errorf("profile rejected by schema: %w", err)
	}
	return nil
}
