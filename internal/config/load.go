package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

// LoadYAML reads path and unmarshals it into out using goccy/go-yaml,
// matching the teacher's gateway.loadGatewaySetting convention.
func LoadYAML(path string, out interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(b, out); err != nil {
		return fmt.Errorf("failed to unmarshal config file %s: %w", path, err)
	}

	return nil
}

// ApplyEnvOverrides overwrites fields in settings (a map decoded from YAML,
// or a secondary pass over raw values) using FEDERATION_ROUTER_-prefixed
// environment variables, one per dotted path key, e.g.
// FEDERATION_ROUTER_PORT=9090 overrides settings["port"].
//
// This mirrors the common 12-factor pattern of letting environment
// variables win over file-based config for container deployments, without
// requiring a third-party env-binding library the corpus does not use.
func ApplyEnvOverrides(prefix string, settings map[string]interface{}) {
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key, value := parts[0], parts[1]
		if !strings.HasPrefix(key, prefix) {
			continue
		}

		settingKey := strings.ToLower(strings.TrimPrefix(key, prefix))
		settings[settingKey] = coerceEnvValue(value)
	}
}

func coerceEnvValue(value string) interface{} {
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	return value
}
