package handler

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yakimka/feed-watchdog/errors"
)

// EnvPrefix is prepended to ENV: references when resolving them from the
// environment
const EnvPrefix = "FW_HNDR_"

// InstanceSpec is the static configuration of one handler instance
type InstanceSpec struct {
	Kwargs map[string]any `yaml:"kwargs"`
}

// InstanceConfig maps kind -> implementation name -> instance name ->
// spec. One implementation may expand to several named instances, each
// with its own kwargs.
type InstanceConfig map[string]map[string]map[string]InstanceSpec

func (c InstanceConfig) instancesFor(kind Kind, name string) map[string]InstanceSpec {
	return c[string(kind)][name]
}

// LoadInstanceConfig reads a YAML instance config file. A missing path
// yields an empty config: running without instance config is valid, every
// handler then resolves under its registered name.
func LoadInstanceConfig(path string) (InstanceConfig, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "InstanceConfig", "LoadInstanceConfig", "config file read")
	}
	return ParseInstanceConfig(data)
}

// ParseInstanceConfig parses YAML instance config. String values of the
// form "ENV:NAME" are replaced with the FW_HNDR_NAME environment variable
// so secrets stay out of the file; an unset variable is a configuration
// error, not a silent empty string.
func ParseInstanceConfig(data []byte) (InstanceConfig, error) {
	var config InstanceConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.WrapInvalid(err, "InstanceConfig", "ParseInstanceConfig", "yaml decode")
	}

	for kind, byName := range config {
		for name, instances := range byName {
			for instance, spec := range instances {
				resolved, err := resolveEnvValues(spec.Kwargs)
				if err != nil {
					msg := fmt.Errorf("%s/%s/%s: %w", kind, name, instance, err)
					return nil, errors.WrapInvalid(msg, "InstanceConfig", "ParseInstanceConfig", "env reference resolution")
				}
				spec.Kwargs = resolved
				instances[instance] = spec
			}
		}
	}
	return config, nil
}

// resolveEnvValues walks kwargs and resolves ENV: references in string
// values, including strings nested in maps and lists
func resolveEnvValues(kwargs map[string]any) (map[string]any, error) {
	if kwargs == nil {
		return nil, nil
	}
	out := make(map[string]any, len(kwargs))
	for key, value := range kwargs {
		resolved, err := resolveEnvValue(value)
		if err != nil {
			return nil, fmt.Errorf("kwarg %q: %w", key, err)
		}
		out[key] = resolved
	}
	return out, nil
}

func resolveEnvValue(value any) (any, error) {
	switch v := value.(type) {
	case string:
		name, isRef := strings.CutPrefix(v, "ENV:")
		if !isRef {
			return v, nil
		}
		resolved, exists := os.LookupEnv(EnvPrefix + name)
		if !exists {
			return nil, fmt.Errorf("environment variable %s%s is not set", EnvPrefix, name)
		}
		return strings.TrimSpace(resolved), nil
	case map[string]any:
		return resolveEnvValues(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			resolved, err := resolveEnvValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}
