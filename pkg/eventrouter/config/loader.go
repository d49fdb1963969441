package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides read by LoadSettings.
const EnvPrefix = "EVENTROUTER_"

type unmarshalFunc func([]byte, any) error

var formats = map[string]unmarshalFunc{
	".yaml": yaml.Unmarshal,
	".yml":  yaml.Unmarshal,
	".json": json.Unmarshal,
}

func parse(kind string, unmarshal unmarshalFunc, data []byte) (Config, error) {
	doc := make(map[string]any)
	if err := unmarshal(data, &doc); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", kind, err)
	}
	return New(doc), nil
}

// FromYAML parses a YAML document.
func FromYAML(data []byte) (Config, error) {
	return parse("yaml", yaml.Unmarshal, data)
}

// FromJSON parses a JSON document.
func FromJSON(data []byte) (Config, error) {
	return parse("json", json.Unmarshal, data)
}

// FromFile parses the file at path as YAML (.yaml, .yml) or JSON (.json).
func FromFile(path string) (Config, error) {
	ext := strings.ToLower(filepath.Ext(path))
	unmarshal, ok := formats[ext]
	if !ok {
		return Config{}, fmt.Errorf("config %s: unsupported extension %q", path, ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return parse(strings.TrimPrefix(ext, "."), unmarshal, data)
}

// WithEnv returns a copy of c overlaid with environment entries
// ("KEY=value") that start with prefix. A double underscore separates
// sections, so EVENTROUTER_ROUTER__DEFAULT_MODE=async sets
// router.default_mode. Values are read as YAML scalars, so "20" is an int
// and "true" a bool.
func (c Config) WithEnv(prefix string, environ []string) Config {
	out := cloneMap(c.data)
	for _, kv := range environ {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		path := strings.Split(strings.ToLower(strings.TrimPrefix(name, prefix)), "__")
		if slices.Contains(path, "") {
			continue
		}

		var value any = raw
		var scalar any
		if err := yaml.Unmarshal([]byte(raw), &scalar); err == nil && scalar != nil {
			if _, nested := scalar.(map[string]any); !nested {
				value = scalar
			}
		}
		setPath(out, path, value)
	}
	return New(out)
}

// LoadSettings reads the settings file at path, applies EVENTROUTER_
// environment overrides and decodes the result over DefaultSettings.
func LoadSettings(path string) (Settings, error) {
	cfg, err := FromFile(path)
	if err != nil {
		return Settings{}, err
	}
	return Decode(cfg.WithEnv(EnvPrefix, os.Environ()))
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested := toStringMap(v); nested != nil {
			v = cloneMap(nested)
		}
		out[k] = v
	}
	return out
}

func setPath(m map[string]any, path []string, value any) {
	for _, key := range path[:len(path)-1] {
		next := toStringMap(m[key])
		if next == nil {
			next = make(map[string]any)
		}
		m[key] = next
		m = next
	}
	m[path[len(path)-1]] = value
}
