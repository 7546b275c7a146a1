package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Overlay is the optional YAML file read before the environment. Keys are
// the environment variable names; values are strings, numbers or booleans.
type Overlay map[string]any

// LoadOverlay reads a YAML overlay file. An os.ErrNotExist-wrapped error is
// returned when the file is absent.
func LoadOverlay(path string) (Overlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config overlay: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config overlay: %w", err)
	}
	out := make(Overlay, len(raw))
	for k, v := range raw {
		key := strings.ToUpper(strings.TrimSpace(k))
		if key == "" {
			return nil, fmt.Errorf("config overlay: empty key")
		}
		switch v.(type) {
		case string, int, bool, float64, []any, nil:
		default:
			return nil, fmt.Errorf("config overlay: %s has unsupported value type %T", key, v)
		}
		out[key] = v
	}
	return out, nil
}

// String renders the overlay value for key as an environment string. The
// second result is false when the key is absent or null.
func (o Overlay) String(key string) (string, bool) {
	v, ok := o[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case int:
		return strconv.Itoa(t), true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ","), true
	}
	return "", false
}

// apply exports overlay values into the process environment for keys the
// environment does not already set.
func (o Overlay) apply() error {
	for key := range o {
		if os.Getenv(key) != "" {
			continue
		}
		val, ok := o.String(key)
		if !ok {
			continue
		}
		if err := os.Setenv(key, val); err != nil {
			return fmt.Errorf("config overlay: set %s: %w", key, err)
		}
	}
	return nil
}
