// Package config loads YAML configuration into a Store with typed, default-
// carrying getters. The Store is read-only after Load; components receive
// values through their functional options at wiring time rather than reading
// configuration themselves.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store is an immutable snapshot of one YAML document. Keys address nested
// mappings with dots: "session.flush_interval".
type Store struct {
	values map[string]any
}

// Load reads and parses a YAML file.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	return Parse(data)
}

// Parse builds a Store from YAML bytes. Empty input yields an empty Store
// whose getters all return their defaults.
func Parse(data []byte) (*Store, error) {
	values := make(map[string]any)
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &Store{values: values}, nil
}

// Has reports whether the key resolves to a value.
func (s *Store) Has(key string) bool {
	_, ok := s.lookup(key)
	return ok
}

// GetString returns the string at key, or def when absent. Scalar numbers
// and booleans are rendered rather than rejected.
func (s *Store) GetString(key, def string) string {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}

	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return def
	}
}

// GetInt returns the integer at key, or def when absent or non-numeric.
func (s *Store) GetInt(key string, def int) int {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}

	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n
		}
	}

	return def
}

// GetFloat returns the float at key, or def when absent or non-numeric.
func (s *Store) GetFloat(key string, def float64) float64 {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}

	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
	}

	return def
}

// GetBool returns the boolean at key, or def when absent or non-boolean.
func (s *Store) GetBool(key string, def bool) bool {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}

	switch t := v.(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(t); err == nil {
			return b
		}
	}

	return def
}

// GetDuration returns the duration at key, accepting Go duration strings
// ("500ms", "2s") or a bare number of seconds. Absent or unparseable values
// return def.
func (s *Store) GetDuration(key string, def time.Duration) time.Duration {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}

	switch t := v.(type) {
	case string:
		if d, err := time.ParseDuration(t); err == nil {
			return d
		}
	case int:
		return time.Duration(t) * time.Second
	case float64:
		return time.Duration(t * float64(time.Second))
	}

	return def
}

// GetStringSlice returns the string list at key, or def when absent or not
// a sequence of scalars.
func (s *Store) GetStringSlice(key string, def []string) []string {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}

	raw, ok := v.([]any)
	if !ok {
		return def
	}

	out := make([]string, 0, len(raw))
	for _, item := range raw {
		str, ok := item.(string)
		if !ok {
			return def
		}
		out = append(out, str)
	}

	return out
}

// lookup walks dot-separated mapping keys.
func (s *Store) lookup(key string) (any, bool) {
	parts := strings.Split(key, ".")

	var cur any = s.values
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return cur, true
}
