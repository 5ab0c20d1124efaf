package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Source čte nastavení podle 12-Factor App: ENV proměnná má vždy přednost,
// pak hodnota z volitelného YAML souboru (CONFIG_FILE), pak default v kódu.
type Source struct {
	file map[string]string
}

// Load načte YAML soubor z CONFIG_FILE, pokud je nastaven.
func Load() (*Source, error) {
	path, ok := os.LookupEnv("CONFIG_FILE")
	if !ok || path == "" {
		return &Source{file: map[string]string{}}, nil
	}
	return LoadFile(path)
}

// LoadFile načte plochý YAML soubor se stejnými klíči jako ENV, např.:
//
//	MQTT_BROKER: tcp://mosquitto:1883
//	HISTORY_QUERY_TIMEOUT: 5s
func LoadFile(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	file := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			continue
		case []any:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprint(p))
			}
			file[k] = strings.Join(parts, ",")
		default:
			file[k] = fmt.Sprint(val)
		}
	}
	return &Source{file: file}, nil
}

// String je obdoba getEnv(key, fallback).
func (s *Source) String(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if value, exists := s.file[key]; exists {
		return value
	}
	return fallback
}

// Duration parsuje Go duration ("5s", "1m"). Neplatná hodnota = fallback.
func (s *Source) Duration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s.String(key, ""))
	if err != nil {
		return fallback
	}
	return d
}

func (s *Source) Int(key string, fallback int) int {
	n, err := strconv.Atoi(s.String(key, ""))
	if err != nil {
		return fallback
	}
	return n
}

func (s *Source) Bool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(s.String(key, ""))
	if err != nil {
		return fallback
	}
	return b
}

// List rozdělí hodnotu podle čárek ("a, b,c" -> [a b c]).
func (s *Source) List(key string, fallback []string) []string {
	raw := s.String(key, "")
	if raw == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
