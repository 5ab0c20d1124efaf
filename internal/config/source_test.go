package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSourcePrecedence(t *testing.T) {
	path := writeFile(t, `
MQTT_BROKER: tcp://file:1883
HISTORY_QUERY_TIMEOUT: 7s
MAX_PAGE: 50
REDIS_ENABLED: true
MUTATE_ROLES: [authenticated, admin]
EMPTY:
`)
	s, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "tcp://file:1883", s.String("MQTT_BROKER", "tcp://default:1883"))
	assert.Equal(t, "fallback", s.String("MISSING", "fallback"))
	assert.Equal(t, "fallback", s.String("EMPTY", "fallback"))
	assert.Equal(t, 7*time.Second, s.Duration("HISTORY_QUERY_TIMEOUT", time.Second))
	assert.Equal(t, 50, s.Int("MAX_PAGE", 10))
	assert.True(t, s.Bool("REDIS_ENABLED", false))
	assert.Equal(t, []string{"authenticated", "admin"}, s.List("MUTATE_ROLES", nil))

	t.Setenv("MQTT_BROKER", "tcp://env:1883")
	assert.Equal(t, "tcp://env:1883", s.String("MQTT_BROKER", "tcp://default:1883"))
}

func TestSourceInvalidValuesFallBack(t *testing.T) {
	t.Setenv("HISTORY_QUERY_TIMEOUT", "soon")
	t.Setenv("MAX_PAGE", "many")
	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Second, s.Duration("HISTORY_QUERY_TIMEOUT", time.Second))
	assert.Equal(t, 10, s.Int("MAX_PAGE", 10))
	assert.Equal(t, []string{"x"}, s.List("NOT_SET_LIST", []string{"x"}))
}

func TestLoadFromConfigFileEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeFile(t, "HTTP_PORT: \"9090\"\n"))
	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", s.String("HTTP_PORT", "8080"))

	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = Load()
	assert.Error(t, err)
}
