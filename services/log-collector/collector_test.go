package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceFromTopic(t *testing.T) {
	cases := []struct {
		topic   string
		service string
		ok      bool
	}{
		{"logs/sensor-bridge", "sensor-bridge", true},
		{"logs/sensor-bridge/error", "sensor-bridge", true},
		{"logs", "", false},
		{"metrics/sensor-bridge", "", false},
		{"logs/..", "", false},
		{"logs/", "", false},
	}
	for _, tc := range cases {
		got, err := ServiceFromTopic(tc.topic)
		if !tc.ok {
			assert.ErrorIs(t, err, errBadTopic, tc.topic)
			continue
		}
		require.NoError(t, err, tc.topic)
		assert.Equal(t, tc.service, got)
	}
}

func TestCollectorAppendsLines(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	c, err := NewCollector(dir)
	require.NoError(t, err)

	_, err = c.Append("logs/sensor-bridge", []byte(`{"msg":"a"}`+"\n"))
	require.NoError(t, err)
	_, err = c.Append("logs/sensor-bridge", []byte(`{"msg":"b"}`))
	require.NoError(t, err)
	_, err = c.Append("logs/sensor-api", []byte(`{"msg":"c"}`))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "sensor-bridge.log"))
	require.NoError(t, err)
	assert.Equal(t, "{\"msg\":\"a\"}\n{\"msg\":\"b\"}\n", string(data))

	_, err = os.Stat(filepath.Join(dir, "sensor-api.log"))
	assert.NoError(t, err)
}

func TestCollectorRejectsTraversal(t *testing.T) {
	c, err := NewCollector(t.TempDir())
	require.NoError(t, err)

	_, err = c.Append("logs/../../etc/passwd", []byte("x"))
	assert.ErrorIs(t, err, errBadTopic)
}
