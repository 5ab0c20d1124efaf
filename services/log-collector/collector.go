package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Název služby z topicu jde přímo do cesty souboru.
var serviceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

var errBadTopic = errors.New("unexpected log topic")

// Collector zapisuje řádky logů do souboru podle služby.
// Používá pattern Open-Write-Close pro každý zápis, takže nevadí rotace
// logů zvenku (logrotate).
type Collector struct {
	dir string
	mu  sync.Mutex
}

func NewCollector(dir string) (*Collector, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", dir, err)
	}
	return &Collector{dir: dir}, nil
}

// ServiceFromTopic vrací název služby z "logs/<služba>[/...]".
func ServiceFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 || parts[0] != "logs" || !serviceNamePattern.MatchString(parts[1]) {
		return "", fmt.Errorf("%w: %q", errBadTopic, topic)
	}
	return parts[1], nil
}

// Append připíše jeden řádek na konec <dir>/<služba>.log.
func (c *Collector) Append(topic string, payload []byte) (string, error) {
	service, err := ServiceFromTopic(topic)
	if err != nil {
		return "", err
	}

	// Paho volá handler z více goroutin, zápisy do stejného souboru serializujeme.
	c.mu.Lock()
	defer c.mu.Unlock()

	filename := filepath.Join(c.dir, service+".log")
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return service, err
	}
	defer f.Close()

	// slog řádky končí \n, MQTT payload od jiných klientů nemusí.
	line := bytes.TrimRight(payload, "\n")
	buf := make([]byte, 0, len(line)+1)
	buf = append(append(buf, line...), '\n')
	if _, err := f.Write(buf); err != nil {
		return service, err
	}
	return service, nil
}
