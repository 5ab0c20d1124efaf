package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New vytvoří JSON logger (standard pro kontejnery) a nastaví ho jako default.
// extra writery (např. MqttLogWriter) dostanou každý řádek navíc ke stdout.
func New(service, level string, extra ...io.Writer) *slog.Logger {
	writers := append([]io.Writer{os.Stdout}, extra...)
	return NewWithWriter(service, level, io.MultiWriter(writers...))
}

// NewWithWriter je varianta pro testy a vlastní výstupy.
func NewWithWriter(service, level string, w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel převede LOG_LEVEL na slog.Level, neznámá hodnota = info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
