package model

import (
	"context"
	"errors"
	"fmt"
)

// Taxonomie chyb sdílená server službami.
// Konkrétní chyby se obalují přes fmt.Errorf("...: %w", ...) a na hranici
// (HTTP) se rozlišují pomocí errors.Is.
var (
	// ErrInvalidValue: vstup není konečné číslo. Nikdy nedojde až do DB.
	ErrInvalidValue = errors.New("invalid value")

	// ErrUnauthorized: volající nemá oprávnění měnit limity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrStorage: selhala perzistentní vrstva.
	ErrStorage = errors.New("storage error")

	// ErrQueryTimeout: dotaz nestihl časový limit, volající může zkusit znovu.
	ErrQueryTimeout = errors.New("query timeout")
)

// StorageErr obalí chybu úložiště. Vypršený context se navíc označí jako
// ErrQueryTimeout, aby ho API mohlo vrátit jako opakovatelnou chybu.
func StorageErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: %s: %w", ErrQueryTimeout, ErrStorage, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// InvalidValue vytvoří validační chybu s popisem.
func InvalidValue(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidValue, fmt.Sprintf(format, args...))
}
