package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"thermowatch/internal/model"
)

// Store je dotazovací kontrakt relačního úložiště.
// Služby (threshold, ingest, history) si z něj berou jen metody, které
// potřebují; implementace jsou Postgres (produkce) a SQLite (vestavěné
// nasazení a testy).
type Store interface {
	// InsertThreshold přidá nový řádek do append-only logu limitů.
	InsertThreshold(ctx context.Context, t NewThreshold) (model.Threshold, error)
	// ListThresholds vrací limity od nejnovějšího, řazeno (created_at, id) DESC.
	ListThresholds(ctx context.Context) ([]model.Threshold, error)
	// CurrentThreshold vrací hlavu ListThresholds, nebo nil.
	CurrentThreshold(ctx context.Context) (*model.Threshold, error)

	// InsertReading v jedné transakci přečte aktuální limit a zapíše
	// měření s jeho snímkem.
	InsertReading(ctx context.Context, value float64, at time.Time) (model.Reading, error)
	ListReadings(ctx context.Context, q model.PageQuery) (model.ReadingPage, error)
	LatestReading(ctx context.Context) (*model.Reading, error)
	// ClearReadings nevratně smaže všechna měření a vrátí jejich počet
	// a nejvyšší smazané ID.
	ClearReadings(ctx context.Context) (model.ClearResult, error)

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close()
}

// NewThreshold jsou vstupní data pro InsertThreshold.
type NewThreshold struct {
	Value     float64
	Note      *string
	CreatedBy string
	CreatedAt time.Time
}

// Open vybere implementaci podle URL:
//
//	postgres://... nebo postgresql://...  -> Postgres (pgxpool)
//	sqlite://<cesta> nebo sqlite::memory: -> SQLite (modernc)
func Open(ctx context.Context, url string) (Store, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return NewPostgres(ctx, url)
	case strings.HasPrefix(url, "sqlite:"):
		path := strings.TrimPrefix(strings.TrimPrefix(url, "sqlite:"), "//")
		return NewSQLite(ctx, path)
	}
	return nil, fmt.Errorf("unsupported database URL scheme: %q", url)
}

// Časy ukládáme s mikrosekundovou přesností (limit TIMESTAMPTZ), aby vrácená
// hodnota odpovídala tomu, co se přečte z DB.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
