package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"thermowatch/internal/model"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS thresholds (
		id         BIGSERIAL PRIMARY KEY,
		value      DOUBLE PRECISION NOT NULL,
		note       TEXT,
		created_by TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS thresholds_created_idx ON thresholds (created_at DESC, id DESC)`,
	// threshold_value je kopie hodnoty, ne FK: mazání měření nemůže nic osiřet
	// a pozdější změna limitu starý snímek nepřepíše.
	`CREATE TABLE IF NOT EXISTS readings (
		id              BIGSERIAL PRIMARY KEY,
		value           DOUBLE PRECISION NOT NULL,
		threshold_value DOUBLE PRECISION,
		recorded_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS readings_recorded_idx ON readings (recorded_at DESC, id DESC)`,
}

// Postgres je Store nad pgxpool (Postgres / TimescaleDB).
// pgxpool spravuje sadu spojení a je thread-safe.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres vytvoří pool a ověří spojení pingem.
func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("chyba konfigurace DB: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("DB není dostupná: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return model.StorageErr("migrate", err)
		}
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) InsertThreshold(ctx context.Context, t NewThreshold) (model.Threshold, error) {
	out := model.Threshold{
		Value:     t.Value,
		Note:      t.Note,
		CreatedBy: t.CreatedBy,
		CreatedAt: normalizeTime(t.CreatedAt),
	}
	query := `INSERT INTO thresholds (value, note, created_by, created_at) VALUES ($1, $2, $3, $4) RETURNING id`
	if err := p.pool.QueryRow(ctx, query, out.Value, out.Note, out.CreatedBy, out.CreatedAt).Scan(&out.ID); err != nil {
		return model.Threshold{}, model.StorageErr("insert threshold", err)
	}
	return out, nil
}

func (p *Postgres) ListThresholds(ctx context.Context) ([]model.Threshold, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, value, note, created_by, created_at
		FROM thresholds
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, model.StorageErr("list thresholds", err)
	}
	defer rows.Close()

	out := make([]model.Threshold, 0)
	for rows.Next() {
		var t model.Threshold
		if err := rows.Scan(&t.ID, &t.Value, &t.Note, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, model.StorageErr("scan threshold", err)
		}
		t.CreatedAt = t.CreatedAt.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, model.StorageErr("list thresholds", err)
	}
	return out, nil
}

func (p *Postgres) CurrentThreshold(ctx context.Context) (*model.Threshold, error) {
	var t model.Threshold
	err := p.pool.QueryRow(ctx, `
		SELECT id, value, note, created_by, created_at
		FROM thresholds
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`).Scan(&t.ID, &t.Value, &t.Note, &t.CreatedBy, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, model.StorageErr("current threshold", err)
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

// InsertReading běží v transakci (READ COMMITTED): SELECT vidí jen limity
// commitnuté před jeho startem, rozepsaný insert limitu tedy nikdy.
func (p *Postgres) InsertReading(ctx context.Context, value float64, at time.Time) (model.Reading, error) {
	r := model.Reading{Value: value, RecordedAt: normalizeTime(at)}

	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var limit float64
		err := tx.QueryRow(ctx, `SELECT value FROM thresholds ORDER BY created_at DESC, id DESC LIMIT 1`).Scan(&limit)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			r.ThresholdValue = nil
		case err != nil:
			return err
		default:
			r.ThresholdValue = &limit
		}

		return tx.QueryRow(ctx,
			`INSERT INTO readings (value, threshold_value, recorded_at) VALUES ($1, $2, $3) RETURNING id`,
			r.Value, r.ThresholdValue, r.RecordedAt,
		).Scan(&r.ID)
	})
	if err != nil {
		return model.Reading{}, model.StorageErr("insert reading", err)
	}
	return r, nil
}

func (p *Postgres) ListReadings(ctx context.Context, q model.PageQuery) (model.ReadingPage, error) {
	q = q.Normalize()
	page := model.ReadingPage{Page: q.Page, PageSize: q.PageSize, AsOf: q.AsOf, Items: make([]model.Reading, 0)}

	// Bez kotvy ukotvíme stránkování k nejvyššímu ID v okamžiku dotazu.
	// BIGSERIAL přiděluje ID před commitem, takže souběžná transakce s nižším
	// ID může commitnout až po vzniku kotvy a objeví se pod ní na pozdější
	// stránce. Stejně jako totalCount je kotva jen best-effort.
	if page.AsOf == 0 {
		if err := p.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM readings`).Scan(&page.AsOf); err != nil {
			return model.ReadingPage{}, model.StorageErr("readings anchor", err)
		}
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, value, threshold_value, recorded_at
		FROM readings
		WHERE id <= $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, page.AsOf, q.PageSize, q.Offset())
	if err != nil {
		return model.ReadingPage{}, model.StorageErr("list readings", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r model.Reading
		if err := rows.Scan(&r.ID, &r.Value, &r.ThresholdValue, &r.RecordedAt); err != nil {
			return model.ReadingPage{}, model.StorageErr("scan reading", err)
		}
		r.RecordedAt = r.RecordedAt.UTC()
		page.Items = append(page.Items, r)
	}
	if err := rows.Err(); err != nil {
		return model.ReadingPage{}, model.StorageErr("list readings", err)
	}

	// Samostatný dotaz: počet je konzistentní s Items jen best-effort.
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM readings WHERE id <= $1`, page.AsOf).Scan(&page.TotalCount); err != nil {
		return model.ReadingPage{}, model.StorageErr("count readings", err)
	}
	return page, nil
}

func (p *Postgres) LatestReading(ctx context.Context) (*model.Reading, error) {
	var r model.Reading
	err := p.pool.QueryRow(ctx, `
		SELECT id, value, threshold_value, recorded_at
		FROM readings
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1
	`).Scan(&r.ID, &r.Value, &r.ThresholdValue, &r.RecordedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, model.StorageErr("latest reading", err)
	}
	r.RecordedAt = r.RecordedAt.UTC()
	return &r, nil
}

// ClearReadings maže natvrdo. Měření commitnuté až po startu DELETE zůstane.
func (p *Postgres) ClearReadings(ctx context.Context) (model.ClearResult, error) {
	var res model.ClearResult
	err := p.pool.QueryRow(ctx, `
		WITH deleted AS (DELETE FROM readings RETURNING id)
		SELECT count(*), COALESCE(MAX(id), 0) FROM deleted
	`).Scan(&res.Deleted, &res.ThroughID)
	if err != nil {
		return model.ClearResult{}, model.StorageErr("clear readings", err)
	}
	return res, nil
}
