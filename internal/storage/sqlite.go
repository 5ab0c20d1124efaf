package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"thermowatch/internal/model"
)

// Časy ukládáme jako unix nanosekundy (INTEGER), řazení je pak číselné.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS thresholds (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		value      REAL NOT NULL,
		note       TEXT,
		created_by TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS thresholds_created_idx ON thresholds (created_at DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS readings (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		value           REAL NOT NULL,
		threshold_value REAL,
		recorded_at     INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS readings_recorded_idx ON readings (recorded_at DESC, id DESC)`,
}

// SQLite je Store nad vestavěnou databází (modernc.org/sqlite, bez CGO).
// Používá jediné spojení: všechny zápisy jsou tak serializované a transakce
// InsertReading nemůže vidět rozepsaný limit.
type SQLite struct {
	db *sql.DB
}

// NewSQLite otevře soubor (nebo ":memory:") a nastaví pragmy.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// Jedno spojení = jeden writer; ":memory:" DB navíc žije jen v něm.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return model.StorageErr("migrate", err)
		}
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() {
	s.db.Close()
}

func (s *SQLite) InsertThreshold(ctx context.Context, t NewThreshold) (model.Threshold, error) {
	out := model.Threshold{
		Value:     t.Value,
		Note:      t.Note,
		CreatedBy: t.CreatedBy,
		CreatedAt: normalizeTime(t.CreatedAt),
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO thresholds (value, note, created_by, created_at) VALUES (?, ?, ?, ?)`,
		out.Value, nullString(out.Note), out.CreatedBy, out.CreatedAt.UnixNano(),
	)
	if err != nil {
		return model.Threshold{}, model.StorageErr("insert threshold", err)
	}
	if out.ID, err = res.LastInsertId(); err != nil {
		return model.Threshold{}, model.StorageErr("insert threshold", err)
	}
	return out, nil
}

func (s *SQLite) ListThresholds(ctx context.Context) ([]model.Threshold, error) {
	rows, err := s.db.QueryContext(ctx, `
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
		t, err := scanThreshold(rows)
		if err != nil {
			return nil, model.StorageErr("scan threshold", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, model.StorageErr("list thresholds", err)
	}
	return out, nil
}

func (s *SQLite) CurrentThreshold(ctx context.Context) (*model.Threshold, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, value, note, created_by, created_at
		FROM thresholds
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`)
	t, err := scanThreshold(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, model.StorageErr("current threshold", err)
	}
	return &t, nil
}

func (s *SQLite) InsertReading(ctx context.Context, value float64, at time.Time) (model.Reading, error) {
	r := model.Reading{Value: value, RecordedAt: normalizeTime(at)}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Reading{}, model.StorageErr("insert reading", err)
	}
	defer tx.Rollback()

	var limit sql.NullFloat64
	err = tx.QueryRowContext(ctx, `SELECT value FROM thresholds ORDER BY created_at DESC, id DESC LIMIT 1`).Scan(&limit)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return model.Reading{}, model.StorageErr("insert reading", err)
	}
	if limit.Valid {
		v := limit.Float64
		r.ThresholdValue = &v
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO readings (value, threshold_value, recorded_at) VALUES (?, ?, ?)`,
		r.Value, limit, r.RecordedAt.UnixNano(),
	)
	if err != nil {
		return model.Reading{}, model.StorageErr("insert reading", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return model.Reading{}, model.StorageErr("insert reading", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Reading{}, model.StorageErr("insert reading", err)
	}
	return r, nil
}

func (s *SQLite) ListReadings(ctx context.Context, q model.PageQuery) (model.ReadingPage, error) {
	q = q.Normalize()
	page := model.ReadingPage{Page: q.Page, PageSize: q.PageSize, AsOf: q.AsOf, Items: make([]model.Reading, 0)}

	if page.AsOf == 0 {
		if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM readings`).Scan(&page.AsOf); err != nil {
			return model.ReadingPage{}, model.StorageErr("readings anchor", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, value, threshold_value, recorded_at
		FROM readings
		WHERE id <= ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, page.AsOf, q.PageSize, q.Offset())
	if err != nil {
		return model.ReadingPage{}, model.StorageErr("list readings", err)
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return model.ReadingPage{}, model.StorageErr("scan reading", err)
		}
		page.Items = append(page.Items, r)
	}
	if err := rows.Err(); err != nil {
		return model.ReadingPage{}, model.StorageErr("list readings", err)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM readings WHERE id <= ?`, page.AsOf).Scan(&page.TotalCount); err != nil {
		return model.ReadingPage{}, model.StorageErr("count readings", err)
	}
	return page, nil
}

func (s *SQLite) LatestReading(ctx context.Context) (*model.Reading, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, value, threshold_value, recorded_at
		FROM readings
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1
	`)
	r, err := scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, model.StorageErr("latest reading", err)
	}
	return &r, nil
}

// ClearReadings běží v transakci; na jediném spojení ji nic nepředběhne.
func (s *SQLite) ClearReadings(ctx context.Context) (model.ClearResult, error) {
	var out model.ClearResult
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return out, model.StorageErr("clear readings", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM readings`).Scan(&out.ThroughID); err != nil {
		return model.ClearResult{}, model.StorageErr("clear readings", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM readings`)
	if err != nil {
		return model.ClearResult{}, model.StorageErr("clear readings", err)
	}
	if out.Deleted, err = res.RowsAffected(); err != nil {
		return model.ClearResult{}, model.StorageErr("clear readings", err)
	}
	if err := tx.Commit(); err != nil {
		return model.ClearResult{}, model.StorageErr("clear readings", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanThreshold(row scanner) (model.Threshold, error) {
	var (
		t       model.Threshold
		note    sql.NullString
		created int64
	)
	if err := row.Scan(&t.ID, &t.Value, &note, &t.CreatedBy, &created); err != nil {
		return model.Threshold{}, err
	}
	if note.Valid {
		n := note.String
		t.Note = &n
	}
	t.CreatedAt = time.Unix(0, created).UTC()
	return t, nil
}

func scanReading(row scanner) (model.Reading, error) {
	var (
		r        model.Reading
		limit    sql.NullFloat64
		recorded int64
	)
	if err := row.Scan(&r.ID, &r.Value, &limit, &recorded); err != nil {
		return model.Reading{}, err
	}
	if limit.Valid {
		v := limit.Float64
		r.ThresholdValue = &v
	}
	r.RecordedAt = time.Unix(0, recorded).UTC()
	return r, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
