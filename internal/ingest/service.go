package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"thermowatch/internal/model"
)

// Repository je část storage.Store, kterou ingest potřebuje.
type Repository interface {
	InsertReading(ctx context.Context, value float64, at time.Time) (model.Reading, error)
	ClearReadings(ctx context.Context) (model.ClearResult, error)
}

// LatestCache je "hot" úložiště poslední hodnoty (Valkey). Volitelné.
// SetLatest nesmí přepsat novější hodnotu ani vrátit měření s ID <= hranici
// posledního Clear; cache sdílí víc procesů.
type LatestCache interface {
	SetLatest(ctx context.Context, reading model.Reading) (bool, error)
	Clear(ctx context.Context, throughID int64) error
}

// Recorder dostává informace o zapsaných a smazaných měřeních (metriky).
type Recorder interface {
	ReadingRecorded(reading model.Reading)
	ReadingsCleared(n int64)
}

// Service přijímá nová měření, přiřadí jim snímek aktuálního limitu a uloží je.
// Žádné alerty neposílá; na nové řádky reagují jiné služby.
type Service struct {
	repo   Repository
	cache  LatestCache
	rec    Recorder
	now    func() time.Time
	logger *slog.Logger

	// clearMu serializuje Clear proti rozpracovaným Record v tomto procesu.
	// Mezi procesy to hlídá hranice smazání v LatestCache.
	clearMu sync.RWMutex
}

// NewService vytvoří službu. cache může být nil.
func NewService(repo Repository, cache LatestCache, rec Recorder, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		rec:    rec,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// WithClock nahradí hodiny (testy).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Record uloží jedno měření. Chyba úložiště se vrací volajícímu,
// server ji sám neopakuje.
func (s *Service) Record(ctx context.Context, value float64) (model.Reading, error) {
	if !model.IsFinite(value) {
		return model.Reading{}, model.InvalidValue("reading %v is not a finite number", value)
	}

	s.clearMu.RLock()
	defer s.clearMu.RUnlock()

	reading, err := s.repo.InsertReading(ctx, value, s.now())
	if err != nil {
		return model.Reading{}, err
	}

	// Cache je best-effort: data už jsou v DB, chybu jen zalogujeme.
	if s.cache != nil {
		stored, err := s.cache.SetLatest(ctx, reading)
		switch {
		case err != nil:
			s.logger.Warn("Nepodařilo se aktualizovat cache", "id", reading.ID, "error", err)
		case !stored:
			s.logger.Debug("Cache drží novější nebo smazané měření, nepřepisuji", "id", reading.ID)
		}
	}
	if s.rec != nil {
		s.rec.ReadingRecorded(reading)
	}

	s.logger.Debug("Měření uloženo", "id", reading.ID, "value", reading.Value, "exceeded", reading.Exceeded())
	return reading, nil
}

// Clear nevratně smaže celou historii měření. Prázdná historie vrací 0.
// Limity zůstávají beze změny.
func (s *Service) Clear(ctx context.Context) (int64, error) {
	s.clearMu.Lock()
	defer s.clearMu.Unlock()

	res, err := s.repo.ClearReadings(ctx)
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		if err := s.cache.Clear(ctx, res.ThroughID); err != nil {
			s.logger.Error("Nepodařilo se smazat cache, může vracet smazané měření", "error", err)
		}
	}
	if s.rec != nil {
		s.rec.ReadingsCleared(res.Deleted)
	}

	s.logger.Info("Historie měření smazána", "deleted", res.Deleted, "through_id", res.ThroughID)
	return res.Deleted, nil
}
