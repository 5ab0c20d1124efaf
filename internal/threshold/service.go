package threshold

import (
	"context"
	"log/slog"
	"time"

	"thermowatch/internal/model"
	"thermowatch/internal/storage"
)

// Repository je část storage.Store, kterou služba potřebuje.
type Repository interface {
	InsertThreshold(ctx context.Context, t storage.NewThreshold) (model.Threshold, error)
	ListThresholds(ctx context.Context) ([]model.Threshold, error)
	CurrentThreshold(ctx context.Context) (*model.Threshold, error)
}

// Recorder dostává informaci o každém uloženém limitu (metriky).
type Recorder interface {
	ThresholdAppended(value float64)
}

// Service je autoritativní append-only seznam limitů.
// "Aktuální" limit se nikdy neukládá zvlášť, vždy se dopočítá dotazem.
type Service struct {
	repo   Repository
	rec    Recorder
	now    func() time.Time
	logger *slog.Logger
}

func NewService(repo Repository, rec Recorder, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
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

// Append přidá nový limit. Nejdřív oprávnění, pak validace, až potom DB:
// odmítnutý požadavek nemá žádný vedlejší efekt.
func (s *Service) Append(ctx context.Context, value float64, note *string, actor model.Actor) (model.Threshold, error) {
	if !actor.CanMutateThresholds {
		return model.Threshold{}, model.ErrUnauthorized
	}
	if !model.IsFinite(value) {
		return model.Threshold{}, model.InvalidValue("threshold %v is not a finite number", value)
	}

	t, err := s.repo.InsertThreshold(ctx, storage.NewThreshold{
		Value:     value,
		Note:      note,
		CreatedBy: actor.ID,
		CreatedAt: s.now(),
	})
	if err != nil {
		return model.Threshold{}, err
	}

	if s.rec != nil {
		s.rec.ThresholdAppended(t.Value)
	}
	s.logger.Info("Nový limit uložen", "id", t.ID, "value", t.Value, "created_by", t.CreatedBy)
	return t, nil
}

// List vrací limity od nejnovějšího. Veřejné, bez autentizace.
func (s *Service) List(ctx context.Context) ([]model.Threshold, error) {
	return s.repo.ListThresholds(ctx)
}

// Current vrací aktuální limit nebo nil, pokud ještě žádný neexistuje.
func (s *Service) Current(ctx context.Context) (*model.Threshold, error) {
	return s.repo.CurrentThreshold(ctx)
}
