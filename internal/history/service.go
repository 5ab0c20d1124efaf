package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"thermowatch/internal/model"
)

// Repository je část storage.Store pro čtení historie.
type Repository interface {
	ListReadings(ctx context.Context, q model.PageQuery) (model.ReadingPage, error)
	LatestReading(ctx context.Context) (*model.Reading, error)
}

// LatestSource je rychlý zdroj poslední hodnoty (Valkey). Volitelný.
type LatestSource interface {
	Latest(ctx context.Context) (*model.Reading, error)
}

// DefaultQueryTimeout omezuje dobu jednoho dotazu na historii.
const DefaultQueryTimeout = 5 * time.Second

// Service čte uloženou historii měření, od nejnovějšího.
// Jen čtení, bez zámků; může běžet libovolně paralelně.
type Service struct {
	repo    Repository
	cache   LatestSource
	timeout time.Duration
	logger  *slog.Logger
}

// NewService vytvoří službu. cache může být nil, timeout <= 0 znamená default.
func NewService(repo Repository, cache LatestSource, timeout time.Duration, logger *slog.Logger) *Service {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &Service{repo: repo, cache: cache, timeout: timeout, logger: logger}
}

// List vrací jednu stránku. Stránka za koncem dat je prázdná (ne chyba)
// a má správný TotalCount. Vypršení limitu vrací model.ErrQueryTimeout.
func (s *Service) List(ctx context.Context, q model.PageQuery) (model.ReadingPage, error) {
	q = q.Normalize()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	page, err := s.repo.ListReadings(ctx, q)
	if err != nil {
		return model.ReadingPage{}, s.timeoutErr(ctx, err)
	}
	return page, nil
}

// Latest vrací poslední měření (nejdřív z cache, jinak z DB), nebo nil.
func (s *Service) Latest(ctx context.Context) (*model.Reading, error) {
	if s.cache != nil {
		r, err := s.cache.Latest(ctx)
		if err == nil && r != nil {
			return r, nil
		}
		if err != nil {
			s.logger.Warn("Cache nedostupná, čtu z DB", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	r, err := s.repo.LatestReading(ctx)
	if err != nil {
		return nil, s.timeoutErr(ctx, err)
	}
	return r, nil
}

// Některé drivery při zrušení dotazu vrací vlastní chybu místo ctx.Err().
func (s *Service) timeoutErr(ctx context.Context, err error) error {
	if errors.Is(err, model.ErrQueryTimeout) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: history query exceeded %s: %w", model.ErrQueryTimeout, s.timeout, err)
	}
	return err
}
