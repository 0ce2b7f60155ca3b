package nav

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"FundOrders/internal/domain/models"
	"FundOrders/internal/storage"

	"github.com/shopspring/decimal"
)

// ErrNavUnavailable covers every case in which no usable price exists:
// unknown scheme, no quote on or before the date, or a non-positive
// published value.
var ErrNavUnavailable = errors.New("nav unavailable")

type Cache interface {
	GetNav(ctx context.Context, schemeCode string) (models.NavQuote, error)
}

type History interface {
	GetNavAsOf(ctx context.Context, schemeCode string, date time.Time) (decimal.Decimal, error)
}

type Service struct {
	log     *slog.Logger
	cache   Cache
	history History
}

// New builds the price source. cache may be nil; lookups then go to the
// history store only.
func New(log *slog.Logger, cache Cache, history History) *Service {
	return &Service{
		log:     log,
		cache:   cache,
		history: history,
	}
}

// CurrentNAV returns the NAV effective for fundCode on asOf, following
// forward pricing: the most recent quote dated on or before asOf.
func (s *Service) CurrentNAV(ctx context.Context, fundCode string, asOf time.Time) (decimal.Decimal, error) {
	const op = "nav.CurrentNAV"

	if s.cache != nil {
		quote, err := s.cache.GetNav(ctx, fundCode)
		if err == nil && !quote.Date.After(asOf) && quote.Nav.GreaterThan(decimal.Zero) {
			return quote.Nav, nil
		}
		// Cache miss or a quote newer than asOf: answer from history.
	}

	navValue, err := s.history.GetNavAsOf(ctx, fundCode, asOf)
	if err != nil {
		if errors.Is(err, storage.ErrNavNotFound) {
			s.log.Info("no nav for scheme", "fund_code", fundCode, "as_of", asOf)
			return decimal.Zero, ErrNavUnavailable
		}
		s.log.Error("failed to get nav", "fund_code", fundCode, "err", err)
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}

	if navValue.LessThanOrEqual(decimal.Zero) {
		s.log.Error("non-positive nav in history", "fund_code", fundCode, "nav", navValue)
		return decimal.Zero, ErrNavUnavailable
	}

	return navValue, nil
}
