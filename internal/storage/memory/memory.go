// Package memory is a ledger kept entirely in process memory. It backs
// the local environment and the service tests, and enforces the same
// per-record transition preconditions as the postgres storage.
package memory

import (
	"context"
	"sync"
	"time"

	"FundOrders/internal/domain/models"
	"FundOrders/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Storage struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*models.Order
	sips   map[uuid.UUID]*models.Sip
	navs   map[string][]models.NavQuote
}

func New() *Storage {
	return &Storage{
		orders: make(map[uuid.UUID]*models.Order),
		sips:   make(map[uuid.UUID]*models.Sip),
		navs:   make(map[string][]models.NavQuote),
	}
}

func (s *Storage) CreateOrder(_ context.Context, order models.Order) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := order
	s.orders[o.Id] = &o
	return o.Id, nil
}

func (s *Storage) GetOrder(_ context.Context, id uuid.UUID) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return models.Order{}, storage.ErrOrderNotExists
	}
	return *o, nil
}

func (s *Storage) GetUserOrders(_ context.Context, userId string) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var orders []models.Order
	for _, o := range s.orders {
		if o.UserId == userId {
			orders = append(orders, *o)
		}
	}
	return orders, nil
}

func (s *Storage) ListPendingOrders(_ context.Context) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uuid.UUID
	for id, o := range s.orders {
		if o.Status == models.Pending {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Storage) transitionOrder(id uuid.UUID, from []models.OrderStatus, apply func(o *models.Order)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return storage.ErrOrderNotExists
	}
	for _, st := range from {
		if o.Status == st {
			apply(o)
			return nil
		}
	}
	return storage.ErrInvalidOrderState
}

func (s *Storage) MarkOrderPending(_ context.Context, id uuid.UUID, paymentId string) error {
	return s.transitionOrder(id, []models.OrderStatus{models.AwaitingPayment}, func(o *models.Order) {
		o.Status = models.Pending
		o.PaymentId = &paymentId
	})
}

func (s *Storage) MarkOrderFailed(_ context.Context, id uuid.UUID, failedAt time.Time) error {
	return s.transitionOrder(id, []models.OrderStatus{models.AwaitingPayment, models.Pending}, func(o *models.Order) {
		o.Status = models.Failed
		o.ExecutedAt = &failedAt
	})
}

func (s *Storage) CancelOrder(_ context.Context, id uuid.UUID) error {
	return s.transitionOrder(id, []models.OrderStatus{models.AwaitingPayment, models.Pending}, func(o *models.Order) {
		o.Status = models.Cancelled
	})
}

func (s *Storage) ExecuteOrder(_ context.Context, id uuid.UUID, units decimal.Decimal, executedAt time.Time) error {
	return s.transitionOrder(id, []models.OrderStatus{models.Pending}, func(o *models.Order) {
		o.Status = models.Executed
		o.UnitsAllotted = &units
		o.ExecutedAt = &executedAt
	})
}

func (s *Storage) CreateSip(_ context.Context, sip models.Sip) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp := sip
	s.sips[sp.Id] = &sp
	return sp.Id, nil
}

func (s *Storage) GetSip(_ context.Context, id uuid.UUID) (models.Sip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp, ok := s.sips[id]
	if !ok {
		return models.Sip{}, storage.ErrSipNotExists
	}
	return *sp, nil
}

func (s *Storage) GetUserSips(_ context.Context, userId string) ([]models.Sip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sips []models.Sip
	for _, sp := range s.sips {
		if sp.UserId == userId {
			sips = append(sips, *sp)
		}
	}
	return sips, nil
}

func (s *Storage) ListDueSips(_ context.Context, asOf time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uuid.UUID
	for id, sp := range s.sips {
		if sp.Status == models.SipActive && !sp.NextExecution.After(asOf) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Storage) transitionSip(id uuid.UUID, apply func(sp *models.Sip)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp, ok := s.sips[id]
	if !ok {
		return storage.ErrSipNotExists
	}
	if sp.Status != models.SipActive {
		return storage.ErrInvalidSipState
	}
	apply(sp)
	return nil
}

func (s *Storage) StopSip(_ context.Context, id uuid.UUID) error {
	return s.transitionSip(id, func(sp *models.Sip) {
		sp.Status = models.SipStopped
	})
}

// MarkSipExecuted commits one installment. The caller passes the
// next-execution date it based the installment on; if the stored value
// has moved on, another pass already committed this installment and
// the transition is refused.
func (s *Storage) MarkSipExecuted(_ context.Context, id uuid.UUID, expectedNext, executedAt, nextExecution time.Time, completed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp, ok := s.sips[id]
	if !ok {
		return storage.ErrSipNotExists
	}
	if sp.Status != models.SipActive || !sp.NextExecution.Equal(expectedNext) {
		return storage.ErrInvalidSipState
	}

	at := executedAt
	sp.LastExecuted = &at
	sp.NextExecution = nextExecution
	if completed {
		sp.Status = models.SipCompleted
	}
	return nil
}

func (s *Storage) MarkSipPaymentFailed(_ context.Context, id uuid.UUID) error {
	return s.transitionSip(id, func(sp *models.Sip) {
		sp.Status = models.SipPaymentFailed
	})
}

func (s *Storage) SaveNavs(_ context.Context, quotes []models.NavQuote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range quotes {
		s.navs[q.SchemeCode] = append(s.navs[q.SchemeCode], q)
	}
	return nil
}

func (s *Storage) GetNavAsOf(_ context.Context, schemeCode string, date time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		best  models.NavQuote
		found bool
	)
	for _, q := range s.navs[schemeCode] {
		if q.Date.After(date) {
			continue
		}
		if !found || q.Date.After(best.Date) {
			best = q
			found = true
		}
	}
	if !found {
		return decimal.Zero, storage.ErrNavNotFound
	}
	return best.Nav, nil
}
