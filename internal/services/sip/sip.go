package sip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"FundOrders/internal/domain/models"
	"FundOrders/internal/services/order"
	"FundOrders/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrInvalidDateRange = errors.New("end date before start date")
	ErrPaymentFailed    = errors.New("installment payment failed")
)

// Service drives the recurring installment lifecycle. Each due
// installment is a fresh lump-sum order pushed through payment
// confirmation and execution; the SIP record itself only tracks the
// cadence.
type Service struct {
	log     *slog.Logger
	ledger  Ledger
	orders  OrderPlacer
	mandate Mandate
	locks   sync.Map // sip id -> *sync.Mutex
}

type Ledger interface {
	CreateSip(ctx context.Context, sip models.Sip) (uuid.UUID, error)
	GetSip(ctx context.Context, id uuid.UUID) (models.Sip, error)
	GetUserSips(ctx context.Context, userId string) ([]models.Sip, error)
	StopSip(ctx context.Context, id uuid.UUID) error
	MarkSipExecuted(ctx context.Context, id uuid.UUID, expectedNext, executedAt, nextExecution time.Time, completed bool) error
	MarkSipPaymentFailed(ctx context.Context, id uuid.UUID) error
}

type OrderPlacer interface {
	PlaceLumpSumOrder(ctx context.Context, userId, fundCode string, amount decimal.Decimal, orderType models.OrderType) (uuid.UUID, string, error)
	ConfirmPayment(ctx context.Context, orderId uuid.UUID, paymentId, signature string) (bool, error)
	ExecuteOrder(ctx context.Context, orderId uuid.UUID, asOf time.Time) error
}

// Mandate charges the pre-authorized recurring debit behind a SIP and
// returns a payment confirmation the gateway will verify.
type Mandate interface {
	AutoDebit(ctx context.Context, intentId string) (paymentId, signature string, err error)
}

func New(log *slog.Logger, ledger Ledger, orders OrderPlacer, mandate Mandate) *Service {
	return &Service{
		log:     log,
		ledger:  ledger,
		orders:  orders,
		mandate: mandate,
	}
}

// PlaceSipOrder creates an active SIP whose first installment is due on
// startDate.
func (s *Service) PlaceSipOrder(ctx context.Context,
	userId string,
	fundCode string,
	amount decimal.Decimal,
	frequency models.Frequency,
	startDate time.Time,
	endDate *time.Time) (uuid.UUID, error) {
	const op = "sip.PlaceSipOrder"

	if amount.LessThanOrEqual(decimal.Zero) {
		s.log.Info("rejected non-positive amount", "user_id", userId, "amount", amount)
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidAmount)
	}
	if _, err := frequency.Offset(); err != nil {
		s.log.Info("rejected frequency", "user_id", userId, "frequency", frequency)
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}
	if endDate != nil && endDate.Before(startDate) {
		s.log.Info("rejected date range", "user_id", userId, "start", startDate, "end", endDate)
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidDateRange)
	}

	sip := models.Sip{
		Id:            uuid.New(),
		UserId:        userId,
		FundCode:      fundCode,
		Amount:        amount,
		Frequency:     frequency,
		StartDate:     startDate,
		EndDate:       endDate,
		Status:        models.SipActive,
		CreatedAt:     time.Now(),
		NextExecution: startDate,
	}

	sipId, err := s.ledger.CreateSip(ctx, sip)
	if err != nil {
		s.log.Error("failed to create sip", "user_id", userId, "err", err)
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return sipId, nil
}

// StopSip halts an active SIP. Stopped, completed and payment-failed
// SIPs stay as they are.
func (s *Service) StopSip(ctx context.Context, sipId uuid.UUID) (bool, error) {
	const op = "sip.StopSip"

	if err := s.ledger.StopSip(ctx, sipId); err != nil {
		if errors.Is(err, storage.ErrSipNotExists) || errors.Is(err, storage.ErrInvalidSipState) {
			s.log.Info("stop refused", "sip_id", sipId, "err", err)
			return false, err
		}
		s.log.Error("failed to stop sip", "sip_id", sipId, "err", err)
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return true, nil
}

func (s *Service) GetSipStatus(ctx context.Context, sipId uuid.UUID) (models.SipStatus, error) {
	const op = "sip.GetSipStatus"

	sip, err := s.ledger.GetSip(ctx, sipId)
	if err != nil {
		if errors.Is(err, storage.ErrSipNotExists) {
			return "", err
		}
		s.log.Error("failed to get sip", "sip_id", sipId, "err", err)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return sip.Status, nil
}

func (s *Service) GetUserSips(ctx context.Context, userId string) ([]models.Sip, error) {
	const op = "sip.GetUserSips"

	sips, err := s.ledger.GetUserSips(ctx, userId)
	if err != nil {
		s.log.Error("failed to get user sips", "user_id", userId, "err", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return sips, nil
}

// installmentLock returns the mutex serializing installments of one
// SIP. The daily pass and an admin-triggered pass can both pick up the
// same due SIP; without this the eligibility check and the cadence
// update would be separate critical sections and the user could be
// debited twice for one due date.
func (s *Service) installmentLock(sipId uuid.UUID) *sync.Mutex {
	lock, _ := s.locks.LoadOrStore(sipId, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// ExecuteDueInstallment runs one installment of a due SIP as of asOf:
// place a lump-sum buy order, charge the mandate, confirm, execute,
// then advance the cadence. The whole unit runs under a per-SIP lock,
// and the cadence update re-checks the expected next-execution date so
// a pass from another process cannot commit the same installment
// twice. A failed charge parks the SIP in payment_failed and is never
// retried automatically. A failed execution (no NAV) leaves the SIP
// untouched so the next pass retries with a new order.
func (s *Service) ExecuteDueInstallment(ctx context.Context, sipId uuid.UUID, asOf time.Time) error {
	const op = "sip.ExecuteDueInstallment"

	lock := s.installmentLock(sipId)
	lock.Lock()
	defer lock.Unlock()

	sip, err := s.ledger.GetSip(ctx, sipId)
	if err != nil {
		s.log.Error("failed to get sip", "sip_id", sipId, "err", err)
		return fmt.Errorf("%s: %w", op, err)
	}

	// Eligibility is re-checked against persisted state so repeated
	// passes for the same date cannot double-execute.
	if sip.Status != models.SipActive || sip.NextExecution.After(asOf) {
		return nil
	}

	// Computed before any mutation: an unsupported frequency must fail
	// the installment loudly without touching the SIP.
	next, err := models.NextExecution(asOf, sip.Frequency)
	if err != nil {
		s.log.Error("cannot schedule next installment", "sip_id", sipId, "frequency", sip.Frequency, "err", err)
		return fmt.Errorf("%s: %w", op, err)
	}

	orderId, intentId, err := s.orders.PlaceLumpSumOrder(ctx, sip.UserId, sip.FundCode, sip.Amount, models.Buy)
	if err != nil {
		s.log.Error("failed to place installment order", "sip_id", sipId, "err", err)
		return fmt.Errorf("%s: %w", op, err)
	}

	paymentId, signature, err := s.mandate.AutoDebit(ctx, intentId)
	if err != nil {
		s.log.Error("mandate charge failed", "sip_id", sipId, "order_id", orderId, "err", err)
		if err := s.ledger.MarkSipPaymentFailed(ctx, sipId); err != nil {
			s.log.Error("failed to mark sip payment failed", "sip_id", sipId, "err", err)
		}
		return fmt.Errorf("%s: %w", op, ErrPaymentFailed)
	}

	confirmed, err := s.orders.ConfirmPayment(ctx, orderId, paymentId, signature)
	if !confirmed {
		// payment_failed is reserved for the payment itself being
		// refused. A ledger error leaves the SIP active so the next
		// pass retries the installment.
		if !errors.Is(err, order.ErrPaymentVerificationFailed) {
			s.log.Error("installment confirmation failed", "sip_id", sipId, "order_id", orderId, "err", err)
			return fmt.Errorf("%s: %w", op, err)
		}
		s.log.Info("installment payment not confirmed", "sip_id", sipId, "order_id", orderId, "err", err)
		if err := s.ledger.MarkSipPaymentFailed(ctx, sipId); err != nil {
			s.log.Error("failed to mark sip payment failed", "sip_id", sipId, "err", err)
		}
		return fmt.Errorf("%s: %w", op, ErrPaymentFailed)
	}

	if err := s.orders.ExecuteOrder(ctx, orderId, asOf); err != nil {
		// Order is failed, SIP cadence unchanged; retried next pass.
		s.log.Error("installment execution failed", "sip_id", sipId, "order_id", orderId, "err", err)
		return fmt.Errorf("%s: %w", op, err)
	}

	completed := sip.EndDate != nil && !asOf.Before(*sip.EndDate)

	if err := s.ledger.MarkSipExecuted(ctx, sipId, sip.NextExecution, asOf, next, completed); err != nil {
		s.log.Error("failed to advance sip", "sip_id", sipId, "err", err)
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("installment executed",
		"sip_id", sipId, "order_id", orderId,
		"executed_at", asOf, "next_execution", next, "completed", completed)
	return nil
}
