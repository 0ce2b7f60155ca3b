package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"FundOrders/internal/domain/models"
	"FundOrders/internal/services/nav"
	"FundOrders/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount             = errors.New("amount must be positive")
	ErrPaymentVerificationFailed = errors.New("payment verification failed")
)

// Service owns every order transition. Orders are created awaiting
// payment, move to pending on a verified payment, and are executed at
// the NAV of the batch date (forward pricing). Executed, failed and
// cancelled are terminal.
type Service struct {
	log     *slog.Logger
	ledger  Ledger
	gateway PaymentGateway
	prices  PriceSource
	events  Events
}

type Ledger interface {
	CreateOrder(ctx context.Context, order models.Order) (uuid.UUID, error)
	GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error)
	GetUserOrders(ctx context.Context, userId string) ([]models.Order, error)
	MarkOrderPending(ctx context.Context, id uuid.UUID, paymentId string) error
	MarkOrderFailed(ctx context.Context, id uuid.UUID, failedAt time.Time) error
	CancelOrder(ctx context.Context, id uuid.UUID) error
	ExecuteOrder(ctx context.Context, id uuid.UUID, units decimal.Decimal, executedAt time.Time) error
}

type PaymentGateway interface {
	CreateIntent(ctx context.Context, amount decimal.Decimal) (string, error)
	VerifyPayment(ctx context.Context, intentId, paymentId, signature string) bool
}

type PriceSource interface {
	CurrentNAV(ctx context.Context, fundCode string, asOf time.Time) (decimal.Decimal, error)
}

type Events interface {
	Publish(subject string, msg interface{}) error
}

// OrderEvent is published on orders.executed / orders.failed.
type OrderEvent struct {
	OrderId       uuid.UUID        `json:"order_id"`
	UserId        string           `json:"user_id"`
	FundCode      string           `json:"fund_code"`
	Amount        decimal.Decimal  `json:"amount"`
	UnitsAllotted *decimal.Decimal `json:"units_allotted,omitempty"`
	ExecutedAt    time.Time        `json:"executed_at"`
}

func New(log *slog.Logger, ledger Ledger, gateway PaymentGateway, prices PriceSource, events Events) *Service {
	return &Service{
		log:     log,
		ledger:  ledger,
		gateway: gateway,
		prices:  prices,
		events:  events,
	}
}

// PlaceLumpSumOrder registers a purchase intent with the payment
// gateway and records the order awaiting payment. No units are allotted
// until a batch pass executes the confirmed order.
func (s *Service) PlaceLumpSumOrder(ctx context.Context,
	userId string,
	fundCode string,
	amount decimal.Decimal,
	orderType models.OrderType) (uuid.UUID, string, error) {
	const op = "order.PlaceLumpSumOrder"

	if amount.LessThanOrEqual(decimal.Zero) {
		s.log.Info("rejected non-positive amount", "user_id", userId, "amount", amount)
		return uuid.Nil, "", fmt.Errorf("%s: %w", op, ErrInvalidAmount)
	}

	intentId, err := s.gateway.CreateIntent(ctx, amount)
	if err != nil {
		s.log.Error("failed to create payment intent", "user_id", userId, "err", err)
		return uuid.Nil, "", fmt.Errorf("%s: %w", op, err)
	}

	order := models.Order{
		Id:              uuid.New(),
		UserId:          userId,
		FundCode:        fundCode,
		Amount:          amount,
		Type:            orderType,
		Status:          models.AwaitingPayment,
		CreatedAt:       time.Now(),
		PaymentIntentId: intentId,
	}

	orderId, err := s.ledger.CreateOrder(ctx, order)
	if err != nil {
		s.log.Error("failed to create order", "user_id", userId, "err", err)
		return uuid.Nil, "", fmt.Errorf("%s: %w", op, err)
	}

	return orderId, intentId, nil
}

// ConfirmPayment verifies the (intent, payment, signature) triple. A
// verified payment moves the order to pending; a failed verification is
// terminal for the order and a fresh one must be placed.
func (s *Service) ConfirmPayment(ctx context.Context, orderId uuid.UUID, paymentId, signature string) (bool, error) {
	const op = "order.ConfirmPayment"

	order, err := s.ledger.GetOrder(ctx, orderId)
	if err != nil {
		if errors.Is(err, storage.ErrOrderNotExists) {
			s.log.Info("confirm for unknown order", "order_id", orderId)
			return false, err
		}
		s.log.Error("failed to get order", "order_id", orderId, "err", err)
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if !s.gateway.VerifyPayment(ctx, order.PaymentIntentId, paymentId, signature) {
		if err := s.ledger.MarkOrderFailed(ctx, orderId, time.Now()); err != nil {
			// Already terminal; the failed verification changes nothing.
			if !errors.Is(err, storage.ErrInvalidOrderState) {
				s.log.Error("failed to mark order failed", "order_id", orderId, "err", err)
				return false, fmt.Errorf("%s: %w", op, err)
			}
		}
		s.log.Info("payment verification failed", "order_id", orderId, "payment_id", paymentId)
		return false, fmt.Errorf("%s: %w", op, ErrPaymentVerificationFailed)
	}

	if err := s.ledger.MarkOrderPending(ctx, orderId, paymentId); err != nil {
		s.log.Error("failed to confirm order", "order_id", orderId, "err", err)
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return true, nil
}

// CancelOrder is permitted only before execution, from awaiting_payment
// or pending.
func (s *Service) CancelOrder(ctx context.Context, orderId uuid.UUID) (bool, error) {
	const op = "order.CancelOrder"

	if err := s.ledger.CancelOrder(ctx, orderId); err != nil {
		if errors.Is(err, storage.ErrOrderNotExists) || errors.Is(err, storage.ErrInvalidOrderState) {
			s.log.Info("cancel refused", "order_id", orderId, "err", err)
			return false, err
		}
		s.log.Error("failed to cancel order", "order_id", orderId, "err", err)
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return true, nil
}

// ExecuteOrder allots units for a pending order at the NAV of asOf.
// Orders not in pending are left untouched, which makes the batch pass
// idempotent. A missing or non-positive NAV fails the order without
// aborting the rest of the pass.
func (s *Service) ExecuteOrder(ctx context.Context, orderId uuid.UUID, asOf time.Time) error {
	const op = "order.ExecuteOrder"

	order, err := s.ledger.GetOrder(ctx, orderId)
	if err != nil {
		s.log.Error("failed to get order", "order_id", orderId, "err", err)
		return fmt.Errorf("%s: %w", op, err)
	}

	if order.Status != models.Pending {
		return nil
	}

	navValue, err := s.prices.CurrentNAV(ctx, order.FundCode, asOf)
	if err != nil {
		if !errors.Is(err, nav.ErrNavUnavailable) {
			s.log.Error("price lookup failed", "order_id", orderId, "err", err)
			return fmt.Errorf("%s: %w", op, err)
		}

		if err := s.ledger.MarkOrderFailed(ctx, orderId, asOf); err != nil {
			if errors.Is(err, storage.ErrInvalidOrderState) {
				return nil
			}
			s.log.Error("failed to mark order failed", "order_id", orderId, "err", err)
			return fmt.Errorf("%s: %w", op, err)
		}

		s.publish("orders.failed", order, nil, asOf)
		s.log.Info("order failed, nav unavailable", "order_id", orderId, "fund_code", order.FundCode)
		return fmt.Errorf("%s: %w", op, nav.ErrNavUnavailable)
	}

	units := order.Amount.Div(navValue)

	if err := s.ledger.ExecuteOrder(ctx, orderId, units, asOf); err != nil {
		if errors.Is(err, storage.ErrInvalidOrderState) {
			// Another pass got here first.
			return nil
		}
		s.log.Error("failed to execute order", "order_id", orderId, "err", err)
		return fmt.Errorf("%s: %w", op, err)
	}

	s.publish("orders.executed", order, &units, asOf)
	s.log.Info("order executed",
		"order_id", orderId, "fund_code", order.FundCode,
		"nav", navValue, "units", units)
	return nil
}

func (s *Service) GetOrderStatus(ctx context.Context, orderId uuid.UUID) (models.OrderStatus, error) {
	const op = "order.GetOrderStatus"

	order, err := s.ledger.GetOrder(ctx, orderId)
	if err != nil {
		if errors.Is(err, storage.ErrOrderNotExists) {
			return "", err
		}
		s.log.Error("failed to get order", "order_id", orderId, "err", err)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return order.Status, nil
}

func (s *Service) GetUserOrders(ctx context.Context, userId string) ([]models.Order, error) {
	const op = "order.GetUserOrders"

	orders, err := s.ledger.GetUserOrders(ctx, userId)
	if err != nil {
		s.log.Error("failed to get user orders", "user_id", userId, "err", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return orders, nil
}

func (s *Service) publish(subject string, order models.Order, units *decimal.Decimal, at time.Time) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(subject, OrderEvent{
		OrderId:       order.Id,
		UserId:        order.UserId,
		FundCode:      order.FundCode,
		Amount:        order.Amount,
		UnitsAllotted: units,
		ExecutedAt:    at,
	})
	if err != nil {
		s.log.Error("failed to publish order event", "subject", subject, "order_id", order.Id, "err", err)
	}
}
