package transport

import (
	"FundOrders/internal/domain/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// Amount fields carry only a presence check here; the services are
// authoritative for the positive-amount rule and reject violations
// with a typed error the handlers map to 400.
type PlaceLumpSumRequest struct {
	UserID    string           `json:"user_id" validate:"required"`
	FundCode  string           `json:"fund_code" validate:"required"`
	Amount    decimal.Decimal  `json:"amount" validate:"required"`
	OrderType models.OrderType `json:"order_type" validate:"required"`
}

type PlaceLumpSumResponse struct {
	OrderID         uuid.UUID `json:"order_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
}

type ConfirmPaymentRequest struct {
	PaymentID string `json:"payment_id" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

type ConfirmPaymentResponse struct {
	Confirmed bool `json:"confirmed"`
}

type OrderStatusResponse struct {
	OrderID uuid.UUID          `json:"order_id"`
	Status  models.OrderStatus `json:"status"`
}

type GetOrdersResponse struct {
	Orders []models.Order `json:"orders"`
}

type PlaceSipRequest struct {
	UserID    string           `json:"user_id" validate:"required"`
	FundCode  string           `json:"fund_code" validate:"required"`
	Amount    decimal.Decimal  `json:"amount" validate:"required"`
	Frequency models.Frequency `json:"frequency" validate:"required"`
	StartDate string           `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string           `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type PlaceSipResponse struct {
	SipID uuid.UUID `json:"sip_id"`
}

type SipStatusResponse struct {
	SipID  uuid.UUID        `json:"sip_id"`
	Status models.SipStatus `json:"status"`
}

type GetSipsResponse struct {
	Sips []models.Sip `json:"sips"`
}

type ProcessOrdersRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

type ProcessOrdersResponse struct {
	Message string `json:"message"`
}
