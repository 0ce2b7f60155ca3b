package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderType string

const (
	Buy OrderType = "buy"
)

type OrderStatus string

const (
	AwaitingPayment OrderStatus = "awaiting_payment"
	Pending         OrderStatus = "pending"
	Executed        OrderStatus = "executed"
	Failed          OrderStatus = "failed"
	Cancelled       OrderStatus = "cancelled"
)

// Terminal reports whether no further transition may be applied to an
// order in this status.
func (s OrderStatus) Terminal() bool {
	return s == Executed || s == Failed || s == Cancelled
}

type Order struct {
	Id              uuid.UUID
	UserId          string
	FundCode        string
	Amount          decimal.Decimal
	Type            OrderType
	Status          OrderStatus
	CreatedAt       time.Time
	ExecutedAt      *time.Time
	UnitsAllotted   *decimal.Decimal
	PaymentIntentId string
	PaymentId       *string
}
