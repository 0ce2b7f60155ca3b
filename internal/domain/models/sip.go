package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrUnsupportedFrequency = errors.New("unsupported sip frequency")

type SipStatus string

const (
	SipActive        SipStatus = "active"
	SipStopped       SipStatus = "stopped"
	SipCompleted     SipStatus = "completed"
	SipPaymentFailed SipStatus = "payment_failed"
)

type Frequency string

const (
	Monthly      Frequency = "monthly"
	Quarterly    Frequency = "quarterly"
	SemiAnnually Frequency = "semi_annually"
	Annually     Frequency = "annually"
)

// Offset returns the fixed day offset between two installments. The
// recurrence is day-count based, not calendar-month based.
func (f Frequency) Offset() (time.Duration, error) {
	switch f {
	case Monthly:
		return 30 * 24 * time.Hour, nil
	case Quarterly:
		return 91 * 24 * time.Hour, nil
	case SemiAnnually:
		return 182 * 24 * time.Hour, nil
	case Annually:
		return 365 * 24 * time.Hour, nil
	default:
		return 0, ErrUnsupportedFrequency
	}
}

// NextExecution computes the date of the installment following one
// executed at lastExecuted.
func NextExecution(lastExecuted time.Time, f Frequency) (time.Time, error) {
	offset, err := f.Offset()
	if err != nil {
		return time.Time{}, err
	}
	return lastExecuted.Add(offset), nil
}

type Sip struct {
	Id            uuid.UUID
	UserId        string
	FundCode      string
	Amount        decimal.Decimal
	Frequency     Frequency
	StartDate     time.Time
	EndDate       *time.Time
	Status        SipStatus
	CreatedAt     time.Time
	LastExecuted  *time.Time
	NextExecution time.Time
}
