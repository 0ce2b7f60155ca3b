package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// NavQuote is one published NAV for a scheme on a date, as delivered by
// the fund house feed.
type NavQuote struct {
	SchemeCode string          `json:"scheme_code"`
	Nav        decimal.Decimal `json:"nav"`
	Date       time.Time       `json:"date"`
}
