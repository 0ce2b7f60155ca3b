// Package storage declares the errors shared by the ledger
// implementations so services can match on them regardless of the
// backing store.
package storage

import "errors"

var (
	ErrOrderNotExists    = errors.New("order does not exist")
	ErrSipNotExists      = errors.New("sip does not exist")
	ErrInvalidOrderState = errors.New("order status forbids this transition")
	ErrInvalidSipState   = errors.New("sip status forbids this transition")
	ErrNavNotFound       = errors.New("no nav recorded for scheme")
)
