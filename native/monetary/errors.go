package monetary

import "errors"

var (
	ErrUnknownCurrency = errors.New("monetary: unknown currency")
	ErrInvalidAmount   = errors.New("monetary: invalid amount")
	ErrBelowMinimum    = errors.New("monetary: amount below minimum")
	ErrNoExchangeRate  = errors.New("monetary: no exchange rate")
)

// ErrorKind is the stable name of a monetary failure, suitable for metric
// labels and API bindings.
type ErrorKind string

const (
	KindNone            ErrorKind = ""
	KindUnknownCurrency ErrorKind = "UnknownCurrency"
	KindInvalidAmount   ErrorKind = "InvalidAmount"
	KindBelowMinimum    ErrorKind = "BelowMinimum"
	KindNoExchangeRate  ErrorKind = "NoExchangeRate"
	KindUnclassified    ErrorKind = "Unclassified"
)

// Kind maps err onto its ErrorKind. A nil error yields KindNone.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrUnknownCurrency):
		return KindUnknownCurrency
	case errors.Is(err, ErrInvalidAmount):
		return KindInvalidAmount
	case errors.Is(err, ErrBelowMinimum):
		return KindBelowMinimum
	case errors.Is(err, ErrNoExchangeRate):
		return KindNoExchangeRate
	default:
		return KindUnclassified
	}
}
