package escrow

import (
	"errors"

	nativecommon "propertyescrow/native/common"
)

var (
	ErrValidationFailed      = errors.New("escrow: validation failed")
	ErrNoPropertyOrBuyer     = errors.New("escrow: property and buyer are required")
	ErrWrongState            = errors.New("escrow: operation not allowed in current state")
	ErrUnauthorized          = errors.New("escrow: unauthorized")
	ErrAlreadySigned         = errors.New("escrow: already signed")
	ErrIrreversibleCondition = errors.New("escrow: condition cannot be unset")
	ErrInvalidCondition      = errors.New("escrow: invalid condition index")
	ErrPreconditionsNotMet   = errors.New("escrow: completion preconditions not met")
	ErrExpired               = errors.New("escrow: expired")
	ErrNotFound              = errors.New("escrow: not found")
	ErrSellerAssigned        = errors.New("escrow: seller already assigned")
)

// ErrorKind is the stable name of a lifecycle failure.
type ErrorKind string

const (
	KindNone                  ErrorKind = ""
	KindValidationFailed      ErrorKind = "ValidationFailed"
	KindNoPropertyOrBuyer     ErrorKind = "NoPropertyOrBuyer"
	KindWrongState            ErrorKind = "WrongState"
	KindUnauthorized          ErrorKind = "Unauthorized"
	KindAlreadySigned         ErrorKind = "AlreadySigned"
	KindIrreversibleCondition ErrorKind = "IrreversibleCondition"
	KindInvalidCondition      ErrorKind = "InvalidCondition"
	KindPreconditionsNotMet   ErrorKind = "PreconditionsNotMet"
	KindExpired               ErrorKind = "Expired"
	KindNotFound              ErrorKind = "NotFound"
	KindSellerAssigned        ErrorKind = "SellerAssigned"
	KindModulePaused          ErrorKind = "ModulePaused"
	KindUnclassified          ErrorKind = "Unclassified"
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrValidationFailed, KindValidationFailed},
	{ErrNoPropertyOrBuyer, KindNoPropertyOrBuyer},
	{ErrWrongState, KindWrongState},
	{ErrUnauthorized, KindUnauthorized},
	{ErrAlreadySigned, KindAlreadySigned},
	{ErrIrreversibleCondition, KindIrreversibleCondition},
	{ErrInvalidCondition, KindInvalidCondition},
	{ErrPreconditionsNotMet, KindPreconditionsNotMet},
	{ErrExpired, KindExpired},
	{ErrNotFound, KindNotFound},
	{ErrSellerAssigned, KindSellerAssigned},
	{nativecommon.ErrModulePaused, KindModulePaused},
}

// Kind maps err onto its ErrorKind. A nil error yields KindNone.
func Kind(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnclassified
}
