package core

import "errors"

var (
	ErrInvalidGranularity = errors.New("invalid granularity")
	ErrInvalidMarket      = errors.New("invalid market")
	ErrPeriodOutOfRange   = errors.New("period out of range")
	ErrSeriesTooShort     = errors.New("series shorter than period")
	ErrUnsuitablePrice    = errors.New("price too low to trade")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientData   = errors.New("insufficient data")
	ErrNoPosition         = errors.New("no open position")
)

// TransientError marks a failure worth retrying on the next schedule,
// typically connectivity or an exchange 5xx.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err so IsTransient reports it retryable. A nil err stays
// nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
