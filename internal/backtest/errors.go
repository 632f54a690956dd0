package backtest

import (
	"context"
	"errors"

	"market-analyzer/internal/indicator"
	"market-analyzer/internal/model"
	"market-analyzer/internal/portfolio"
)

// ErrNoBars is returned when a bar source has nothing for the requested range.
var ErrNoBars = errors.New("no bars for symbol in range")

// Error classes used as metric labels and for HTTP status mapping.
const (
	ClassOK        = "ok"
	ClassInput     = "invalid_input"
	ClassCancelled = "cancelled"
	ClassInternal  = "error"
)

// IsInputError reports whether err was caused by the caller's data or
// parameters rather than by the system.
func IsInputError(err error) bool {
	return errors.Is(err, model.ErrMalformedSeries) ||
		errors.Is(err, indicator.ErrEmptySeries) ||
		errors.Is(err, indicator.ErrInvalidWindow) ||
		errors.Is(err, portfolio.ErrInsufficientData) ||
		errors.Is(err, portfolio.ErrSignalMismatch) ||
		errors.Is(err, portfolio.ErrInvalidRiskLimits) ||
		errors.Is(err, ErrNoBars)
}

// Classify maps err onto one of the Class* labels.
func Classify(err error) string {
	switch {
	case err == nil:
		return ClassOK
	case IsInputError(err):
		return ClassInput
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassCancelled
	default:
		return ClassInternal
	}
}
