package anomalies

import (
	"fmt"

	"github.com/JaimeStill/tally/internal/failure"
)

// Domain errors for anomaly operations.
var (
	ErrNotFound       = fmt.Errorf("anomaly not found: %w", failure.NotFound)
	ErrDealNotFound   = fmt.Errorf("deal not found: %w", failure.NotFound)
	ErrPeriodNotFound = fmt.Errorf("period not found for deal: %w", failure.NotFound)
	ErrPeriodRequired = fmt.Errorf("period is required: %w", failure.Invalid)
)

// MapHTTPStatus maps anomaly errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	return failure.HTTPStatus(err)
}
