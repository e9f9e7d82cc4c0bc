package payment

import "errors"

var (
	// ErrInvalidInput means the device identifier or phone number is malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidPlan means the requested plan is missing or inactive.
	ErrInvalidPlan = errors.New("invalid plan")

	// ErrProviderRejected means the push-payment call failed.
	ErrProviderRejected = errors.New("payment provider rejected the request")

	// ErrNotFound means a callback carried an unknown correlation id.
	ErrNotFound = errors.New("no session for correlation id")
)
