package provider

import "errors"

// Sentinel errors for provider operations.
var (
	// ErrProviderDown indicates the provider endpoint refused or dropped
	// the connection.
	ErrProviderDown = errors.New("provider unavailable")

	// ErrTimeout indicates the provider did not answer within the
	// configured deadline.
	ErrTimeout = errors.New("provider request timed out")

	// ErrBadResponse indicates the provider answered with a non-success
	// status or an unparseable body.
	ErrBadResponse = errors.New("provider returned an invalid response")

	// ErrUnsupported indicates the configured provider kind is not known.
	ErrUnsupported = errors.New("unsupported provider")
)

// IsRetryable reports whether the error is transient and the request can be
// retried after a delay.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProviderDown) || errors.Is(err, ErrTimeout)
}
