package providers

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks a parameter combination the model rejects.
	// It is always returned before any network call.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnknownModel is returned by Registry.Resolve for ids not in the catalog.
	ErrUnknownModel = errors.New("unknown model")
)

// UpstreamError describes a failed call to the provider API: a transport
// failure, a non-2xx response or an envelope whose code is not 200.
type UpstreamError struct {
	HTTPStatus   int
	ProviderCode int
	Message      string
	RawBody      string
	IsTimeout    bool
}

func (e *UpstreamError) Error() string {
	switch {
	case e.IsTimeout:
		return "provider request timeout: " + e.Message
	case e.HTTPStatus != 0 && e.HTTPStatus/100 != 2:
		return fmt.Sprintf("provider error (%d): %s", e.HTTPStatus, e.Message)
	case e.ProviderCode != 0:
		return fmt.Sprintf("provider error code %d: %s", e.ProviderCode, e.Message)
	default:
		return "provider error: " + e.Message
	}
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
