package b2

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrMissingAccountData is returned when the account store has no
	// authorization; the remedy is authorize-account.
	ErrMissingAccountData = errors.New("missing account data")
	// ErrBucketNotFound is returned when a bucket name does not resolve.
	ErrBucketNotFound = errors.New("no such bucket")
	// ErrInvalidArgument is returned for arguments the service would reject.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrChecksumMismatch is returned when downloaded content does not match
	// the SHA1 announced by the service.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrConnection marks requests that never got a response from the
	// service: refused connections, DNS and TLS failures.
	ErrConnection = errors.New("connection error")
)

// APIError is a failure reported by the B2 service itself.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%d %s", e.Status, e.Code)
	}
	return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
}

// IsDomainError reports whether err is a well-formed failure of the storage
// service or of the arguments sent to it, as opposed to an unexpected fault.
func IsDomainError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) ||
		errors.Is(err, ErrBucketNotFound) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrChecksumMismatch) ||
		errors.Is(err, ErrConnection)
}

func missingAccountData(field string) error {
	return errors.Wrapf(ErrMissingAccountData, "%s", field)
}

func bucketNotFound(name string) error {
	return errors.Wrapf(ErrBucketNotFound, "%s", name)
}

func invalidArgument(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}

func connectionError(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrConnection)
}
