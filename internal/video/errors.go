package video

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURI is returned for strings that do not follow the URI grammar
	ErrInvalidURI = errors.New("invalid uri")

	// ErrUnknownScheme is returned when no backend handles a scheme
	ErrUnknownScheme = errors.New("unknown scheme")

	// ErrDeviceUnavailable is returned when a device or resource cannot be acquired
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrEndOfStream is reported by sources that will never produce another frame
	ErrEndOfStream = errors.New("end of stream")

	// ErrFormatMismatch is returned by sinks asked to write a frame that does not
	// match the geometry or format of the stream they were started with
	ErrFormatMismatch = errors.New("frame format mismatch")
)

// Role names which endpoint failed to open
type Role string

const (
	RoleSource Role = "source"
	RoleSink   Role = "sink"
)

// OpenError reports that a source or sink could not be constructed from its URI
type OpenError struct {
	Role Role
	URI  string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("failed to open %s %q: %v", e.Role, e.URI, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// NewOpenError wraps err, keeping an existing OpenError as is
func NewOpenError(role Role, uri string, err error) error {
	if err == nil {
		return nil
	}
	var oe *OpenError
	if errors.As(err, &oe) {
		return err
	}
	return &OpenError{Role: role, URI: uri, Err: err}
}

// IsOpenFailure reports whether err is (or wraps) an OpenError
func IsOpenFailure(err error) bool {
	var oe *OpenError
	return errors.As(err, &oe)
}
