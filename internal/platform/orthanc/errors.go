package orthanc

import (
	"errors"
	"fmt"
)

var (
	// ErrArchiveUnreachable covers transport failures, timeouts and cancelled requests.
	ErrArchiveUnreachable = errors.New("archive unreachable")
	// ErrRecordNotFound is returned when the archive answers 404.
	ErrRecordNotFound = errors.New("record not found")
	// ErrArchiveResponse covers any other non-2xx status or an undecodable body.
	ErrArchiveResponse = errors.New("unexpected archive response")
)

// Error describes a failed archive call. It unwraps to one of the sentinel
// errors above and, when present, to the underlying cause.
type Error struct {
	Op         string
	URL        string
	StatusCode int
	Kind       error
	Cause      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("orthanc %s %s: %v", e.Op, e.URL, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// IsNotFound reports whether err means the requested record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

// IsUnreachable reports whether err is a transport level failure.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrArchiveUnreachable)
}
