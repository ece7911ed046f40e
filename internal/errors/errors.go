package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrFetchFailed marks a conference fetch that did not produce a usable response.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrStale is returned when a replacement is older than what has already been applied.
	ErrStale = errors.New("stale replacement")
)

// Kind classifies where an error came from.
type Kind string

const (
	KindTransport       Kind = "transport"
	KindServer          Kind = "server"
	KindNotFound        Kind = "not_found"
	KindInvalid         Kind = "invalid"
	KindUnauthenticated Kind = "unauthenticated"
)

// Error represents a universal error type between the client and the API.
type Error struct {
	Status  int
	Kind    Kind
	Err     error // The error this wraps
	Details []Detail
}

type Detail struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s (%d): %s, details: %v", e.Kind, e.Status, e.Err, e.Details)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type transport struct {
	Message string   `json:"message"`
	Details []Detail `json:"details"`
	Status  int      `json:"status"`
	Kind    Kind     `json:"kind"`
}

func (s *Error) MarshalJSON() ([]byte, error) {
	var msg string
	if s.Err != nil {
		msg = s.Err.Error()
	}
	return json.Marshal(transport{
		Message: msg,
		Details: s.Details,
		Status:  s.Status,
		Kind:    s.Kind,
	})
}

func (s *Error) UnmarshalJSON(byts []byte) error {
	t := transport{}
	if err := json.Unmarshal(byts, &t); err != nil {
		return err
	}

	s.Err = errors.New(t.Message)
	s.Details = t.Details
	s.Status = t.Status
	s.Kind = t.Kind
	return nil
}

// E builds an [Error] out of whatever it's given.
//
// Strings and errors become the wrapped error, ints the status, [Kind] the kind.
// When no kind is given it's derived from the status.
func E(args ...any) *Error {
	ret := &Error{
		Status:  http.StatusInternalServerError,
		Err:     nil,
		Details: nil,
	}

	for _, arg := range args {
		switch arg := arg.(type) {
		case string:
			ret.Err = errors.New(arg)
		case error:
			ret.Err = arg
		case int:
			ret.Status = arg
		case Kind:
			ret.Kind = arg
		case Detail:
			ret.Details = append(ret.Details, arg)
		case []Detail:
			ret.Details = append(ret.Details, arg...)
		}
	}

	if ret.Kind == "" {
		ret.Kind = kindForStatus(ret.Status)
	}

	return ret
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthenticated
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return KindInvalid
	case status == 0:
		return KindTransport
	default:
		return KindServer
	}
}

// KindOf digs out the kind of the first [Error] in the chain.
//
// Errors that aren't structured are treated as transport failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransport
}

// UserMessage turns an error into something that can be shown in a toast.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindServer && len(e.Details) > 0 {
		return e.Details[0].Error
	}

	switch KindOf(err) {
	case KindTransport:
		return "Network error, please check your connection"
	case KindNotFound:
		return "Not found"
	case KindUnauthenticated:
		return "Please log in to continue"
	case KindInvalid:
		if errors.As(err, &e) && e.Err != nil {
			return e.Err.Error()
		}
		return "Invalid request"
	default:
		return "Something went wrong, please try again"
	}
}
