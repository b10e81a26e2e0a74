package errs

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind uint8

const (
	KindValidation Kind = iota + 1
	KindUpstream
	KindBlockedHost
	KindTimeout
	KindUnsupportedContent
	KindNoContent
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUpstream:
		return "upstream"
	case KindBlockedHost:
		return "blocked_host"
	case KindTimeout:
		return "timeout"
	case KindUnsupportedContent:
		return "unsupported_content"
	case KindNoContent:
		return "no_content"
	default:
		return "unknown"
	}
}

// Error is a failure whose Message is safe to show to the caller.
type Error struct {
	Kind    Kind
	Message string

	// UpstreamStatus is the HTTP status returned by the upstream, 0 when none was received.
	UpstreamStatus int
	// Page is the catalogue page that failed, 0 when not applicable.
	Page int

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}

	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func BlockedHost(host string) *Error {
	return &Error{Kind: KindBlockedHost, Message: "host is not allowed: " + host}
}

func Timeout(err error) *Error {
	return &Error{Kind: KindTimeout, Message: "upstream request timed out", Err: err}
}

func UnsupportedContent(contentType string) *Error {
	if contentType == "" {
		contentType = "unknown"
	}

	return &Error{Kind: KindUnsupportedContent, Message: "unsupported content type: " + contentType}
}

func NoContent() *Error {
	return &Error{Kind: KindNoContent, Message: "not enough readable text on the page"}
}

// UpstreamStatus reports a non-success HTTP status received from target.
func UpstreamStatus(target string, status int) *Error {
	return &Error{
		Kind:           KindUpstream,
		Message:        fmt.Sprintf("%s returned status %d", target, status),
		UpstreamStatus: status,
	}
}

// UpstreamFailure reports a transport or decoding failure talking to target.
func UpstreamFailure(target string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: target + " request failed", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return 0
}

// Status maps err to the HTTP status the caller should receive.
func Status(err error) int {
	switch KindOf(err) {
	case KindValidation, KindBlockedHost:
		return http.StatusBadRequest
	case KindUpstream:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindUnsupportedContent:
		return http.StatusUnsupportedMediaType
	case KindNoContent:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the caller-safe message of err, or "" if err carries none.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindUpstream && e.Err != nil && e.UpstreamStatus == 0 {
			return e.Message + ": " + e.Err.Error()
		}

		return e.Message
	}

	return ""
}
