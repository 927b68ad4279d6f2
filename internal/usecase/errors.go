package usecase

import (
	"strconv"
	"strings"
)

type ErrorCode string

const (
	ErrorInvalidInput         ErrorCode = "INVALID_INPUT"
	ErrorRegistrationRejected ErrorCode = "REGISTRATION_REJECTED"
	ErrorUpstream             ErrorCode = "UPSTREAM_ERROR"
	ErrorCompletion           ErrorCode = "COMPLETION_FAILED"
	ErrorInternal             ErrorCode = "INTERNAL_ERROR"
)

// Error is the typed failure returned by services. UpstreamStatus and
// UpstreamBody are set when a collaborator rejected the call and its answer is
// to be passed through to the caller.
type Error struct {
	Code           ErrorCode
	Reason         string
	Err            error
	UpstreamStatus int
	UpstreamBody   string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.UpstreamStatus != 0 {
		b.WriteString(" [upstream ")
		b.WriteString(strconv.Itoa(e.UpstreamStatus))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches another *Error with the same code, so callers can test with
// errors.Is(err, &usecase.Error{Code: usecase.ErrorCompletion}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && t.Code == e.Code
}

func invalidInput(reason string) *Error {
	return &Error{Code: ErrorInvalidInput, Reason: reason}
}

func completionFailed(err error) *Error {
	return &Error{Code: ErrorCompletion, Reason: "completion_error", Err: err}
}

func registrationRejected(status int, body string, err error) *Error {
	return &Error{
		Code:           ErrorRegistrationRejected,
		Reason:         "registration_rejected",
		Err:            err,
		UpstreamStatus: status,
		UpstreamBody:   body,
	}
}

func registrationFailed(err error) *Error {
	return &Error{Code: ErrorUpstream, Reason: "registration_error", Err: err}
}
