package usecase

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrorInsufficientCredit ErrorCode = "INSUFFICIENT_CREDIT"
	ErrorInProgress         ErrorCode = "IN_PROGRESS"
	ErrorUpstream           ErrorCode = "UPSTREAM_ERROR"
	ErrorMalformedResponse  ErrorCode = "MALFORMED_RESPONSE"
	ErrorRender             ErrorCode = "RENDER_ERROR"
	ErrorDelivery           ErrorCode = "DELIVERY_ERROR"
	ErrorInternal           ErrorCode = "INTERNAL_ERROR"
)

// Error is the only error type Generate returns. Stage is the state the job
// was in when it failed.
type Error struct {
	Code   ErrorCode
	Reason string
	Stage  Stage
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s) at %s", e.Code, e.Reason, e.Stage)
	}
	return fmt.Sprintf("usecase: %s (%s) at %s: %v", e.Code, e.Reason, e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf returns the code of err, or INTERNAL_ERROR for foreign errors.
func CodeOf(err error) ErrorCode {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Code
	}
	return ErrorInternal
}
