package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrRobotNotFound       = errors.New("robot not found")
	ErrHourNotMaterialized = errors.New("hour not materialized")
	ErrInvalidHour         = errors.New("invalid hour format")
	ErrInvalidRange        = errors.New("invalid time range")
	ErrUnmappedStatus      = errors.New("internal status has no MDS state mapping")
)

// Kind selects the HTTP surface behavior for an AppError. Validation and
// not-found errors are terminal for the request; processing tells the caller
// to retry later; upstream failures are the warehouse's fault, not the
// caller's.
type Kind int

const (
	KindValidation Kind = iota
	KindNotFound
	KindProcessing
	KindUpstream
)

// AppError carries the MDS error payload fields alongside the wrapped cause.
type AppError struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewValidation(code, message string) *AppError {
	return &AppError{Kind: KindValidation, Code: code, Message: message}
}

func NewNotFound(code, message string) *AppError {
	return &AppError{Kind: KindNotFound, Code: code, Message: message}
}

func NewProcessing(code, message string) *AppError {
	return &AppError{Kind: KindProcessing, Code: code, Message: message}
}

func NewUpstream(code, message string, err error) *AppError {
	return &AppError{Kind: KindUpstream, Code: code, Message: message, Err: err}
}
