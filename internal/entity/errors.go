package entity

import (
	"errors"
	"fmt"
)

type ErrorClass string

const (
	ErrorClassValidation ErrorClass = "validation"
	ErrorClassSignature  ErrorClass = "signature"
	ErrorClassNetwork    ErrorClass = "network"
	ErrorClassExchange   ErrorClass = "exchange"
	ErrorClassInternal   ErrorClass = "internal"
)

type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// SignatureError means a request could not be signed. It points at a configuration or
// programming fault, never at the exchange.
type SignatureError struct {
	Reason string
}

func (e *SignatureError) Error() string {
	return "signature: " + e.Reason
}

// NetworkError wraps transport level failures: timeouts, refused connections, unreadable bodies.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ExchangeError is a rejection reported by the exchange itself.
type ExchangeError struct {
	HTTPStatus int
	Code       int
	Meaning    string
	Message    string
}

func (e *ExchangeError) Error() string {
	if e.Meaning != "" {
		return fmt.Sprintf("exchange rejected request: status=%d code=%d meaning=%s message=%s", e.HTTPStatus, e.Code, e.Meaning, e.Message)
	}
	return fmt.Sprintf("exchange rejected request: status=%d code=%d message=%s", e.HTTPStatus, e.Code, e.Message)
}

// ResultError is the serializable form of any of the errors above.
type ResultError struct {
	Class   ErrorClass `json:"class"`
	Code    int        `json:"code,omitempty"`
	Meaning string     `json:"meaning,omitempty"`
	Message string     `json:"message"`
}

func NewResultError(err error) *ResultError {
	if err == nil {
		return nil
	}

	return &ResultError{
		Class:   ClassifyError(err),
		Code:    exchangeCode(err),
		Meaning: exchangeMeaning(err),
		Message: err.Error(),
	}
}

func ClassifyError(err error) ErrorClass {
	var (
		validationErr *ValidationError
		signatureErr  *SignatureError
		networkErr    *NetworkError
		exchangeErr   *ExchangeError
	)

	switch {
	case errors.As(err, &validationErr):
		return ErrorClassValidation
	case errors.As(err, &signatureErr):
		return ErrorClassSignature
	case errors.As(err, &networkErr):
		return ErrorClassNetwork
	case errors.As(err, &exchangeErr):
		return ErrorClassExchange
	default:
		return ErrorClassInternal
	}
}

func exchangeCode(err error) int {
	var exchangeErr *ExchangeError
	if errors.As(err, &exchangeErr) {
		return exchangeErr.Code
	}
	return 0
}

func exchangeMeaning(err error) string {
	var exchangeErr *ExchangeError
	if errors.As(err, &exchangeErr) {
		return exchangeErr.Meaning
	}
	return ""
}
