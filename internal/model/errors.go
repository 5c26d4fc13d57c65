package model

import "errors"

// ErrorCode classifies failures surfaced to callers.
type ErrorCode string

const (
	CodeInvalidTicker       ErrorCode = "INVALID_TICKER"
	CodeTickerNotFound      ErrorCode = "TICKER_NOT_FOUND"
	CodeUnsupportedMarket   ErrorCode = "UNSUPPORTED_MARKET"
	CodeInsufficientHistory ErrorCode = "INSUFFICIENT_HISTORY"
	CodePartialSyncFailure  ErrorCode = "PARTIAL_SYNC_FAILURE"
	CodeCacheCorruption     ErrorCode = "CACHE_CORRUPTION"
	CodeCacheNotFound       ErrorCode = "CACHE_NOT_FOUND"
	CodeInvalidBars         ErrorCode = "INVALID_BARS"
	CodeEmptyBars           ErrorCode = "EMPTY_BARS"
	CodeInvalidRequest      ErrorCode = "INVALID_REQUEST"
	CodeInternal            ErrorCode = "INTERNAL_ERROR"
)

// Error is a classified failure with a user-facing message. Detail is only
// exposed in debug mode.
type Error struct {
	Code    ErrorCode
	Message string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError builds a classified error.
func NewError(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// WithDetail returns a copy carrying a debug detail.
func (e *Error) WithDetail(detail string) *Error {
	c := *e
	c.Detail = detail
	return &c
}

var (
	ErrInvalidTicker       = NewError(CodeInvalidTicker, "invalid ticker format")
	ErrTickerNotFound      = NewError(CodeTickerNotFound, "no data available for ticker")
	ErrUnsupportedMarket   = NewError(CodeUnsupportedMarket, "market segment not supported")
	ErrInsufficientHistory = NewError(CodeInsufficientHistory, "not enough history for indicators")
	ErrPartialSyncFailure  = NewError(CodePartialSyncFailure, "some months failed to sync")
	ErrCacheCorruption     = NewError(CodeCacheCorruption, "cache record is corrupt")
	ErrCacheNotFound       = NewError(CodeCacheNotFound, "cache record not found")
	ErrEmptyBars           = NewError(CodeEmptyBars, "no bars to store")
	ErrInvalidBar          = NewError(CodeInvalidBars, "invalid bar")
	ErrInvalidRequest      = NewError(CodeInvalidRequest, "invalid request")
)

// CodeOf extracts the code of a classified error, CodeInternal otherwise.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
