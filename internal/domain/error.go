package domain

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeUnavailable     ErrorCode = "UNAVAILABLE"
	CodeFailedPrecond   ErrorCode = "FAILED_PRECONDITION"
	CodeInternal        ErrorCode = "INTERNAL"
	CodeCanceled        ErrorCode = "CANCELED"
	CodeDeadlineExceed  ErrorCode = "DEADLINE_EXCEEDED"
	CodeAborted         ErrorCode = "ABORTED"
)

var (
	ErrParse              = errors.New("parse source")
	ErrEntityNotFound     = errors.New("entity not found")
	ErrNotUIBearing       = errors.New("entity has no ui")
	ErrGenerate           = errors.New("generate registration")
	ErrBuild              = errors.New("sub-build failed")
	ErrNoHTMLAsset        = errors.New("sub-build produced no html asset")
	ErrSessionClosed      = errors.New("build session closed")
	ErrBridgeClosed       = errors.New("bridge closed")
	ErrBridgeNotReady     = errors.New("bridge not connected")
	ErrHandshakeTimeout   = errors.New("bridge handshake timed out")
	ErrSuperseded         = errors.New("superseded by a newer setup")
	ErrInvalidInput       = errors.New("invalid tool input")
	ErrToolFailed         = errors.New("tool call failed")
	ErrInvalidPath        = errors.New("invalid path")
	ErrInvalidCommand     = errors.New("invalid command")
	ErrExecutableNotFound = errors.New("executable not found")
)

type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
	Meta    map[string]string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Op == "" {
		if msg == "" {
			return string(e.Code)
		}
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func E(code ErrorCode, op, msg string, cause error) *Error {
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Code:    code,
		Op:      op,
		Message: msg,
		Cause:   cause,
	}
}

func Wrap(code ErrorCode, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		if existing.Op != "" || op == "" {
			return existing
		}
		return &Error{
			Code:    existing.Code,
			Op:      op,
			Message: existing.Message,
			Cause:   existing.Cause,
			Meta:    existing.Meta,
		}
	}
	return E(code, op, "", err)
}

func CodeFrom(err error) (ErrorCode, bool) {
	if err == nil {
		return "", false
	}
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Code != "" {
		return domainErr.Code, true
	}
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidPath), errors.Is(err, ErrParse):
		return CodeInvalidArgument, true
	case errors.Is(err, ErrEntityNotFound), errors.Is(err, ErrNotUIBearing), errors.Is(err, ErrNoHTMLAsset):
		return CodeNotFound, true
	case errors.Is(err, ErrBuild), errors.Is(err, ErrGenerate):
		return CodeFailedPrecond, true
	case errors.Is(err, ErrSessionClosed), errors.Is(err, ErrBridgeClosed), errors.Is(err, ErrBridgeNotReady):
		return CodeUnavailable, true
	case errors.Is(err, ErrHandshakeTimeout):
		return CodeDeadlineExceed, true
	case errors.Is(err, ErrSuperseded):
		return CodeAborted, true
	case errors.Is(err, ErrToolFailed):
		return CodeInternal, true
	default:
		return "", false
	}
}
