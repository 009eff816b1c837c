package model

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a failed participant call. The engine never retries;
// the kind exists for reporting and metrics.
type ErrorKind string

const (
	KindTimeout   ErrorKind = "timeout"
	KindAuth      ErrorKind = "auth"
	KindRateLimit ErrorKind = "rate_limit"
	KindTransport ErrorKind = "transport"
	KindMalformed ErrorKind = "malformed"
	KindPanic     ErrorKind = "panic"
	KindUnknown   ErrorKind = "unknown"
)

// Error is the normalized failure returned by adapters and by the round
// executor when it converts a raw failure.
type Error struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *Error) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the ErrorKind of err, inferring one for errors that were
// not produced by an adapter.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindTransport
	}
	return KindUnknown
}

// KindFromStatus maps an HTTP status code returned by a vendor API to an
// ErrorKind.
func KindFromStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429:
		return KindRateLimit
	case status == 408 || status == 504:
		return KindTimeout
	case status >= 500:
		return KindTransport
	case status >= 400:
		return KindMalformed
	default:
		return KindUnknown
	}
}

// Wrap normalizes err into an *Error for provider, keeping an existing kind.
func Wrap(provider string, err error) error {
	if err == nil {
		return nil
	}
	var me *Error
	if errors.As(err, &me) {
		return err
	}
	return &Error{Provider: provider, Kind: KindOf(err), Err: err}
}
