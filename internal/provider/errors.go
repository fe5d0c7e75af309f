package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
)

// Kind classifies why a fetch failed.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNetworkUnreachable covers DNS failures and refused or reset connections.
	KindNetworkUnreachable
	// KindTimeout is a request that exceeded its deadline.
	KindTimeout
	// KindHTTPStatus is a non-2xx response.
	KindHTTPStatus
	// KindSchemaMismatch is a body that could not be decoded or lacks required fields.
	KindSchemaMismatch
	// KindRejected is a well-formed body carrying an explicit failure flag.
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindNetworkUnreachable:
		return "network_unreachable"
	case KindTimeout:
		return "timeout"
	case KindHTTPStatus:
		return "http_status"
	case KindSchemaMismatch:
		return "schema_mismatch"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// FetchError is the only error type provider clients return.
type FetchError struct {
	Provider   string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Reason is a short human string for display in "unavailable" markers.
func (e *FetchError) Reason() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %d", e.Kind, e.StatusCode)
	}
	return e.Kind.String()
}

// KindOf returns the Kind of err, classifying raw transport errors when err is
// not already a FetchError.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Classify(err)
}

// Classify maps a transport-level error to a Kind.
func Classify(err error) Kind {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return KindUnknown
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return KindTimeout
		}
		return KindNetworkUnreachable
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return KindNetworkUnreachable
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindNetworkUnreachable
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindNetworkUnreachable
	}
	return KindUnknown
}

// Wrap turns err into a FetchError for name, keeping an existing Kind.
func Wrap(name string, err error) *FetchError {
	if err == nil {
		return nil
	}
	if fe, ok := err.(*FetchError); ok && fe.Provider == name {
		return fe
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return &FetchError{Provider: name, Kind: fe.Kind, StatusCode: fe.StatusCode, Err: err}
	}
	return &FetchError{Provider: name, Kind: Classify(err), Err: err}
}

// Schema builds a KindSchemaMismatch error.
func Schema(name, format string, args ...any) *FetchError {
	return &FetchError{Provider: name, Kind: KindSchemaMismatch, Err: fmt.Errorf(format, args...)}
}

// Rejected builds a KindRejected error.
func Rejected(name, format string, args ...any) *FetchError {
	return &FetchError{Provider: name, Kind: KindRejected, Err: fmt.Errorf(format, args...)}
}
