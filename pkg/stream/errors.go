package stream

import (
	"errors"

	"github.com/tauraamui/wormhole/pkg/encoder"
	"github.com/tauraamui/wormhole/pkg/filter"
	"github.com/tauraamui/xerror"
)

var (
	ErrSourceUnavailable = xerror.NewWithKind("source_unavailable", "no frame available from source")
	ErrTransportWrite    = xerror.NewWithKind("transport_write_error", "unable to write to client transport")
	ErrFilter            = filter.ErrFilter
	ErrEncode            = encoder.ErrEncode
)

type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindSourceUnavailable ErrorKind = "source_unavailable"
	KindFilter            ErrorKind = "filter_error"
	KindEncode            ErrorKind = "encode_error"
	KindTransportWrite    ErrorKind = "transport_write_error"
	KindUnknown           ErrorKind = "unknown"
)

// KindOf classifies err into one of the session error kinds.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrTransportWrite):
		return KindTransportWrite
	case errors.Is(err, ErrSourceUnavailable):
		return KindSourceUnavailable
	case errors.Is(err, ErrFilter):
		return KindFilter
	case errors.Is(err, ErrEncode):
		return KindEncode
	default:
		return KindUnknown
	}
}

// Recoverable reports whether a session should back off and retry
// after err rather than close.
func Recoverable(err error) bool {
	return err != nil && KindOf(err) != KindTransportWrite
}
