// Package h3err defines the engine's error taxonomy: sentinel errors the
// rest of the module wraps with github.com/pkg/errors, classified with
// errors.Is. ErrNotFound and ErrUnknown extend the same wire-failure
// vocabulary to the generic infrastructure errors the startup path
// raises (a missing credential file, an unclassified os error), so the
// module doesn't carry a second sentinel-error package for two values.
package h3err

import "github.com/pkg/errors"

var (
	// ErrProtocolViolation covers malformed frame sequences, QPACK decode
	// failures and forbidden pseudo-header usage on a request stream.
	// The stream replies 400 and terminates; the connection survives.
	ErrProtocolViolation = errors.New("h3: protocol violation")

	// ErrApplicationFailure covers a panic or error surfaced by the
	// application callback, or a callback-returned status outside
	// [100,599]. The stream replies 500; the connection survives.
	ErrApplicationFailure = errors.New("h3: application failure")

	// ErrCapacityExceeded covers a full work queue (stream replies 503) or
	// the engine-enforced connection cap (the connection is rejected with
	// H3_EXCESSIVE_LOAD).
	ErrCapacityExceeded = errors.New("h3: capacity exceeded")

	// ErrPeerCancelled covers a RESET_STREAM or STOP_SENDING from the
	// peer. Work in flight is dropped silently; no reply is sent.
	ErrPeerCancelled = errors.New("h3: peer cancelled stream")

	// ErrConnectionFatal covers connection-scope violations: a second peer
	// control stream, or a frame on the wrong stream type. The connection
	// is closed with an HTTP/3 error code.
	ErrConnectionFatal = errors.New("h3: fatal connection error")

	// ErrTransportFailure covers underlying QUIC errors surfaced to the
	// engine as connection-closed events.
	ErrTransportFailure = errors.New("h3: transport failure")

	// ErrDrainTimeout is raised into a worker that was still running an
	// application callback when the lifecycle controller's drain deadline
	// elapsed.
	ErrDrainTimeout = errors.New("h3: drain timeout")

	// ErrNotFound covers a missing file or object outside the wire
	// protocol — a credential file the startup path expected to find.
	ErrNotFound = errors.New("h3: not found")

	// ErrUnknown covers an infrastructure failure that doesn't fit any
	// other category, such as an unclassified os error while loading
	// configuration.
	ErrUnknown = errors.New("h3: unknown")
)

// IsProtocolViolation reports whether err (or something it wraps) is ErrProtocolViolation.
func IsProtocolViolation(err error) bool { return errors.Is(err, ErrProtocolViolation) }

// IsApplicationFailure reports whether err (or something it wraps) is ErrApplicationFailure.
func IsApplicationFailure(err error) bool { return errors.Is(err, ErrApplicationFailure) }

// IsCapacityExceeded reports whether err (or something it wraps) is ErrCapacityExceeded.
func IsCapacityExceeded(err error) bool { return errors.Is(err, ErrCapacityExceeded) }

// IsPeerCancelled reports whether err (or something it wraps) is ErrPeerCancelled.
func IsPeerCancelled(err error) bool { return errors.Is(err, ErrPeerCancelled) }

// IsConnectionFatal reports whether err (or something it wraps) is ErrConnectionFatal.
func IsConnectionFatal(err error) bool { return errors.Is(err, ErrConnectionFatal) }

// IsTransportFailure reports whether err (or something it wraps) is ErrTransportFailure.
func IsTransportFailure(err error) bool { return errors.Is(err, ErrTransportFailure) }

// IsDrainTimeout reports whether err (or something it wraps) is ErrDrainTimeout.
func IsDrainTimeout(err error) bool { return errors.Is(err, ErrDrainTimeout) }

// IsNotFound reports whether err (or something it wraps) is ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsUnknown reports whether err (or something it wraps) is ErrUnknown.
func IsUnknown(err error) bool { return errors.Is(err, ErrUnknown) }

// H3ErrorCode is an HTTP/3 connection-level error code (RFC 9114 §8.1).
type H3ErrorCode uint64

// Connection error codes used by this engine.
const (
	CodeNoError            H3ErrorCode = 0x100
	CodeGeneralProtocol    H3ErrorCode = 0x101
	CodeInternalError      H3ErrorCode = 0x102
	CodeStreamCreation     H3ErrorCode = 0x103
	CodeClosedCriticalStrm H3ErrorCode = 0x104
	CodeFrameUnexpected    H3ErrorCode = 0x105
	CodeFrameError         H3ErrorCode = 0x106
	CodeExcessiveLoad      H3ErrorCode = 0x107
	CodeIDError            H3ErrorCode = 0x108
	CodeSettingsError      H3ErrorCode = 0x109
	CodeMissingSettings    H3ErrorCode = 0x10a
	CodeRequestRejected    H3ErrorCode = 0x10b
	CodeRequestCancelled   H3ErrorCode = 0x10c
	CodeRequestIncomplete  H3ErrorCode = 0x10d
	CodeMessageError       H3ErrorCode = 0x10e
	CodeConnectError       H3ErrorCode = 0x10f
	CodeVersionFallback    H3ErrorCode = 0x110
	CodeQPACKDecompression H3ErrorCode = 0x200
	CodeQPACKEncoderStream H3ErrorCode = 0x201
	CodeQPACKDecoderStream H3ErrorCode = 0x202
)

// String renders the error code the way logs want it: lower-case hex.
func (c H3ErrorCode) String() string {
	return hex(uint64(c))
}

func hex(v uint64) string {
	const digits = "0123456789abcdef"
	if v == 0 {
		return "0x0"
	}
	var buf [18]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v%16]
		v /= 16
	}
	return "0x" + string(buf[i:])
}
