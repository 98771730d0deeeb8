package h3msg

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/nine114/h3d/internal/h3err"
	"github.com/nine114/h3d/internal/h3frame"
	"github.com/nine114/h3d/internal/qpack"
)

// forbiddenHeaders is the wire header set RFC 9114 §4.2 forbids; the
// synthesizer strips them silently rather than rejecting the response.
var forbiddenHeaders = map[string]bool{
	"transfer-encoding": true,
	"connection":        true,
	"keep-alive":        true,
	"upgrade":           true,
	"te":                true,
	"proxy-connection":  true,
}

// internalMarkerPrefix flags header names the application may set for its
// own bookkeeping that must never reach the wire (the convention is the
// caller's; the synthesizer just strips anything so marked).
const internalMarkerPrefix = "x-h3-internal-"

// Response is what the application callback returns for one request.
type Response struct {
	Status  int
	Headers []HeaderField
	Body    [][]byte
}

// sanitizeHeaders lower-cases names and drops anything forbidden or
// internal-marked, preserving relative order otherwise.
func sanitizeHeaders(headers []HeaderField) []HeaderField {
	out := make([]HeaderField, 0, len(headers))
	for _, h := range headers {
		name := strings.ToLower(h.Name)
		if forbiddenHeaders[name] || strings.HasPrefix(name, internalMarkerPrefix) {
			continue
		}
		out = append(out, HeaderField{Name: name, Value: h.Value})
	}
	return out
}

// BuildHeaderFrame encodes the HEADERS frame for a response: :status
// first, then the sanitized user headers.
func BuildHeaderFrame(status int, headers []HeaderField) []byte {
	fields := make([]HeaderField, 0, len(headers)+1)
	fields = append(fields, HeaderField{Name: ":status", Value: strconv.Itoa(status)})
	fields = append(fields, sanitizeHeaders(headers)...)
	block := qpack.EncodeFieldSection(fields)
	return h3frame.Build(h3frame.TypeHeaders, block)
}

// BuildDataFrame encodes one DATA frame carrying chunk.
func BuildDataFrame(chunk []byte) []byte {
	return h3frame.Build(h3frame.TypeData, chunk)
}

// BuildResponse encodes a complete response as HEADERS followed by one
// DATA frame per non-empty body chunk, in order. The caller writes the
// result with the transport-level FIN.
func BuildResponse(status int, headers []HeaderField, body [][]byte) []byte {
	buf := BuildHeaderFrame(status, headers)
	for _, chunk := range body {
		if len(chunk) == 0 {
			continue
		}
		buf = append(buf, BuildDataFrame(chunk)...)
	}
	return buf
}

// StatusText helpers used when synthesizing canned error responses.
const (
	StatusBadRequest          = 400
	StatusInternalServerError = 500
	StatusServiceUnavailable  = 503
)

// BuildErrorResponse builds a canned status-only response with no body,
// for the 400/500/503 paths the worker pool and dispatcher emit directly.
func BuildErrorResponse(status int) []byte {
	return BuildResponse(status, nil, nil)
}

// ResponseMessage is a response as read back off the wire by the client
// engine — the mirror of Request on the receiving side.
type ResponseMessage struct {
	Status  int
	Headers []HeaderField
	Body    []byte
}

// AssembleResponseMessage parses the full byte sequence of one response
// stream (all chunks through FIN) into a ResponseMessage. It is the
// client-side mirror of AssembleRequest: same frame walk, but the only
// pseudo-header is :status and there is no required-field set beyond it.
func AssembleResponseMessage(buf []byte) (*ResponseMessage, error) {
	frames, consumed := h3frame.ParseFrames(buf)
	if consumed != len(buf) {
		return nil, errors.Wrap(h3err.ErrProtocolViolation, "h3msg: trailing incomplete frame in response")
	}

	msg := &ResponseMessage{Status: -1}
	var sawHeaders bool

	for _, f := range frames {
		switch {
		case f.Type == h3frame.TypeHeaders:
			if sawHeaders {
				return nil, errors.Wrap(h3err.ErrProtocolViolation, "h3msg: duplicate HEADERS frame in response")
			}
			fields, err := qpack.DecodeFieldSection(f.Payload)
			if err != nil {
				return nil, errors.Wrap(h3err.ErrProtocolViolation, "h3msg: qpack decode failed")
			}
			if err := populateResponseFields(msg, fields); err != nil {
				return nil, err
			}
			sawHeaders = true

		case f.Type == h3frame.TypeData:
			if !sawHeaders {
				return nil, errors.Wrap(h3err.ErrProtocolViolation, "h3msg: DATA before HEADERS in response")
			}
			msg.Body = append(msg.Body, f.Payload...)

		case h3frame.IsControlOnly(f.Type):
			return nil, errors.Wrap(h3err.ErrProtocolViolation, "h3msg: control-only frame on response stream")

		default:
			// Unknown/reserved frame types are ignored per RFC 9114 §9.
		}
	}

	if !sawHeaders {
		return nil, errors.Wrap(h3err.ErrProtocolViolation, "h3msg: no HEADERS frame in response")
	}
	if msg.Status < 100 || msg.Status > 599 {
		return nil, errors.Wrap(h3err.ErrProtocolViolation, "h3msg: missing or invalid :status")
	}
	return msg, nil
}

func populateResponseFields(msg *ResponseMessage, fields []HeaderField) error {
	seenRegular := false
	for _, f := range fields {
		if strings.HasPrefix(f.Name, ":") {
			if seenRegular {
				return errors.Wrap(h3err.ErrProtocolViolation, "h3msg: pseudo-header after regular header in response")
			}
			if f.Name != ":status" {
				return errors.Wrap(h3err.ErrProtocolViolation, "h3msg: unknown response pseudo-header "+f.Name)
			}
			status, err := strconv.Atoi(f.Value)
			if err != nil {
				return errors.Wrap(h3err.ErrProtocolViolation, "h3msg: malformed :status value")
			}
			msg.Status = status
			continue
		}
		seenRegular = true
		msg.Headers = append(msg.Headers, f)
	}
	return nil
}
