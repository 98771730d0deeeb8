// Package h3msg assembles a request from the frame sequence on one
// request stream, and synthesizes the frame sequence for a response,
// enforcing the pseudo-header ordering and forbidden-header rules RFC
// 9114 §4.1-4.2 and §4.4 require.
package h3msg

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/nine114/h3d/internal/h3err"
	"github.com/nine114/h3d/internal/h3frame"
	"github.com/nine114/h3d/internal/qpack"
)

// HeaderField re-exports qpack's pair type so callers outside this
// package never need to import internal/qpack directly.
type HeaderField = qpack.HeaderField

// Request is the semantic record assembled from a complete request
// stream's bytes.
type Request struct {
	Method    string
	Scheme    string
	Authority string
	Path      string
	Query     string
	Headers   []HeaderField
	Body      []byte
}

// AssembleRequest consumes the full byte sequence of one request stream
// (all chunks through FIN) and produces a Request, or a protocol-violation
// error that the caller maps to a 400 reply.
func AssembleRequest(buf []byte) (*Request, error) {
	frames, consumed := h3frame.ParseFrames(buf)
	if consumed != len(buf) {
		return nil, violation("trailing incomplete frame")
	}

	var (
		fields     []HeaderField
		body       []byte
		sawHeaders bool
	)

	for _, f := range frames {
		switch {
		case f.Type == h3frame.TypeHeaders:
			if sawHeaders {
				return nil, violation("duplicate HEADERS frame")
			}
			decoded, err := qpack.DecodeFieldSection(f.Payload)
			if err != nil {
				return nil, errors.Wrap(h3err.ErrProtocolViolation, "h3msg: qpack decode failed")
			}
			fields = decoded
			sawHeaders = true

		case f.Type == h3frame.TypeData:
			if !sawHeaders {
				return nil, violation("DATA before HEADERS")
			}
			body = append(body, f.Payload...)

		case h3frame.IsControlOnly(f.Type):
			return nil, violation("control-only frame on request stream")

		default:
			// Unknown/reserved frame types are ignored on request
			// streams per RFC 9114 §9's extensibility rule.
		}
	}

	if !sawHeaders {
		return nil, violation("no HEADERS frame")
	}

	req, err := requestFromFields(fields)
	if err != nil {
		return nil, err
	}
	req.Body = body
	return req, nil
}

// requestFromFields splits pseudo-headers from regular headers, enforcing
// that pseudo-headers precede regular headers and that the required set
// is present.
func requestFromFields(fields []HeaderField) (*Request, error) {
	req := &Request{}
	seenRegular := false

	for _, f := range fields {
		if strings.HasPrefix(f.Name, ":") {
			if seenRegular {
				return nil, violation("pseudo-header after regular header")
			}
			switch f.Name {
			case ":method":
				req.Method = f.Value
			case ":scheme":
				req.Scheme = f.Value
			case ":authority":
				req.Authority = f.Value
			case ":path":
				req.Path = f.Value
			default:
				return nil, violation("unknown pseudo-header " + f.Name)
			}
			continue
		}
		seenRegular = true
		req.Headers = append(req.Headers, f)
	}

	if req.Method == "" {
		return nil, violation("missing :method")
	}
	if req.Authority == "" {
		return nil, violation("missing :authority")
	}
	if req.Method != "CONNECT" {
		if req.Path == "" {
			return nil, violation("missing :path")
		}
		if req.Scheme == "" {
			return nil, violation("missing :scheme")
		}
	}

	if i := strings.IndexByte(req.Path, '?'); i >= 0 {
		req.Query = req.Path[i+1:]
		req.Path = req.Path[:i]
	}

	return req, nil
}

// BuildRequest encodes a complete request as HEADERS (pseudo-headers
// first, :method/:scheme/:authority/:path) followed by one DATA frame per
// non-empty body chunk, in order — the client-side mirror of BuildResponse.
func BuildRequest(method, scheme, authority, path string, headers []HeaderField, body [][]byte) []byte {
	fields := make([]HeaderField, 0, len(headers)+4)
	fields = append(fields,
		HeaderField{Name: ":method", Value: method},
		HeaderField{Name: ":scheme", Value: scheme},
		HeaderField{Name: ":authority", Value: authority},
		HeaderField{Name: ":path", Value: path},
	)
	fields = append(fields, headers...)

	buf := h3frame.Build(h3frame.TypeHeaders, qpack.EncodeFieldSection(fields))
	for _, chunk := range body {
		if len(chunk) == 0 {
			continue
		}
		buf = append(buf, h3frame.Build(h3frame.TypeData, chunk)...)
	}
	return buf
}

func violation(msg string) error {
	return errors.Wrap(h3err.ErrProtocolViolation, "h3msg: "+msg)
}
