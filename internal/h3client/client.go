// Package h3client is the mirror-side request engine: it opens a request
// stream, encodes a request with internal/h3msg and internal/qpack, and
// reads the response back off the same stream. It never touches QUIC
// directly; it consumes a small Transport seam the same way the server
// side consumes transport.Capability — internal/quictransport implements
// both over the same quic-go connection.
package h3client

//go:generate mockgen -destination=./mocks/transport.go -package=mocks . Transport,SendStream,RequestStream

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/nine114/h3d/internal/h3err"
	"github.com/nine114/h3d/internal/h3frame"
	"github.com/nine114/h3d/internal/h3msg"
)

// SendStream is a stream this engine can write to and close.
type SendStream interface {
	Write(p []byte, fin bool) error
	Close() error
}

// RequestStream is a bidirectional request stream: writable like
// SendStream, and readable one chunk at a time. Read blocks until data,
// FIN, ctx cancellation, or an error; fin is true once FIN has been
// delivered and no more data will arrive.
type RequestStream interface {
	SendStream
	Read(ctx context.Context) (chunk []byte, fin bool, err error)
}

// Transport is everything the client engine needs from QUIC: a control
// stream to identify itself on, and request streams to carry traffic.
type Transport interface {
	OpenControlStream(ctx context.Context) (SendStream, error)
	OpenRequestStream(ctx context.Context) (RequestStream, error)
}

// Client issues requests over one HTTP/3 connection.
type Client struct {
	transport Transport

	mu            sync.Mutex
	controlOpened bool
}

// New builds a Client over transport. The connection's control stream is
// opened lazily, on the first request.
func New(transport Transport) *Client {
	return &Client{transport: transport}
}

func (c *Client) ensureControlStream(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controlOpened {
		return nil
	}
	stream, err := c.transport.OpenControlStream(ctx)
	if err != nil {
		return errors.Wrap(h3err.ErrTransportFailure, "h3client: failed to open control stream")
	}
	if err := stream.Write(h3frame.ControlPrelude(), false); err != nil {
		return errors.Wrap(h3err.ErrTransportFailure, "h3client: failed to write control prelude")
	}
	c.controlOpened = true
	return nil
}

// Do sends one request and blocks until the full response has arrived or
// ctx is done. A cancelled ctx surfaces as h3err.ErrTransportFailure; the
// underlying Transport is responsible for actually aborting the stream
// when its Read/Write see ctx.Done().
func (c *Client) Do(ctx context.Context, method, scheme, authority, path string, headers []h3msg.HeaderField, body [][]byte) (*h3msg.ResponseMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(h3err.ErrTransportFailure, "h3client: context already done")
	}
	if err := c.ensureControlStream(ctx); err != nil {
		return nil, err
	}

	stream, err := c.transport.OpenRequestStream(ctx)
	if err != nil {
		return nil, errors.Wrap(h3err.ErrTransportFailure, "h3client: failed to open request stream")
	}

	reqBytes := h3msg.BuildRequest(method, scheme, authority, path, headers, body)
	if err := stream.Write(reqBytes, true); err != nil {
		return nil, errors.Wrap(h3err.ErrTransportFailure, "h3client: failed to write request")
	}

	var buf []byte
	for {
		chunk, fin, err := stream.Read(ctx)
		if err != nil {
			return nil, errors.Wrap(h3err.ErrTransportFailure, "h3client: failed reading response")
		}
		buf = append(buf, chunk...)
		if fin {
			break
		}
	}

	resp, err := h3msg.AssembleResponseMessage(buf)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Get is a convenience wrapper for the common no-body, no-extra-headers
// case.
func (c *Client) Get(ctx context.Context, scheme, authority, path string) (*h3msg.ResponseMessage, error) {
	return c.Do(ctx, "GET", scheme, authority, path, nil, nil)
}
