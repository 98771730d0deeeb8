package quictransport

import (
	"context"
	"crypto/tls"
	"io"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/nine114/h3d/internal/h3client"
	"github.com/nine114/h3d/internal/h3err"
)

const defaultClientReadBufferSize = 16 * 1024

// ClientTransport implements h3client.Transport over a single quic-go
// connection, opening streams synchronously on demand the way a
// request/response client does — the mirror of Adapter's event-driven
// server side over the same quic-go primitives.
type ClientTransport struct {
	conn conn
}

// NewClientTransport wraps an established QUIC connection.
func NewClientTransport(c conn) *ClientTransport {
	return &ClientTransport{conn: c}
}

// Dial opens a QUIC connection to addr and wraps it as a ClientTransport.
func Dial(ctx context.Context, addr string, tlsConf *tls.Config, quicConf *quic.Config) (*ClientTransport, error) {
	c, err := quic.DialAddr(ctx, addr, tlsConf, quicConf)
	if err != nil {
		return nil, errors.Wrap(h3err.ErrTransportFailure, "quictransport: dial failed: "+err.Error())
	}
	return NewClientTransport(c), nil
}

// OpenControlStream implements h3client.Transport.
func (t *ClientTransport) OpenControlStream(ctx context.Context) (h3client.SendStream, error) {
	s, err := t.conn.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, errors.Wrap(h3err.ErrTransportFailure, "quictransport: open control stream failed: "+err.Error())
	}
	return &sendStreamAdapter{send: s}, nil
}

// OpenRequestStream implements h3client.Transport.
func (t *ClientTransport) OpenRequestStream(ctx context.Context) (h3client.RequestStream, error) {
	s, err := t.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, errors.Wrap(h3err.ErrTransportFailure, "quictransport: open request stream failed: "+err.Error())
	}
	return &requestStreamAdapter{
		sendStreamAdapter: sendStreamAdapter{send: s},
		recv:              s,
		buf:               make([]byte, defaultClientReadBufferSize),
	}, nil
}

// sendStreamAdapter implements h3client.SendStream over a quic-go send
// stream.
type sendStreamAdapter struct {
	send sendStream
}

func (a *sendStreamAdapter) Write(p []byte, fin bool) error {
	if len(p) > 0 {
		if _, err := a.send.Write(p); err != nil {
			return errors.Wrap(h3err.ErrTransportFailure, "quictransport: write failed: "+err.Error())
		}
	}
	if fin {
		return a.Close()
	}
	return nil
}

func (a *sendStreamAdapter) Close() error {
	if err := a.send.Close(); err != nil {
		return errors.Wrap(h3err.ErrTransportFailure, "quictransport: close failed: "+err.Error())
	}
	return nil
}

// requestStreamAdapter implements h3client.RequestStream. Read races the
// blocking quic-go Read against ctx cancellation the way dispatch's event
// loop races channel receives against shutdown, since quic-go streams
// take no context on Read.
type requestStreamAdapter struct {
	sendStreamAdapter
	recv receiveStream
	buf  []byte
}

type readResult struct {
	n   int
	err error
}

func (a *requestStreamAdapter) Read(ctx context.Context) ([]byte, bool, error) {
	resultCh := make(chan readResult, 1)
	go func() {
		n, err := a.recv.Read(a.buf)
		resultCh <- readResult{n: n, err: err}
	}()

	select {
	case <-ctx.Done():
		a.recv.CancelRead(0)
		return nil, false, errors.Wrap(h3err.ErrTransportFailure, "quictransport: read cancelled: "+ctx.Err().Error())
	case res := <-resultCh:
		var chunk []byte
		if res.n > 0 {
			chunk = make([]byte, res.n)
			copy(chunk, a.buf[:res.n])
		}
		if res.err != nil {
			if errors.Is(res.err, io.EOF) {
				return chunk, true, nil
			}
			return chunk, false, errors.Wrap(h3err.ErrTransportFailure, "quictransport: read failed: "+res.err.Error())
		}
		return chunk, false, nil
	}
}
