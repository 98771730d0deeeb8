// Package quictransport is the concrete adapter between
// github.com/quic-go/quic-go and the engine's transport.Capability and
// h3client.Transport seams. It never interprets HTTP/3 frames — its only
// job is accepting connections and streams, turning their lifecycle into
// transport.Event values, and executing the outbound operations the
// dispatcher and worker pool issue against the opaque handles those
// events carry.
package quictransport

import (
	"context"
	"crypto/tls"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"
	"golang.org/x/sync/errgroup"

	"github.com/nine114/h3d/internal/applog"
	"github.com/nine114/h3d/internal/h3err"
	"github.com/nine114/h3d/internal/transport"
)

// listener is the subset of *quic.Listener the adapter needs; narrowed so
// tests can supply a double without reimplementing the whole type.
type listener interface {
	Accept(ctx context.Context) (quic.Connection, error)
}

// conn is the subset of quic.Connection the adapter drives a connection
// with.
type conn interface {
	AcceptStream(ctx context.Context) (quic.Stream, error)
	AcceptUniStream(ctx context.Context) (quic.ReceiveStream, error)
	OpenUniStreamSync(ctx context.Context) (quic.SendStream, error)
	OpenStreamSync(ctx context.Context) (quic.Stream, error)
	CloseWithError(code quic.ApplicationErrorCode, reason string) error
}

// sendStream and receiveStream narrow quic.SendStream/quic.ReceiveStream
// to the handful of methods this package calls.
type sendStream interface {
	StreamID() quic.StreamID
	Write(p []byte) (int, error)
	Close() error
	CancelWrite(quic.StreamErrorCode)
	Context() context.Context
}

type receiveStream interface {
	StreamID() quic.StreamID
	Read(p []byte) (int, error)
	CancelRead(quic.StreamErrorCode)
}

const defaultReadBufferSize = 16 * 1024

// Adapter implements transport.Capability over a QUIC listener.
type Adapter struct {
	listener listener

	events chan transport.Event

	mu    sync.Mutex
	conns map[string]conn
}

// New wraps listener as a transport.Capability. ln is typically the
// result of Listen, but tests pass a double satisfying the narrower
// listener interface above.
func New(ln listener) *Adapter {
	return &Adapter{
		listener: ln,
		events:   make(chan transport.Event, 256),
		conns:    make(map[string]conn),
	}
}

// Listen starts a quic-go listener on addr and wraps it in an Adapter.
func Listen(addr string, tlsConf *tls.Config, quicConf *quic.Config) (*Adapter, error) {
	ln, err := quic.ListenAddr(addr, tlsConf, quicConf)
	if err != nil {
		return nil, errors.Wrap(h3err.ErrTransportFailure, "quictransport: listen failed: "+err.Error())
	}
	return New(ln), nil
}

// Events implements transport.Capability.
func (a *Adapter) Events() <-chan transport.Event { return a.events }

// Serve accepts connections until ctx is done or the listener fails, then
// closes the event channel. Callers run it in its own goroutine alongside
// dispatch.Dispatcher.Run.
func (a *Adapter) Serve(ctx context.Context) error {
	defer close(a.events)
	g, gctx := errgroup.WithContext(ctx)
	for {
		c, err := a.listener.Accept(ctx)
		if err != nil {
			_ = g.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(h3err.ErrTransportFailure, "quictransport: accept failed: "+err.Error())
		}
		g.Go(func() error {
			a.handleConnection(gctx, c)
			return nil
		})
	}
}

func (a *Adapter) handleConnection(ctx context.Context, c conn) {
	id := uuid.NewString()
	wc := &wireConn{id: id}

	a.mu.Lock()
	a.conns[id] = c
	a.mu.Unlock()

	a.events <- transport.Event{Kind: transport.EventConnectionEstablished, Conn: wc}

	var g errgroup.Group
	g.Go(func() error { a.acceptBidiStreams(ctx, wc, c); return nil })
	g.Go(func() error { a.acceptUniStreams(ctx, wc, c); return nil })
	_ = g.Wait()

	a.mu.Lock()
	delete(a.conns, id)
	a.mu.Unlock()

	a.events <- transport.Event{Kind: transport.EventConnectionClosed, Conn: wc}
}

func (a *Adapter) acceptBidiStreams(ctx context.Context, wc *wireConn, c conn) {
	for {
		s, err := c.AcceptStream(ctx)
		if err != nil {
			return
		}
		ws := &wireStream{id: uint64(s.StreamID()), send: s, recv: s}
		done := make(chan struct{})
		go a.watchStopSending(wc, ws, s, done)
		go func() {
			defer close(done)
			a.readLoop(wc, ws)
		}()
	}
}

// watchStopSending mirrors cloudflared's connection-quic.go: quic-go
// cancels a stream's Context when the peer sends STOP_SENDING on it, so a
// bidirectional stream's send side is watched independently of readLoop's
// Read loop on the receive side. done is closed when readLoop returns,
// which ends the watch without emitting anything for a stream that closed
// normally.
func (a *Adapter) watchStopSending(wc *wireConn, ws *wireStream, s sendStream, done chan struct{}) {
	select {
	case <-s.Context().Done():
		a.events <- transport.Event{Kind: transport.EventStopSending, Conn: wc, Stream: ws}
	case <-done:
	}
}

func (a *Adapter) acceptUniStreams(ctx context.Context, wc *wireConn, c conn) {
	for {
		s, err := c.AcceptUniStream(ctx)
		if err != nil {
			return
		}
		ws := &wireStream{id: uint64(s.StreamID()), recv: s}
		go a.readLoop(wc, ws)
	}
}

func (a *Adapter) readLoop(wc *wireConn, ws *wireStream) {
	buf := make([]byte, defaultReadBufferSize)
	for {
		n, err := ws.recv.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			a.events <- transport.Event{Kind: transport.EventReceive, Conn: wc, Stream: ws, Data: data}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				a.events <- transport.Event{Kind: transport.EventReceiveFin, Conn: wc, Stream: ws}
				return
			}
			a.events <- transport.Event{Kind: transport.EventStreamReset, Conn: wc, Stream: ws}
			return
		}
	}
}

// OpenUniStream implements transport.Capability.
func (a *Adapter) OpenUniStream(ctx context.Context, c transport.Conn) (transport.Stream, error) {
	wc, ok := c.(*wireConn)
	if !ok {
		return nil, errors.Wrap(h3err.ErrTransportFailure, "quictransport: foreign Conn handle")
	}
	a.mu.Lock()
	raw, ok := a.conns[wc.id]
	a.mu.Unlock()
	if !ok {
		return nil, errors.Wrap(h3err.ErrTransportFailure, "quictransport: connection gone")
	}
	s, err := raw.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, errors.Wrap(h3err.ErrTransportFailure, "quictransport: open uni stream failed: "+err.Error())
	}
	return &wireStream{id: uint64(s.StreamID()), send: s}, nil
}

// Write implements transport.Capability.
func (a *Adapter) Write(stream transport.Stream, p []byte, fin bool) error {
	ws, ok := stream.(*wireStream)
	if !ok || ws.send == nil {
		return errors.Wrap(h3err.ErrTransportFailure, "quictransport: stream not writable")
	}
	if len(p) > 0 {
		if _, err := ws.send.Write(p); err != nil {
			return errors.Wrap(h3err.ErrTransportFailure, "quictransport: write failed: "+err.Error())
		}
	}
	if fin {
		if err := ws.send.Close(); err != nil {
			return errors.Wrap(h3err.ErrTransportFailure, "quictransport: close failed: "+err.Error())
		}
	}
	return nil
}

// ResetStream implements transport.Capability.
func (a *Adapter) ResetStream(stream transport.Stream, code uint64) error {
	ws, ok := stream.(*wireStream)
	if !ok || ws.send == nil {
		return errors.Wrap(h3err.ErrTransportFailure, "quictransport: stream not resettable")
	}
	ws.send.CancelWrite(quic.StreamErrorCode(code))
	return nil
}

// StopSendingStream implements transport.Capability.
func (a *Adapter) StopSendingStream(stream transport.Stream, code uint64) error {
	ws, ok := stream.(*wireStream)
	if !ok || ws.recv == nil {
		return errors.Wrap(h3err.ErrTransportFailure, "quictransport: stream not receivable")
	}
	ws.recv.CancelRead(quic.StreamErrorCode(code))
	return nil
}

// CloseConnection implements transport.Capability.
func (a *Adapter) CloseConnection(c transport.Conn, code uint64, reason string) error {
	return a.closeConn(c, code, reason)
}

// RejectConnection implements transport.Capability. It is the same
// operation as CloseConnection from quic-go's point of view; the
// dispatcher calls it before a connection is admitted rather than during
// normal teardown.
func (a *Adapter) RejectConnection(c transport.Conn, code uint64, reason string) error {
	applog.L(nil).WithField("conn", c.ID()).Debug("quictransport: rejecting connection over capacity")
	return a.closeConn(c, code, reason)
}

func (a *Adapter) closeConn(c transport.Conn, code uint64, reason string) error {
	wc, ok := c.(*wireConn)
	if !ok {
		return errors.Wrap(h3err.ErrTransportFailure, "quictransport: foreign Conn handle")
	}
	a.mu.Lock()
	raw, ok := a.conns[wc.id]
	a.mu.Unlock()
	if !ok {
		return nil
	}
	if err := raw.CloseWithError(quic.ApplicationErrorCode(code), reason); err != nil {
		return errors.Wrap(h3err.ErrTransportFailure, "quictransport: close connection failed: "+err.Error())
	}
	return nil
}
