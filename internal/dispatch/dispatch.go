// Package dispatch is the event dispatcher: the single place that turns
// transport.Event occurrences into protocol state changes, buffering
// decisions, and work-queue hand-offs (spec §4.8). It owns connection
// admission control and is the only consumer of a transport.Capability's
// event channel; everything downstream (workerpool, application code)
// only ever sees an assembled request.
package dispatch

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/nine114/h3d/internal/applog"
	"github.com/nine114/h3d/internal/h3err"
	"github.com/nine114/h3d/internal/h3frame"
	"github.com/nine114/h3d/internal/h3metrics"
	"github.com/nine114/h3d/internal/h3msg"
	"github.com/nine114/h3d/internal/registry"
	"github.com/nine114/h3d/internal/transport"
	"github.com/nine114/h3d/internal/wire"
	"github.com/nine114/h3d/internal/workerpool"
)

// Dispatcher routes transport events to connection/stream state and the
// worker queue. One Dispatcher serves one transport.Capability (one QUIC
// listener).
type Dispatcher struct {
	cap     transport.Capability
	pool    *workerpool.Pool
	reg     *registry.Registry
	metrics *h3metrics.Metrics

	admission *semaphore.Weighted

	mu          sync.RWMutex
	connections map[string]*wire.Connection
}

// New builds a Dispatcher admitting at most maxConnections concurrently
// established connections.
func New(maxConnections int, cap transport.Capability, pool *workerpool.Pool, reg *registry.Registry, metrics *h3metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		cap:         cap,
		pool:        pool,
		reg:         reg,
		metrics:     metrics,
		admission:   semaphore.NewWeighted(int64(maxConnections)),
		connections: make(map[string]*wire.Connection),
	}
}

// Run reads cap.Events() until it closes or ctx is cancelled. It is meant
// to be run in its own goroutine by the lifecycle controller.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case ev, ok := <-d.cap.Events():
			if !ok {
				return
			}
			d.handleEvent(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

// Connections returns a snapshot of every currently established connection,
// for the lifecycle controller's GOAWAY broadcast.
func (d *Dispatcher) Connections() []*wire.Connection {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*wire.Connection, 0, len(d.connections))
	for _, c := range d.connections {
		out = append(out, c)
	}
	return out
}

func (d *Dispatcher) lookup(connID string) (*wire.Connection, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.connections[connID]
	return c, ok
}

func (d *Dispatcher) handleEvent(ctx context.Context, ev transport.Event) {
	switch ev.Kind {
	case transport.EventConnectionEstablished:
		d.onConnectionEstablished(ctx, ev)
	case transport.EventConnectionClosed:
		d.onConnectionClosed(ev)
	case transport.EventSendComplete:
		// Write is synchronous in this engine's transport contract, so a
		// SendComplete carries no bookkeeping obligation.
	case transport.EventReceive:
		d.onReceive(ctx, ev, false)
	case transport.EventReceiveFin:
		d.onReceive(ctx, ev, true)
	case transport.EventStreamReset:
		d.onStreamReset(ev)
	case transport.EventStopSending:
		d.onStopSending(ev)
	}
}

func (d *Dispatcher) onConnectionEstablished(ctx context.Context, ev transport.Event) {
	if !d.admission.TryAcquire(1) {
		if d.metrics != nil {
			d.metrics.ConnectionsRejected.Inc()
		}
		_ = d.cap.RejectConnection(ev.Conn, uint64(h3err.CodeExcessiveLoad), "max connections reached")
		return
	}

	conn := wire.NewConnection(ev.Conn)
	conn.SetEstablished()

	d.mu.Lock()
	d.connections[ev.Conn.ID()] = conn
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.Connections.Inc()
	}

	log := applog.L(ctx).WithField("conn", ev.Conn.ID())

	stream, err := d.cap.OpenUniStream(ctx, ev.Conn)
	if err != nil {
		log.WithError(err).Warn("dispatch: failed to open outbound control stream")
		return
	}
	conn.SetOutboundControl(stream)
	if err := d.cap.Write(stream, h3frame.ControlPrelude(), false); err != nil {
		log.WithError(err).Warn("dispatch: failed to write control prelude")
	}
}

func (d *Dispatcher) onConnectionClosed(ev transport.Event) {
	d.mu.Lock()
	conn, ok := d.connections[ev.Conn.ID()]
	delete(d.connections, ev.Conn.ID())
	d.mu.Unlock()
	if !ok {
		return
	}

	conn.Close()
	d.admission.Release(1)
	if d.metrics != nil {
		d.metrics.Connections.Dec()
	}
	// Any work item already queued for this connection carries the same
	// *wire.Connection pointer; the worker pool checks IsClosed before it
	// replies, so queued work silently becomes a no-op rather than racing
	// a reply onto a dead connection.
	d.reg.RemoveByConn(ev.Conn.ID())
}

func (d *Dispatcher) onStreamReset(ev transport.Event) {
	conn, ok := d.lookup(ev.Conn.ID())
	if !ok || ev.Stream == nil {
		return
	}
	id := ev.Stream.ID()
	conn.MarkCancelled(id)
	d.reg.Remove(ev.Conn.ID(), id)
}

func (d *Dispatcher) onStopSending(ev transport.Event) {
	conn, ok := d.lookup(ev.Conn.ID())
	if !ok || ev.Stream == nil {
		return
	}
	id := ev.Stream.ID()
	conn.MarkCancelled(id)
	d.reg.Remove(ev.Conn.ID(), id)
	if s, ok := conn.Stream(id); ok && s.ReadyToSend() {
		_ = d.cap.ResetStream(s.Handle(), uint64(h3err.CodeRequestCancelled))
	}
}

func (d *Dispatcher) onReceive(ctx context.Context, ev transport.Event, fin bool) {
	conn, ok := d.lookup(ev.Conn.ID())
	if !ok || ev.Stream == nil {
		return
	}

	s := conn.StreamOrCreate(ev.Stream.ID())
	if !s.ReadyToSend() {
		s.Bind(ev.Stream)
	}
	if conn.IsCancelled(s.ID) {
		return
	}

	d.routeReceive(ctx, conn, s, ev.Data, fin)
}

// routeReceive buffers or dispatches a chunk of stream data according to
// the stream's role, classifying unidirectional streams by their first
// byte the first time data arrives on them (RFC 9114 §6.2).
func (d *Dispatcher) routeReceive(ctx context.Context, conn *wire.Connection, s *wire.Stream, data []byte, fin bool) {
	if wire.IsBidirectional(s.ID) {
		if fin {
			full := conn.CompleteStream(s.ID, data)
			d.completeRequest(conn, s, full)
		} else {
			conn.BufferData(s.ID, data)
		}
		return
	}

	if s.Role == wire.RoleUnknown {
		if len(data) == 0 {
			return
		}
		role, err := conn.RegisterUnidirectional(s.ID, data[0])
		if err != nil {
			d.closeFatal(ctx, conn, h3err.CodeStreamCreation, err)
			return
		}
		s.Role = role
		data = data[1:]
	}

	switch s.Role {
	case wire.RoleControl:
		if fin {
			d.closeFatal(ctx, conn, h3err.CodeClosedCriticalStrm, h3err.ErrConnectionFatal)
			return
		}
		conn.BufferData(s.ID, data)
		d.drainControlFrames(ctx, conn, s)
	default:
		// QPACK encoder/decoder streams and unknown/GREASE stream types
		// are drained and never parsed; this engine has no dynamic table
		// and sends no pushes to cancel.
	}

	if fin {
		s.Terminate()
	}
}

// drainControlFrames parses every complete frame currently buffered on the
// peer's control stream. The control stream never reaches FIN in normal
// operation, so frames are parsed incrementally as bytes accumulate.
func (d *Dispatcher) drainControlFrames(ctx context.Context, conn *wire.Connection, s *wire.Stream) {
	buf := conn.PeekBuffer(s.ID)
	frames, consumed := h3frame.ParseFrames(buf)
	conn.TrimBuffer(s.ID, consumed)

	for _, f := range frames {
		switch f.Type {
		case h3frame.TypeSettings:
			// This engine advertises and expects no settings values; a
			// peer's SETTINGS frame is accepted and ignored.
		case h3frame.TypeGoaway:
			if _, err := h3frame.ParseGoAway(f.Payload); err != nil {
				d.closeFatal(ctx, conn, h3err.CodeFrameError, err)
				return
			}
		case h3frame.TypeMaxPushID:
			if _, err := h3frame.ParseMaxPushID(f.Payload); err != nil {
				d.closeFatal(ctx, conn, h3err.CodeFrameError, err)
				return
			}
		case h3frame.TypeData, h3frame.TypeHeaders:
			d.closeFatal(ctx, conn, h3err.CodeFrameUnexpected, h3err.ErrConnectionFatal)
			return
		default:
			// Unknown frame types on the control stream are ignored per
			// RFC 9114 §9.
		}
	}
}

func (d *Dispatcher) completeRequest(conn *wire.Connection, s *wire.Stream, full []byte) {
	item := &workerpool.WorkItem{Conn: conn, StreamID: s.ID, Data: full}
	if d.pool.Enqueue(item) {
		if d.metrics != nil {
			d.metrics.QueueDepth.Set(float64(d.pool.Len()))
		}
		return
	}
	if s.ReadyToSend() {
		_ = d.cap.Write(s.Handle(), h3msg.BuildErrorResponse(h3msg.StatusServiceUnavailable), true)
	}
}

func (d *Dispatcher) closeFatal(ctx context.Context, conn *wire.Connection, code h3err.H3ErrorCode, err error) {
	applog.L(ctx).WithField("conn", conn.Handle.ID()).WithError(err).Warn("dispatch: closing connection for fatal protocol error")
	_ = d.cap.CloseConnection(conn.Handle, uint64(code), err.Error())
	conn.Close()
}
