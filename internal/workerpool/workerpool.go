// Package workerpool runs a fixed-size pool of goroutines that turn
// assembled request bytes into a response: parse, invoke the application
// callback, reply. It is the only place in the engine that calls
// application code, so it is also the only place that has to survive a
// callback panicking, returning garbage, or outliving a drain deadline.
package workerpool

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nine114/h3d/internal/applog"
	"github.com/nine114/h3d/internal/h3err"
	"github.com/nine114/h3d/internal/h3metrics"
	"github.com/nine114/h3d/internal/h3msg"
	"github.com/nine114/h3d/internal/registry"
	"github.com/nine114/h3d/internal/transport"
	"github.com/nine114/h3d/internal/wire"
)

// Handler is the application callback. It must not block indefinitely; the
// worker that calls it is otherwise unavailable until it returns.
type Handler func(ctx context.Context, req *h3msg.Request) (status int, headers []h3msg.HeaderField, body [][]byte)

// WorkItem is a request stream that has reached FIN: the connection and
// stream it belongs to, and the full byte sequence accumulated from it.
// It lives only in the queue between the dispatcher and the workers.
type WorkItem struct {
	Conn     *wire.Connection
	StreamID uint64
	Data     []byte
}

// Pool owns the bounded work queue and the fixed set of workers draining
// it.
type Pool struct {
	queue   chan *WorkItem
	workers int
	wg      sync.WaitGroup

	handler Handler
	cap     transport.Capability
	reg     *registry.Registry
	metrics *h3metrics.Metrics
	clock   clockwork.Clock
}

// New builds a pool with the given worker count and queue capacity. The
// pool does not start workers until Start is called.
func New(workers, queueSize int, handler Handler, cap transport.Capability, reg *registry.Registry, metrics *h3metrics.Metrics, clock clockwork.Clock) *Pool {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pool{
		queue:   make(chan *WorkItem, queueSize),
		workers: workers,
		handler: handler,
		cap:     cap,
		reg:     reg,
		metrics: metrics,
		clock:   clock,
	}
}

// Start launches the worker goroutines. ctx is passed through to every
// application callback invocation.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx)
	}
}

// Enqueue offers item to the queue without blocking. It reports false if
// the queue is at capacity, in which case the caller (the dispatcher) is
// responsible for replying 503 itself.
func (p *Pool) Enqueue(item *WorkItem) bool {
	select {
	case p.queue <- item:
		return true
	default:
		return false
	}
}

// Len reports the current queue depth, for metrics.
func (p *Pool) Len() int { return len(p.queue) }

// Close stops accepting new work by closing the queue. Callers must ensure
// no further Enqueue calls happen afterward (the dispatcher's Run loop
// exits first).
func (p *Pool) Close() { close(p.queue) }

// Wait blocks until every worker has drained the queue and exited, or
// until timeout elapses first, in which case it returns h3err.ErrDrainTimeout
// and leaves whatever workers are still running in flight — Go offers no
// way to abort a goroutine blocked in an application callback, so the
// lifecycle controller logs stragglers from the registry instead of
// waiting on them forever.
func (p *Pool) Wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-p.clock.After(timeout):
		return h3err.ErrDrainTimeout
	}
}

func (p *Pool) runWorker(ctx context.Context) {
	defer p.wg.Done()
	for item := range p.queue {
		p.process(ctx, item)
	}
}

func (p *Pool) process(ctx context.Context, item *WorkItem) {
	connID := item.Conn.Handle.ID()
	defer p.reg.Remove(connID, item.StreamID)

	if item.Conn.IsClosed() || item.Conn.IsCancelled(item.StreamID) {
		return
	}

	log := applog.L(ctx).WithFields(map[string]interface{}{
		"conn":   connID,
		"stream": item.StreamID,
	})

	req, err := h3msg.AssembleRequest(item.Data)
	if err != nil {
		log.WithError(err).Debug("workerpool: malformed request")
		p.reply(item, h3msg.StatusBadRequest, nil, nil)
		return
	}

	p.reg.Insert(connID, item.StreamID, req.Method, req.Path, p.clock.Now())

	status, headers, body := p.invoke(ctx, req)

	if item.Conn.IsClosed() || item.Conn.IsCancelled(item.StreamID) {
		return
	}
	p.reply(item, status, headers, body)
}

// invoke runs the application callback, turning a panic or an out-of-range
// status into a 500 rather than letting either reach the wire or take a
// worker down.
func (p *Pool) invoke(ctx context.Context, req *h3msg.Request) (status int, headers []h3msg.HeaderField, body [][]byte) {
	start := p.clock.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.CallbackLatency.Observe(p.clock.Now().Sub(start).Seconds())
		}
		if r := recover(); r != nil {
			status, headers, body = h3msg.StatusInternalServerError, nil, nil
		}
	}()
	status, headers, body = p.handler(ctx, req)
	if status < 100 || status > 599 {
		status, headers, body = h3msg.StatusInternalServerError, nil, nil
	}
	return
}

func (p *Pool) reply(item *WorkItem, status int, headers []h3msg.HeaderField, body [][]byte) {
	s, ok := item.Conn.Stream(item.StreamID)
	if !ok || !s.ReadyToSend() {
		return
	}
	buf := h3msg.BuildResponse(status, headers, body)
	if err := p.cap.Write(s.Handle(), buf, true); err != nil {
		return
	}
	if p.metrics != nil {
		p.metrics.RequestsTotal.WithLabelValues(h3metrics.StatusClass(status)).Inc()
	}
}
