// Package server is the lifecycle controller: it wires the dispatcher and
// worker pool to a transport.Capability, and owns the Created -> Running
// -> Draining -> Stopped state machine a production HTTP/3 endpoint needs
// for a graceful shutdown that waits on in-flight requests instead of
// severing them.
package server

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nine114/h3d/internal/applog"
	"github.com/nine114/h3d/internal/dispatch"
	"github.com/nine114/h3d/internal/h3config"
	"github.com/nine114/h3d/internal/h3frame"
	"github.com/nine114/h3d/internal/h3metrics"
	"github.com/nine114/h3d/internal/registry"
	"github.com/nine114/h3d/internal/transport"
	"github.com/nine114/h3d/internal/wire"
	"github.com/nine114/h3d/internal/workerpool"
	"github.com/nine114/h3d/multierror"
)

// State is a lifecycle controller state.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "created"
	}
}

// pollInterval is how often Shutdown checks whether the request registry
// has drained while waiting out its timeout budget.
const pollInterval = 20 * time.Millisecond

// stopJoinTimeout bounds how long Stop waits for in-flight workers to
// finish before giving up on the join and raising a drain-timeout error.
const stopJoinTimeout = 2 * time.Second

// Server owns one transport.Capability's dispatcher and worker pool for
// their entire lifetime.
type Server struct {
	cfg     h3config.ServerConfig
	cap     transport.Capability
	dsp     *dispatch.Dispatcher
	pool    *workerpool.Pool
	reg     *registry.Registry
	metrics *h3metrics.Metrics
	clock   clockwork.Clock

	mu    sync.Mutex
	state State

	cancelDispatch context.CancelFunc
	dispatchDone   chan struct{}
}

// New wires a Server from configuration, a transport capability, and the
// application callback. metricsRegistry may be nil, in which case metrics
// are created against a private, unexposed registry.
func New(cfg h3config.ServerConfig, cap transport.Capability, handler workerpool.Handler, metricsRegistry prometheus.Registerer, clock clockwork.Clock) *Server {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if metricsRegistry == nil {
		metricsRegistry = prometheus.NewRegistry()
	}
	reg := registry.New()
	metrics := h3metrics.New(metricsRegistry)
	pool := workerpool.New(cfg.WorkerCount, cfg.EffectiveQueueSize(), handler, cap, reg, metrics, clock)
	dsp := dispatch.New(cfg.MaxConnections, cap, pool, reg, metrics)

	return &Server{
		cfg:     cfg,
		cap:     cap,
		dsp:     dsp,
		pool:    pool,
		reg:     reg,
		metrics: metrics,
		clock:   clock,
	}
}

// Metrics returns the instrument set this server records against, for
// mounting a /metrics endpoint.
func (s *Server) Metrics() *h3metrics.Metrics { return s.metrics }

// State reports the current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Server) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Start transitions Created -> Running: the worker pool starts accepting
// work and the dispatcher begins consuming transport events. ctx governs
// the dispatcher's event loop; cancelling it (or calling Shutdown/Stop)
// ends it.
func (s *Server) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelDispatch = cancel
	s.dispatchDone = make(chan struct{})

	s.pool.Start(runCtx)
	go func() {
		defer close(s.dispatchDone)
		s.dsp.Run(runCtx)
	}()

	s.setState(StateRunning)
}

// Shutdown drains gracefully: it sends GOAWAY on every established
// connection, waits for the request registry to empty (or timeout to
// elapse), then stops the dispatcher and joins the worker pool. Requests
// still in flight at the deadline and failed GOAWAY writes are logged
// rather than returned; the worker pool's drain timeout is collected into
// a multierror, so the remaining cleanup steps still run before Shutdown
// returns.
func (s *Server) Shutdown(ctx context.Context, timeout time.Duration) error {
	deadline := s.clock.Now().Add(timeout)

	s.setState(StateDraining)
	s.broadcastGoAway(ctx)

	for s.reg.Len() > 0 && s.clock.Now().Before(deadline) {
		s.clock.Sleep(pollInterval)
	}

	var result *multierror.Error

	if s.reg.Len() > 0 {
		for _, entry := range s.reg.Snapshot() {
			applog.L(ctx).WithFields(map[string]interface{}{
				"conn":   entry.ConnID,
				"method": entry.Method,
				"path":   entry.Path,
			}).Warn("server: request still in flight at drain deadline")
		}
	}

	s.cancelDispatch()
	<-s.dispatchDone
	s.pool.Close()

	remaining := deadline.Sub(s.clock.Now())
	if remaining < 0 {
		remaining = 0
	}
	if err := s.pool.Wait(remaining); err != nil {
		result = multierror.Append(result, err)
	}

	s.setState(StateStopped)
	return result.ErrorOrNil()
}

// Stop ends the server immediately without waiting for in-flight
// requests to be accepted: the dispatcher is cancelled and the worker
// queue is closed, then Stop joins already-running workers, bounded by
// stopJoinTimeout. A worker still running a callback past that bound is
// left running; Stop returns h3err.ErrDrainTimeout rather than wait on
// it forever.
func (s *Server) Stop() error {
	s.setState(StateDraining)
	if s.cancelDispatch != nil {
		s.cancelDispatch()
		<-s.dispatchDone
	}
	s.pool.Close()
	err := s.pool.Wait(stopJoinTimeout)
	s.setState(StateStopped)
	return err
}

func (s *Server) broadcastGoAway(ctx context.Context) {
	for _, conn := range s.dsp.Connections() {
		if conn.GoAwaySent() {
			continue
		}
		stream := conn.OutboundControl()
		if stream == nil {
			continue
		}
		if err := s.cap.Write(stream, h3frame.BuildGoAway(wire.MaxGoAwayStreamID), false); err != nil {
			applog.L(ctx).WithField("conn", conn.Handle.ID()).WithError(err).Warn("server: failed to write GOAWAY")
			continue
		}
		conn.MarkGoAwaySent()
	}
}

// TrapSignals registers for SIGINT and SIGTERM, the way cmd/containerd's
// main loop traps shutdown signals, and returns the channel they arrive
// on.
func TrapSignals() <-chan os.Signal {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	return sig
}
