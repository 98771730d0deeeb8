package server_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nine114/h3d/internal/h3config"
	"github.com/nine114/h3d/internal/h3frame"
	"github.com/nine114/h3d/internal/h3msg"
	"github.com/nine114/h3d/internal/qpack"
	"github.com/nine114/h3d/internal/server"
	"github.com/nine114/h3d/internal/transport"
)

type fakeConn struct{ id string }

func (f fakeConn) ID() string { return f.id }

type fakeStream struct{ id uint64 }

func (f fakeStream) ID() uint64 { return f.id }

type fakeCapability struct {
	events chan transport.Event

	mu           sync.Mutex
	writes       map[uint64][]byte
	nextStreamID uint64
}

func newFakeCapability() *fakeCapability {
	return &fakeCapability{
		events: make(chan transport.Event, 32),
		writes: make(map[uint64][]byte),
	}
}

func (c *fakeCapability) Events() <-chan transport.Event { return c.events }

func (c *fakeCapability) OpenUniStream(ctx context.Context, conn transport.Conn) (transport.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextStreamID += 4
	return fakeStream{id: c.nextStreamID}, nil
}

func (c *fakeCapability) Write(stream transport.Stream, p []byte, fin bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes[stream.ID()] = append(append([]byte(nil), c.writes[stream.ID()]...), p...)
	return nil
}

func (c *fakeCapability) ResetStream(stream transport.Stream, code uint64) error       { return nil }
func (c *fakeCapability) StopSendingStream(stream transport.Stream, code uint64) error { return nil }
func (c *fakeCapability) CloseConnection(conn transport.Conn, code uint64, reason string) error {
	return nil
}
func (c *fakeCapability) RejectConnection(conn transport.Conn, code uint64, reason string) error {
	return nil
}

func (c *fakeCapability) writesFor(id uint64) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes[id]
}

func testConfig() h3config.ServerConfig {
	cfg := h3config.Default()
	cfg.WorkerCount = 1
	cfg.MaxConnections = 4
	return cfg
}

func buildRequestBytes(method, path string) []byte {
	fields := []qpack.HeaderField{
		{Name: ":method", Value: method},
		{Name: ":scheme", Value: "https"},
		{Name: ":authority", Value: "example.test"},
		{Name: ":path", Value: path},
	}
	return h3frame.Build(h3frame.TypeHeaders, qpack.EncodeFieldSection(fields))
}

func TestStartTransitionsToRunning(t *testing.T) {
	cap := newFakeCapability()
	handler := func(ctx context.Context, req *h3msg.Request) (int, []h3msg.HeaderField, [][]byte) {
		return 200, nil, nil
	}
	s := server.New(testConfig(), cap, handler, nil, nil)

	assert.Equal(t, server.StateCreated, s.State())
	s.Start(context.Background())
	assert.Equal(t, server.StateRunning, s.State())
	require.NoError(t, s.Stop())
	assert.Equal(t, server.StateStopped, s.State())
}

func TestShutdownBroadcastsGoAwayAndStops(t *testing.T) {
	cap := newFakeCapability()
	handler := func(ctx context.Context, req *h3msg.Request) (int, []h3msg.HeaderField, [][]byte) {
		return 200, nil, nil
	}
	s := server.New(testConfig(), cap, handler, nil, nil)
	s.Start(context.Background())

	cap.events <- transport.Event{Kind: transport.EventConnectionEstablished, Conn: fakeConn{"a"}}
	cap.events <- transport.Event{
		Kind: transport.EventReceiveFin, Conn: fakeConn{"a"}, Stream: fakeStream{id: 0},
		Data: buildRequestBytes("GET", "/x"),
	}

	require.Eventually(t, func() bool {
		return len(cap.writesFor(0)) > 0
	}, time.Second, time.Millisecond)

	err := s.Shutdown(context.Background(), 200*time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, server.StateStopped, s.State())
	assert.NotEmpty(t, cap.writesFor(4)) // outbound control stream carries the prelude + GOAWAY
}

func TestShutdownReturnsErrorWhenWorkerOutlivesDeadline(t *testing.T) {
	cap := newFakeCapability()
	started := make(chan struct{})
	release := make(chan struct{})
	handler := func(ctx context.Context, req *h3msg.Request) (int, []h3msg.HeaderField, [][]byte) {
		close(started)
		<-release
		return 200, nil, nil
	}
	s := server.New(testConfig(), cap, handler, nil, nil)
	s.Start(context.Background())

	cap.events <- transport.Event{Kind: transport.EventConnectionEstablished, Conn: fakeConn{"a"}}
	cap.events <- transport.Event{
		Kind: transport.EventReceiveFin, Conn: fakeConn{"a"}, Stream: fakeStream{id: 0},
		Data: buildRequestBytes("GET", "/x"),
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("handler never started")
	}

	err := s.Shutdown(context.Background(), 20*time.Millisecond)
	assert.Error(t, err)
	assert.Equal(t, server.StateStopped, s.State())

	close(release)
}

func TestStopJoinsRunningWorkers(t *testing.T) {
	cap := newFakeCapability()
	handler := func(ctx context.Context, req *h3msg.Request) (int, []h3msg.HeaderField, [][]byte) {
		return 200, nil, nil
	}
	s := server.New(testConfig(), cap, handler, nil, nil)
	s.Start(context.Background())

	cap.events <- transport.Event{Kind: transport.EventConnectionEstablished, Conn: fakeConn{"a"}}
	cap.events <- transport.Event{
		Kind: transport.EventReceiveFin, Conn: fakeConn{"a"}, Stream: fakeStream{id: 0},
		Data: buildRequestBytes("GET", "/x"),
	}

	require.Eventually(t, func() bool {
		return len(cap.writesFor(0)) > 0
	}, time.Second, time.Millisecond)

	require.NoError(t, s.Stop())
	assert.Equal(t, server.StateStopped, s.State())
}

func TestStopReturnsDrainTimeoutWhenWorkerOutlivesBound(t *testing.T) {
	cap := newFakeCapability()
	started := make(chan struct{})
	release := make(chan struct{})
	handler := func(ctx context.Context, req *h3msg.Request) (int, []h3msg.HeaderField, [][]byte) {
		close(started)
		<-release
		return 200, nil, nil
	}
	clock := clockwork.NewFakeClock()
	s := server.New(testConfig(), cap, handler, nil, clock)
	s.Start(context.Background())

	cap.events <- transport.Event{Kind: transport.EventConnectionEstablished, Conn: fakeConn{"a"}}
	cap.events <- transport.Event{
		Kind: transport.EventReceiveFin, Conn: fakeConn{"a"}, Stream: fakeStream{id: 0},
		Data: buildRequestBytes("GET", "/x"),
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("handler never started")
	}

	done := make(chan error, 1)
	go func() { done <- s.Stop() }()

	clock.BlockUntil(1)
	clock.Advance(3 * time.Second)

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Stop never returned")
	}
	assert.Equal(t, server.StateStopped, s.State())

	close(release)
}

func TestStateStringer(t *testing.T) {
	assert.Equal(t, "created", server.StateCreated.String())
	assert.Equal(t, "running", server.StateRunning.String())
	assert.Equal(t, "draining", server.StateDraining.String())
	assert.Equal(t, "stopped", server.StateStopped.String())
}
