package dispatch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nine114/h3d/internal/dispatch"
	"github.com/nine114/h3d/internal/h3err"
	"github.com/nine114/h3d/internal/h3frame"
	"github.com/nine114/h3d/internal/h3msg"
	"github.com/nine114/h3d/internal/qpack"
	"github.com/nine114/h3d/internal/registry"
	"github.com/nine114/h3d/internal/transport"
	"github.com/nine114/h3d/internal/workerpool"
)

type fakeConn struct{ id string }

func (f fakeConn) ID() string { return f.id }

type fakeStream struct{ id uint64 }

func (f fakeStream) ID() uint64 { return f.id }

// recordingCapability is a transport.Capability double driven entirely by
// a pre-loaded, then closed, event channel: tests push every event they
// need before calling Run, close the channel, and Run drains it
// synchronously — no timing races to manage.
type recordingCapability struct {
	events chan transport.Event

	mu           sync.Mutex
	writes       map[uint64][]byte
	rejected     []string
	closedConns  []string
	resetCodes   map[uint64]uint64
	openedStream map[string]uint64
	nextStreamID uint64
}

func newRecordingCapability(buffer int) *recordingCapability {
	return &recordingCapability{
		events:       make(chan transport.Event, buffer),
		writes:       make(map[uint64][]byte),
		resetCodes:   make(map[uint64]uint64),
		openedStream: make(map[string]uint64),
	}
}

func (c *recordingCapability) Events() <-chan transport.Event { return c.events }

func (c *recordingCapability) OpenUniStream(ctx context.Context, conn transport.Conn) (transport.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextStreamID += 4
	c.openedStream[conn.ID()] = c.nextStreamID
	return fakeStream{id: c.nextStreamID}, nil
}

func (c *recordingCapability) Write(stream transport.Stream, p []byte, fin bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes[stream.ID()] = append(append([]byte(nil), c.writes[stream.ID()]...), p...)
	return nil
}

func (c *recordingCapability) ResetStream(stream transport.Stream, code uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetCodes[stream.ID()] = code
	return nil
}

func (c *recordingCapability) StopSendingStream(stream transport.Stream, code uint64) error {
	return nil
}

func (c *recordingCapability) CloseConnection(conn transport.Conn, code uint64, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closedConns = append(c.closedConns, conn.ID())
	return nil
}

func (c *recordingCapability) RejectConnection(conn transport.Conn, code uint64, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejected = append(c.rejected, conn.ID())
	return nil
}

func (c *recordingCapability) writesFor(id uint64) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes[id]
}

func (c *recordingCapability) openedStreamFor(connID string) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.openedStream[connID]
	return id, ok
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

func statusOf(t *testing.T, raw []byte) string {
	t.Helper()
	frames, _ := h3frame.ParseFrames(raw)
	require.NotEmpty(t, frames)
	decoded, err := qpack.DecodeFieldSection(frames[0].Payload)
	require.NoError(t, err)
	require.NotEmpty(t, decoded)
	require.Equal(t, ":status", decoded[0].Name)
	return decoded[0].Value
}

func noopHandler(ctx context.Context, req *h3msg.Request) (int, []h3msg.HeaderField, [][]byte) {
	return 200, nil, [][]byte{[]byte("hi")}
}

func TestAdmissionControlRejectsOverCapacity(t *testing.T) {
	cap := newRecordingCapability(8)
	reg := registry.New()
	pool := workerpool.New(1, 4, noopHandler, cap, reg, nil, clockwork.NewFakeClock())

	d := dispatch.New(1, cap, pool, reg, nil)

	cap.events <- transport.Event{Kind: transport.EventConnectionEstablished, Conn: fakeConn{"a"}}
	cap.events <- transport.Event{Kind: transport.EventConnectionEstablished, Conn: fakeConn{"b"}}
	close(cap.events)

	d.Run(context.Background())

	assert.Len(t, d.Connections(), 1)
	assert.Equal(t, []string{"b"}, cap.rejected)
}

func TestConnectionEstablishedWritesControlPrelude(t *testing.T) {
	cap := newRecordingCapability(8)
	reg := registry.New()
	pool := workerpool.New(1, 4, noopHandler, cap, reg, nil, clockwork.NewFakeClock())
	d := dispatch.New(4, cap, pool, reg, nil)

	cap.events <- transport.Event{Kind: transport.EventConnectionEstablished, Conn: fakeConn{"a"}}
	close(cap.events)
	d.Run(context.Background())

	streamID, ok := cap.openedStreamFor("a")
	require.True(t, ok)
	assert.Equal(t, h3frame.ControlPrelude(), cap.writesFor(streamID))
}

func TestFullRequestRoundTripThroughWorkerPool(t *testing.T) {
	cap := newRecordingCapability(8)
	reg := registry.New()
	pool := workerpool.New(2, 4, noopHandler, cap, reg, nil, clockwork.NewFakeClock())
	pool.Start(context.Background())
	d := dispatch.New(4, cap, pool, reg, nil)

	cap.events <- transport.Event{Kind: transport.EventConnectionEstablished, Conn: fakeConn{"a"}}
	cap.events <- transport.Event{
		Kind: transport.EventReceiveFin, Conn: fakeConn{"a"}, Stream: fakeStream{id: 0},
		Data: buildRequestBytes("GET", "/widgets"),
	}
	close(cap.events)
	d.Run(context.Background())

	pool.Close()
	require.NoError(t, pool.Wait(time.Second))

	assert.Equal(t, "200", statusOf(t, cap.writesFor(0)))
}

func TestReceiveFinOnFullQueueReplies503WithoutEnqueueing(t *testing.T) {
	cap := newRecordingCapability(8)
	reg := registry.New()
	pool := workerpool.New(1, 1, noopHandler, cap, reg, nil, clockwork.NewFakeClock())
	// Fill the one queue slot without starting any worker to drain it.
	require.True(t, pool.Enqueue(&workerpool.WorkItem{StreamID: 999}))

	d := dispatch.New(4, cap, pool, reg, nil)

	cap.events <- transport.Event{Kind: transport.EventConnectionEstablished, Conn: fakeConn{"a"}}
	cap.events <- transport.Event{
		Kind: transport.EventReceiveFin, Conn: fakeConn{"a"}, Stream: fakeStream{id: 0},
		Data: buildRequestBytes("GET", "/widgets"),
	}
	close(cap.events)
	d.Run(context.Background())

	assert.Equal(t, "503", statusOf(t, cap.writesFor(0)))
}

func TestStreamResetMarksCancelledAndClearsRegistry(t *testing.T) {
	cap := newRecordingCapability(8)
	reg := registry.New()
	pool := workerpool.New(1, 4, noopHandler, cap, reg, nil, clockwork.NewFakeClock())
	d := dispatch.New(4, cap, pool, reg, nil)

	cap.events <- transport.Event{Kind: transport.EventConnectionEstablished, Conn: fakeConn{"a"}}
	cap.events <- transport.Event{Kind: transport.EventReceive, Conn: fakeConn{"a"}, Stream: fakeStream{id: 0}, Data: []byte("partial")}
	reg.Insert("a", 0, "GET", "/x", time.Unix(0, 0))
	cap.events <- transport.Event{Kind: transport.EventStreamReset, Conn: fakeConn{"a"}, Stream: fakeStream{id: 0}}
	close(cap.events)
	d.Run(context.Background())

	assert.Equal(t, 0, reg.Len())
}

func TestStopSendingResetsSendSideAndClearsRegistry(t *testing.T) {
	cap := newRecordingCapability(8)
	reg := registry.New()
	pool := workerpool.New(1, 4, noopHandler, cap, reg, nil, clockwork.NewFakeClock())
	d := dispatch.New(4, cap, pool, reg, nil)

	cap.events <- transport.Event{Kind: transport.EventConnectionEstablished, Conn: fakeConn{"a"}}
	cap.events <- transport.Event{Kind: transport.EventReceive, Conn: fakeConn{"a"}, Stream: fakeStream{id: 0}, Data: []byte("partial")}
	reg.Insert("a", 0, "GET", "/x", time.Unix(0, 0))
	cap.events <- transport.Event{Kind: transport.EventStopSending, Conn: fakeConn{"a"}, Stream: fakeStream{id: 0}}
	close(cap.events)
	d.Run(context.Background())

	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, uint64(h3err.CodeRequestCancelled), cap.resetCodes[0])
}

func TestSecondPeerControlStreamClosesConnection(t *testing.T) {
	cap := newRecordingCapability(8)
	reg := registry.New()
	pool := workerpool.New(1, 4, noopHandler, cap, reg, nil, clockwork.NewFakeClock())
	d := dispatch.New(4, cap, pool, reg, nil)

	cap.events <- transport.Event{Kind: transport.EventConnectionEstablished, Conn: fakeConn{"a"}}
	cap.events <- transport.Event{Kind: transport.EventReceive, Conn: fakeConn{"a"}, Stream: fakeStream{id: 2}, Data: []byte{0x00}}
	cap.events <- transport.Event{Kind: transport.EventReceive, Conn: fakeConn{"a"}, Stream: fakeStream{id: 6}, Data: []byte{0x00}}
	close(cap.events)
	d.Run(context.Background())

	assert.Equal(t, []string{"a"}, cap.closedConns)
}

func TestUnknownUnidirectionalStreamTypeIsDrainedWithoutError(t *testing.T) {
	cap := newRecordingCapability(8)
	reg := registry.New()
	pool := workerpool.New(1, 4, noopHandler, cap, reg, nil, clockwork.NewFakeClock())
	d := dispatch.New(4, cap, pool, reg, nil)

	cap.events <- transport.Event{Kind: transport.EventConnectionEstablished, Conn: fakeConn{"a"}}
	cap.events <- transport.Event{Kind: transport.EventReceive, Conn: fakeConn{"a"}, Stream: fakeStream{id: 2}, Data: []byte{0x41, 0xff, 0xff}}
	close(cap.events)
	d.Run(context.Background())

	assert.Empty(t, cap.closedConns)
	assert.Len(t, d.Connections(), 1)
}

func TestControlStreamGoAwayIsParsedWithoutClosingConnection(t *testing.T) {
	cap := newRecordingCapability(8)
	reg := registry.New()
	pool := workerpool.New(1, 4, noopHandler, cap, reg, nil, clockwork.NewFakeClock())
	d := dispatch.New(4, cap, pool, reg, nil)

	goaway := append([]byte{0x00}, h3frame.BuildGoAway(12)...)

	cap.events <- transport.Event{Kind: transport.EventConnectionEstablished, Conn: fakeConn{"a"}}
	cap.events <- transport.Event{Kind: transport.EventReceive, Conn: fakeConn{"a"}, Stream: fakeStream{id: 2}, Data: goaway}
	close(cap.events)
	d.Run(context.Background())

	assert.Empty(t, cap.closedConns)
}
