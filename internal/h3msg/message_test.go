package h3msg_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nine114/h3d/internal/h3frame"
	"github.com/nine114/h3d/internal/h3msg"
	"github.com/nine114/h3d/internal/qpack"
)

func buildRequestStream(fields []qpack.HeaderField, chunks ...[]byte) []byte {
	buf := h3frame.Build(h3frame.TypeHeaders, qpack.EncodeFieldSection(fields))
	for _, c := range chunks {
		buf = append(buf, h3frame.Build(h3frame.TypeData, c)...)
	}
	return buf
}

func TestAssembleRequestBasic(t *testing.T) {
	fields := []qpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "https"},
		{Name: ":authority", Value: "example.com"},
		{Name: ":path", Value: "/widgets?color=red"},
		{Name: "accept", Value: "application/json"},
	}
	buf := buildRequestStream(fields)
	req, err := h3msg.AssembleRequest(buf)
	require.NoError(t, err)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "https", req.Scheme)
	assert.Equal(t, "example.com", req.Authority)
	assert.Equal(t, "/widgets", req.Path)
	assert.Equal(t, "color=red", req.Query)
	require.Len(t, req.Headers, 1)
	assert.Equal(t, "accept", req.Headers[0].Name)
	assert.Empty(t, req.Body)
}

func TestAssembleRequestWithBody(t *testing.T) {
	fields := []qpack.HeaderField{
		{Name: ":method", Value: "POST"},
		{Name: ":scheme", Value: "https"},
		{Name: ":authority", Value: "example.com"},
		{Name: ":path", Value: "/orders"},
	}
	buf := buildRequestStream(fields, []byte("part1-"), []byte("part2"))
	req, err := h3msg.AssembleRequest(buf)
	require.NoError(t, err)
	assert.Equal(t, "part1-part2", string(req.Body))
}

func TestAssembleRequestConnectSkipsPathScheme(t *testing.T) {
	fields := []qpack.HeaderField{
		{Name: ":method", Value: "CONNECT"},
		{Name: ":authority", Value: "example.com:443"},
	}
	buf := buildRequestStream(fields)
	req, err := h3msg.AssembleRequest(buf)
	require.NoError(t, err)
	assert.Equal(t, "CONNECT", req.Method)
}

func TestAssembleRequestDataBeforeHeadersIsViolation(t *testing.T) {
	buf := h3frame.Build(h3frame.TypeData, []byte("oops"))
	_, err := h3msg.AssembleRequest(buf)
	assert.Error(t, err)
}

func TestAssembleRequestControlFrameIsViolation(t *testing.T) {
	fields := []qpack.HeaderField{{Name: ":method", Value: "GET"}, {Name: ":authority", Value: "e"}, {Name: ":scheme", Value: "https"}, {Name: ":path", Value: "/"}}
	buf := buildRequestStream(fields)
	buf = append(buf, h3frame.Build(h3frame.TypeSettings, nil)...)
	_, err := h3msg.AssembleRequest(buf)
	assert.Error(t, err)
}

func TestAssembleRequestMissingMethodIsViolation(t *testing.T) {
	fields := []qpack.HeaderField{{Name: ":authority", Value: "e"}}
	buf := buildRequestStream(fields)
	_, err := h3msg.AssembleRequest(buf)
	assert.Error(t, err)
}

func TestAssembleRequestPseudoAfterRegularIsViolation(t *testing.T) {
	fields := []qpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: "accept", Value: "*/*"},
		{Name: ":authority", Value: "e"},
	}
	buf := buildRequestStream(fields)
	_, err := h3msg.AssembleRequest(buf)
	assert.Error(t, err)
}

func TestBuildResponseStripsForbiddenAndInternalHeaders(t *testing.T) {
	headers := []h3msg.HeaderField{
		{Name: "Content-Type", Value: "text/plain"},
		{Name: "Connection", Value: "close"},
		{Name: "Transfer-Encoding", Value: "chunked"},
		{Name: "x-h3-internal-trace", Value: "secret"},
	}
	buf := h3msg.BuildResponse(200, headers, [][]byte{[]byte("hello")})

	frames, consumed := h3frame.ParseFrames(buf)
	require.Equal(t, len(buf), consumed)
	require.Len(t, frames, 2)
	assert.Equal(t, h3frame.TypeHeaders, frames[0].Type)
	assert.Equal(t, h3frame.TypeData, frames[1].Type)
	assert.Equal(t, "hello", string(frames[1].Payload))

	fields, err := qpack.DecodeFieldSection(frames[0].Payload)
	require.NoError(t, err)
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	assert.Contains(t, names, ":status")
	assert.Contains(t, names, "content-type")
	assert.NotContains(t, names, "connection")
	assert.NotContains(t, names, "transfer-encoding")
	assert.NotContains(t, names, "x-h3-internal-trace")
}

func TestBuildResponseOmitsEmptyChunks(t *testing.T) {
	buf := h3msg.BuildResponse(204, nil, [][]byte{nil, {}, []byte("x")})
	frames, _ := h3frame.ParseFrames(buf)
	require.Len(t, frames, 2) // HEADERS + one non-empty DATA
}

func TestBuildErrorResponse(t *testing.T) {
	buf := h3msg.BuildErrorResponse(h3msg.StatusServiceUnavailable)
	frames, _ := h3frame.ParseFrames(buf)
	require.Len(t, frames, 1)
	fields, err := qpack.DecodeFieldSection(frames[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "503", fields[0].Value)
}

func TestBuildRequestRoundTripsThroughAssembleRequest(t *testing.T) {
	buf := h3msg.BuildRequest("POST", "https", "example.com", "/orders", []h3msg.HeaderField{
		{Name: "content-type", Value: "application/json"},
	}, [][]byte{[]byte("body")})

	req, err := h3msg.AssembleRequest(buf)
	require.NoError(t, err)
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "https", req.Scheme)
	assert.Equal(t, "example.com", req.Authority)
	assert.Equal(t, "/orders", req.Path)
	require.Len(t, req.Headers, 1)
	assert.Equal(t, "content-type", req.Headers[0].Name)
	assert.Equal(t, "body", string(req.Body))
}

func TestAssembleResponseMessageRoundTripsThroughBuildResponse(t *testing.T) {
	buf := h3msg.BuildResponse(201, []h3msg.HeaderField{{Name: "location", Value: "/orders/1"}}, [][]byte{[]byte("created")})

	resp, err := h3msg.AssembleResponseMessage(buf)
	require.NoError(t, err)
	assert.Equal(t, 201, resp.Status)
	require.Len(t, resp.Headers, 1)
	assert.Equal(t, "location", resp.Headers[0].Name)
	assert.Equal(t, "created", string(resp.Body))
}

func TestAssembleResponseMessageRejectsMissingStatus(t *testing.T) {
	buf := h3frame.Build(h3frame.TypeHeaders, qpack.EncodeFieldSection(nil))
	_, err := h3msg.AssembleResponseMessage(buf)
	assert.Error(t, err)
}

func TestAssembleResponseMessageRejectsDataBeforeHeaders(t *testing.T) {
	buf := h3frame.Build(h3frame.TypeData, []byte("oops"))
	_, err := h3msg.AssembleResponseMessage(buf)
	assert.Error(t, err)
}
