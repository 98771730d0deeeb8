package quictransport

// wireConn is the opaque transport.Conn handle the adapter hands the
// engine; the engine only ever passes it back. id is a uuid generated
// per accepted connection, not the QUIC connection ID, since quic-go
// connection IDs rotate during migration.
type wireConn struct {
	id string
}

func (c *wireConn) ID() string { return c.id }

// wireStream is the opaque transport.Stream handle. send/recv are nil
// independently depending on whether the stream is unidirectional and in
// which direction: a locally-opened uni stream has send only, a
// peer-opened uni stream has recv only, a bidirectional stream has both.
type wireStream struct {
	id   uint64
	send sendStream
	recv receiveStream
}

func (s *wireStream) ID() uint64 { return s.id }
