package server

import (
	"net"

	"github.com/sentryfab/sentryfab/internal/wire"
)

// The event loop (see loop.go) is the single goroutine that owns the
// sensor registry and the peer session. The listener accept goroutines,
// the per-sensor-connection readers and the admin console reader only ever
// produce one of these event values and send it on the shared events
// channel; the P2P connection reader sends peerFrame values on the
// separate peerEvents channel instead. None of them touch registry or
// peer-session state directly.

type newSensorConn struct {
	conn net.Conn
}

type sensorFrame struct {
	conn net.Conn
	msg  wire.Message
}

type sensorClosed struct {
	conn net.Conn
	err  error
}

type newPeerConn struct {
	conn   net.Conn
	active bool // true if this server dialed out (active side)
}

type adminLine struct {
	line string
}

type adminEOF struct{}

type fatalListenerError struct {
	err error
}
