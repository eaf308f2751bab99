package server

import (
	"bufio"
	"net"
	"time"

	"github.com/sentryfab/sentryfab/internal/wire"
)

// dialTimeout bounds the initial active-connect attempt; a peer that
// isn't listening yet should fail fast so this server falls back to
// passive listening rather than hanging the startup race.
const dialTimeout = 2 * time.Second

// Start binds the client listener, runs the P2P startup race, and kicks
// off the admin console reader. It does not block; call Run to enter the
// event loop.
func (s *Server) Start() error {
	clientAddr := fmtAddr("0.0.0.0", s.cfg.ClientPort)
	cl, err := listenTCP(clientAddr, s.cfg.ListenBacklog)
	if err != nil {
		return err
	}
	s.clientListener = cl
	go s.acceptSensors()

	s.startP2P()
	go s.readAdmin()
	return nil
}

func (s *Server) acceptSensors() {
	for {
		conn, err := s.clientListener.Accept()
		if err != nil {
			s.events <- fatalListenerError{err: err}
			return
		}
		s.events <- newSensorConn{conn: conn}
	}
}

// startP2P performs the active/passive startup race of spec.md §4.2: try
// an outbound connect first, and fall back to listening on failure.
func (s *Server) startP2P() {
	peerAddr := fmtAddr(s.cfg.PeerHost, s.cfg.P2PPort)
	conn, err := net.DialTimeout("tcp", peerAddr, dialTimeout)
	if err == nil {
		s.events <- newPeerConn{conn: conn, active: true}
		return
	}
	s.logger.Info("No peer found, starting to listen for P2P connections.")
	s.armPassiveListener()
}

// armPassiveListener (re-)binds the P2P listener and waits for exactly
// one inbound connection. It is called at startup when the active dial
// failed, and again after any P2P teardown so the server stays available
// for a new peer (spec.md §4.2).
func (s *Server) armPassiveListener() {
	p2pAddr := fmtAddr("0.0.0.0", s.cfg.P2PPort)
	l, err := listenTCP(p2pAddr, s.cfg.ListenBacklog)
	if err != nil {
		s.events <- fatalListenerError{err: err}
		return
	}
	s.p2pListener = l
	go s.acceptPeerOnce(l)
}

// acceptPeerOnce accepts a single inbound P2P connection, matching the
// spec's "at most one concurrent P2P peer" invariant. It exits silently
// if the listener is closed out from under it (e.g. because an active
// dial won the race, or the server is shutting down).
func (s *Server) acceptPeerOnce(l net.Listener) {
	conn, err := l.Accept()
	if err != nil {
		return
	}
	s.events <- newPeerConn{conn: conn, active: false}
}

func (s *Server) readPeer(conn net.Conn) {
	r := bufReader(conn)
	for {
		msg, err := wire.ReadFrame(r)
		if err != nil {
			s.peerEvents <- peerFrame{Err: err}
			return
		}
		s.peerEvents <- peerFrame{Msg: msg}
	}
}

func (s *Server) readSensor(conn net.Conn) {
	r := bufReader(conn)
	for {
		msg, err := wire.ReadFrame(r)
		if err != nil {
			s.events <- sensorClosed{conn: conn, err: err}
			return
		}
		s.events <- sensorFrame{conn: conn, msg: msg}
	}
}

func (s *Server) readAdmin() {
	sc := bufio.NewScanner(s.cfg.AdminInput)
	for sc.Scan() {
		s.events <- adminLine{line: sc.Text()}
	}
	s.events <- adminEOF{}
}

func writeFrame(conn net.Conn, frame string) error {
	_, err := conn.Write([]byte(frame))
	return err
}
