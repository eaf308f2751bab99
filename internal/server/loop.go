package server

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/sentryfab/sentryfab/internal/peer"
	"github.com/sentryfab/sentryfab/internal/protocol"
	"github.com/sentryfab/sentryfab/internal/wire"
)

// Run enters the single-threaded event loop described in spec.md §4.1.
// It blocks until shutdown (admin exit, stdin EOF, a confirmed peer
// disconnect this server initiated, or a fatal listener error) and
// returns the error that caused shutdown, or nil for a clean exit.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}
	defer s.shutdown()

	for {
		s.lastTick.Store(time.Now().UnixNano())
		select {
		case ev := <-s.events:
			exit, err := s.handleEvent(ev)
			if exit {
				return err
			}
		case pf := <-s.peerEvents:
			exit, err := s.handlePeerFrame(pf)
			if exit {
				return err
			}
		}
	}
}

func (s *Server) handleEvent(ev any) (exit bool, err error) {
	switch e := ev.(type) {
	case newSensorConn:
		s.onNewSensorConn(e.conn)
	case sensorFrame:
		s.onSensorFrame(e.conn, e.msg)
	case sensorClosed:
		s.registry.Release(e.conn)
		e.conn.Close()
	case newPeerConn:
		s.onNewPeerConn(e.conn, e.active)
	case adminLine:
		return s.handleAdminLine(e.line), nil
	case adminEOF:
		s.logger.Info("EOF on standard input, shutting down")
		return true, nil
	case fatalListenerError:
		s.logger.Error("fatal listener error, shutting down", "error", e.err)
		return true, e.err
	}
	return false, nil
}

func (s *Server) onNewSensorConn(conn net.Conn) {
	if _, ok := s.registry.Occupy(conn); !ok {
		writeFrame(conn, wire.BuildError(wire.ErrSensorLimitExceeded))
		conn.Close()
		return
	}
	go s.readSensor(conn)
}

func (s *Server) onSensorFrame(conn net.Conn, msg wire.Message) {
	slot, ok := s.registry.SlotFor(conn)
	if !ok {
		return // slot already cleared (e.g. racing with shutdown); ignore
	}
	res := s.dispatcher.DispatchSensor(conn, slot, msg, s.checkAlertRendezvous)
	if res.SendReply {
		if err := writeFrame(conn, res.Reply); err != nil {
			s.registry.Release(conn)
			conn.Close()
			return
		}
	}
	if res.Close {
		s.registry.Release(conn)
		conn.Close()
	}
}

func (s *Server) onNewPeerConn(conn net.Conn, active bool) {
	var frame string
	if active {
		frame = s.peerSess.BeginActive(conn)
	} else {
		if s.p2pListener != nil {
			s.p2pListener.Close()
			s.p2pListener = nil
		}
		s.peerSess.BeginPassive(conn)
	}
	go s.readPeer(conn)
	if active {
		if err := writeFrame(conn, frame); err != nil {
			s.teardownPeer("write failure sending REQ_CONNPEER")
			return
		}
	}
	s.cfg.Metrics.SetPeerState(int(s.peerSess.State))
}

func (s *Server) handlePeerFrame(pf peerFrame) (exit bool, err error) {
	if pf.Err != nil {
		if s.peerSess.Conn == nil {
			// The reader of a connection this loop already tore down is
			// reporting its closed socket; there is no session left to tear
			// down and the passive listener is already re-armed.
			return false, nil
		}
		s.teardownPeer("p2p transport error: " + pf.Err.Error())
		return false, nil
	}

	// CHECKALERT frames ride the same P2P connection but never touch the
	// handshake state machine. REQ_CHECKALERT is answered straight from
	// registry state on the LOCATION role; RES_CHECKALERT (and any error
	// reply to it) is consumed only by the blocking read inside
	// checkAlertRendezvous. One reaching handlePeerFrame here means the
	// rendezvous that sent the request already timed out and tore the
	// session down, so the reply just arrived too late to matter.
	switch pf.Msg.Code {
	case wire.ReqCheckAlert:
		s.onReqCheckAlert(pf.Msg.Payload)
		return false, nil
	case wire.ResCheckAlert:
		s.logger.Warn("dropping RES_CHECKALERT with no rendezvous awaiting it")
		return false, nil
	}

	res, hErr := s.peerSess.HandleMessage(pf.Msg, peer.NewPid)
	if hErr != nil {
		s.logger.Warn("dropping unexpected or malformed P2P message", "error", hErr)
		return false, nil
	}
	if res.SendReply {
		if werr := writeFrame(s.peerSess.Conn, res.Reply); werr != nil {
			s.teardownPeer("write failure replying to peer")
			return false, nil
		}
	}
	if res.ExitProcess {
		s.logger.Info("peer acknowledged disconnect, shutting down")
		return true, nil
	}
	if res.Teardown {
		s.logger.Info("Peer disconnected", "pid", s.peerSess.PeerPidForLocal)
		s.cfg.Audit.PeerTornDown("graceful")
		s.peerSess.Reset()
		s.cfg.Metrics.SetPeerState(int(peer.Disconnected))
		s.armPassiveListener()
		return false, nil
	}
	if s.peerSess.Established() {
		s.cfg.Audit.PeerEstablished(s.cfg.Role.String(), s.peerSess.LocalPidForPeer, s.peerSess.PeerPidForLocal)
	}
	s.cfg.Metrics.SetPeerState(int(s.peerSess.State))
	return false, nil
}

// onReqCheckAlert answers an inbound REQ_CHECKALERT on the LOCATION role:
// spec.md §4.4's LOCATION-side handler is pure registry lookup, no I/O
// beyond the one reply frame, so it never blocks the event loop.
func (s *Server) onReqCheckAlert(sensorID string) {
	if s.cfg.Role != protocol.RoleLocation {
		s.logger.Warn("ignoring REQ_CHECKALERT received on the STATUS role")
		return
	}
	if !s.peerSess.Established() {
		return
	}
	frame := s.dispatcher.CheckAlertReply(sensorID)
	if err := writeFrame(s.peerSess.Conn, frame); err != nil {
		s.teardownPeer("write failure replying to REQ_CHECKALERT")
	}
}

// teardownPeer tears the P2P session down to Disconnected and re-arms the
// passive listener, per spec.md §4.2's teardown semantics.
func (s *Server) teardownPeer(reason string) {
	s.logger.Info("P2P session torn down", "reason", reason)
	s.cfg.Audit.PeerTornDown(reason)
	s.peerSess.Reset()
	s.cfg.Metrics.SetPeerState(int(peer.Disconnected))
	s.armPassiveListener()
}

// checkAlertRendezvous implements protocol.CheckAlertFunc: it sends
// REQ_CHECKALERT over the established P2P session and performs the one
// bounded synchronous read spec.md §4.4/§5 allows inside a handler. It
// runs on the event loop goroutine, so it genuinely blocks the loop for
// its duration — the one deliberate exception to "no handler blocks".
func (s *Server) checkAlertRendezvous(sensorID string, timeout time.Duration) (location int, notFound bool, ok bool, err error) {
	if !s.peerSess.Established() {
		return 0, false, false, errors.New("server: P2P session not established")
	}
	frame := wire.Build(wire.ReqCheckAlert, sensorID)
	if werr := writeFrame(s.peerSess.Conn, frame); werr != nil {
		s.teardownPeer("write failure sending REQ_CHECKALERT")
		return 0, false, false, werr
	}

	select {
	case pf := <-s.peerEvents:
		if pf.Err != nil {
			s.lastCheckAlertFailed.Store(true)
			s.teardownPeer("read failure during CHECKALERT")
			return 0, false, false, pf.Err
		}
		switch pf.Msg.Code {
		case wire.ResCheckAlert:
			loc, convErr := strconv.Atoi(strings.TrimSpace(pf.Msg.Payload))
			if convErr != nil {
				return 0, false, false, nil // unexpected/malformed reply
			}
			s.lastCheckAlertFailed.Store(false)
			return loc, false, true, nil
		case wire.Error:
			if pf.Msg.Payload == wire.ErrSensorNotFound {
				s.lastCheckAlertFailed.Store(false)
				return 0, true, false, nil
			}
			return 0, false, false, nil
		default:
			return 0, false, false, nil
		}
	case <-time.After(timeout):
		s.lastCheckAlertFailed.Store(true)
		s.teardownPeer("CHECKALERT timed out waiting for peer reply")
		return 0, false, false, errors.New("server: CHECKALERT timeout")
	}
}

func (s *Server) shutdown() {
	if s.clientListener != nil {
		s.clientListener.Close()
	}
	if s.p2pListener != nil {
		s.p2pListener.Close()
	}
	if s.peerSess.Conn != nil {
		s.peerSess.Conn.Close()
	}
	s.registry.CloseAll()
}
