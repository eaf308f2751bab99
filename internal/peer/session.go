// Package peer implements the P2P session manager: the startup race
// between active and passive connection establishment, the REQ_CONNPEER/
// RES_CONNPEER handshake, and the orderly REQ_DISCPEER teardown protocol
// described in spec.md §4.2.
package peer

import (
	"errors"
	"net"

	"github.com/sentryfab/sentryfab/internal/wire"
)

// State is one state in the P2P session state machine.
type State int

const (
	Disconnected State = iota
	ActiveConnecting
	PassiveListening
	ReqSent
	ResSentAwaitingRes
	FullyEstablished
	DisconnectReqSent
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case ActiveConnecting:
		return "ACTIVE_CONNECTING"
	case PassiveListening:
		return "PASSIVE_LISTENING"
	case ReqSent:
		return "REQ_SENT"
	case ResSentAwaitingRes:
		return "RES_SENT_AWAITING_RES"
	case FullyEstablished:
		return "FULLY_ESTABLISHED"
	case DisconnectReqSent:
		return "DISCONNECT_REQ_SENT"
	default:
		return "UNKNOWN"
	}
}

// ErrUnexpectedMessage is returned (and should only be logged, never acted
// on further) when a message arrives in a state that doesn't expect it.
var ErrUnexpectedMessage = errors.New("peer: message not expected in current state")

// Session is the single P2P session a server maintains. The zero value,
// after New, is Disconnected with no connection.
type Session struct {
	State           State
	Conn            net.Conn
	LocalPidForPeer string // the pid this server uses to name its peer
	PeerPidForLocal string // the pid the peer uses to name this server
}

// New returns a fresh, disconnected session.
func New() *Session {
	return &Session{State: Disconnected}
}

// Reset tears the session back down to Disconnected, closing the
// connection if one is held. It is always safe to call.
func (s *Session) Reset() {
	if s.Conn != nil {
		s.Conn.Close()
	}
	*s = Session{State: Disconnected}
}

// Established reports whether the handshake has fully completed.
func (s *Session) Established() bool { return s.State == FullyEstablished }

// BeginActive is called after a successful outbound dial. It transitions
// to REQ_SENT and returns the REQ_CONNPEER frame the caller must write.
func (s *Session) BeginActive(conn net.Conn) string {
	s.Conn = conn
	s.State = ReqSent
	return wire.Build(wire.ReqConnPeer, "")
}

// BeginPassive is called after accepting an inbound P2P connection, before
// any message has been read from it.
func (s *Session) BeginPassive(conn net.Conn) {
	s.Conn = conn
	s.State = PassiveListening
}

// Result describes what the event loop should do after HandleMessage.
type Result struct {
	Reply       string // frame to write back, if any
	SendReply   bool
	Teardown    bool // session must be closed and the passive listener re-armed
	ExitProcess bool // this server initiated disconnect and the peer confirmed it
}

// HandleMessage advances the session state machine on an inbound P2P
// frame. newPid generates a fresh pid when this side must assign one for
// its peer (the passive side's response to REQ_CONNPEER, and the active
// side's own assignment during the final handshake step).
func (s *Session) HandleMessage(msg wire.Message, newPid func() (string, error)) (Result, error) {
	switch msg.Code {
	case wire.ReqConnPeer:
		return s.onReqConnPeer(newPid)
	case wire.ResConnPeer:
		return s.onResConnPeer(msg.Payload, newPid)
	case wire.ReqDiscPeer:
		return s.onReqDiscPeer(msg.Payload)
	case wire.OK:
		return s.onOK(msg.Payload)
	case wire.Error:
		return s.onError(msg.Payload)
	default:
		return Result{}, ErrUnexpectedMessage
	}
}

func (s *Session) onReqConnPeer(newPid func() (string, error)) (Result, error) {
	if s.State != PassiveListening {
		return Result{}, ErrUnexpectedMessage
	}
	pid, err := newPid()
	if err != nil {
		return Result{}, err
	}
	s.LocalPidForPeer = pid
	s.State = ResSentAwaitingRes
	return Result{Reply: wire.Build(wire.ResConnPeer, pid), SendReply: true}, nil
}

func (s *Session) onResConnPeer(payload string, newPid func() (string, error)) (Result, error) {
	if err := ValidatePid(payload); err != nil {
		return Result{}, err
	}
	switch s.State {
	case ReqSent:
		// Active side: final leg of the handshake.
		s.PeerPidForLocal = payload
		pid, err := newPid()
		if err != nil {
			return Result{}, err
		}
		s.LocalPidForPeer = pid
		s.State = FullyEstablished
		return Result{Reply: wire.Build(wire.ResConnPeer, pid), SendReply: true}, nil
	case ResSentAwaitingRes:
		// Passive side: receives the active side's final RES_CONNPEER.
		s.PeerPidForLocal = payload
		s.State = FullyEstablished
		return Result{}, nil
	default:
		return Result{}, ErrUnexpectedMessage
	}
}

func (s *Session) onReqDiscPeer(payload string) (Result, error) {
	if s.State != FullyEstablished {
		return Result{}, ErrUnexpectedMessage
	}
	if err := ValidatePid(payload); err != nil {
		return Result{}, err
	}
	if payload != s.PeerPidForLocal {
		return Result{Reply: wire.BuildError(wire.ErrPeerNotFound), SendReply: true}, nil
	}
	return Result{
		Reply:     wire.BuildOK(wire.OKDisconnect),
		SendReply: true,
		Teardown:  true,
	}, nil
}

func (s *Session) onOK(payload string) (Result, error) {
	if s.State != DisconnectReqSent {
		return Result{}, ErrUnexpectedMessage
	}
	if payload != wire.OKDisconnect {
		return Result{}, ErrUnexpectedMessage
	}
	return Result{ExitProcess: true}, nil
}

func (s *Session) onError(payload string) (Result, error) {
	if s.State != DisconnectReqSent {
		return Result{}, ErrUnexpectedMessage
	}
	if payload != wire.ErrPeerNotFound {
		return Result{}, ErrUnexpectedMessage
	}
	return Result{Teardown: true}, nil
}

// BeginDisconnect is invoked by the admin console's "kill" command. It is
// only valid when FullyEstablished.
func (s *Session) BeginDisconnect() (string, error) {
	if s.State != FullyEstablished {
		return "", errors.New("peer: kill requires an established session")
	}
	s.State = DisconnectReqSent
	return wire.Build(wire.ReqDiscPeer, s.LocalPidForPeer), nil
}
