package peer

import (
	"net"
	"testing"

	"github.com/sentryfab/sentryfab/internal/wire"
)

func pipe(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

func constPid(pid string) func() (string, error) {
	return func() (string, error) { return pid, nil }
}

func TestHandshakeFullyEstablishesBothSides(t *testing.T) {
	connA, connP := pipe(t)

	active := New()
	passive := New()

	frame := active.BeginActive(connA)
	if active.State != ReqSent {
		t.Fatalf("active state = %v, want ReqSent", active.State)
	}
	msg, err := wire.Parse(frame[:len(frame)-1])
	if err != nil {
		t.Fatal(err)
	}

	passive.BeginPassive(connP)
	res, err := passive.HandleMessage(msg, constPid("pid-for-a"))
	if err != nil {
		t.Fatal(err)
	}
	if passive.State != ResSentAwaitingRes || passive.LocalPidForPeer != "pid-for-a" {
		t.Fatalf("passive state after REQ_CONNPEER: %+v", passive)
	}

	respMsg, err := wire.Parse(res.Reply[:len(res.Reply)-1])
	if err != nil {
		t.Fatal(err)
	}
	res2, err := active.HandleMessage(respMsg, constPid("pid-for-p"))
	if err != nil {
		t.Fatal(err)
	}
	if active.State != FullyEstablished {
		t.Fatalf("active state = %v, want FullyEstablished", active.State)
	}
	if active.PeerPidForLocal != "pid-for-a" || active.LocalPidForPeer != "pid-for-p" {
		t.Fatalf("active pids: %+v", active)
	}

	finalMsg, err := wire.Parse(res2.Reply[:len(res2.Reply)-1])
	if err != nil {
		t.Fatal(err)
	}
	if _, err := passive.HandleMessage(finalMsg, nil); err != nil {
		t.Fatal(err)
	}
	if passive.State != FullyEstablished {
		t.Fatalf("passive state = %v, want FullyEstablished", passive.State)
	}
	if passive.PeerPidForLocal != "pid-for-p" {
		t.Fatalf("passive.PeerPidForLocal = %q, want pid-for-p", passive.PeerPidForLocal)
	}

	// Invariant: P.LocalPidForPeer == A.PeerPidForLocal and vice versa.
	if passive.LocalPidForPeer != active.PeerPidForLocal {
		t.Fatal("pid symmetry invariant violated (P side)")
	}
	if active.LocalPidForPeer != passive.PeerPidForLocal {
		t.Fatal("pid symmetry invariant violated (A side)")
	}
}

func TestUnexpectedMessageInWrongState(t *testing.T) {
	s := New()
	_, err := s.HandleMessage(wire.Message{Code: wire.ResConnPeer, Payload: "x"}, constPid("p"))
	if err == nil {
		t.Fatal("expected error for RES_CONNPEER while Disconnected")
	}
}

func TestDisconnectMismatchedPidKeepsSessionEstablished(t *testing.T) {
	s := New()
	s.State = FullyEstablished
	s.PeerPidForLocal = "abc123"

	res, err := s.HandleMessage(wire.Message{Code: wire.ReqDiscPeer, Payload: "wrong"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Teardown {
		t.Fatal("mismatched pid must not tear down the session")
	}
	if s.State != FullyEstablished {
		t.Fatalf("state = %v, want still FullyEstablished", s.State)
	}
	msg, _ := wire.Parse(res.Reply[:len(res.Reply)-1])
	if msg.Code != wire.Error || msg.Payload != wire.ErrPeerNotFound {
		t.Fatalf("got reply %+v", msg)
	}
}

func TestDisconnectMatchedPidTearsDown(t *testing.T) {
	s := New()
	s.State = FullyEstablished
	s.PeerPidForLocal = "abc123"

	res, err := s.HandleMessage(wire.Message{Code: wire.ReqDiscPeer, Payload: "abc123"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Teardown {
		t.Fatal("matched pid must tear down the session")
	}
	msg, _ := wire.Parse(res.Reply[:len(res.Reply)-1])
	if msg.Code != wire.OK || msg.Payload != wire.OKDisconnect {
		t.Fatalf("got reply %+v", msg)
	}
}

func TestInitiatorExitsOnOKDisconnectAck(t *testing.T) {
	s := New()
	s.State = DisconnectReqSent
	res, err := s.HandleMessage(wire.Message{Code: wire.OK, Payload: wire.OKDisconnect}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.ExitProcess {
		t.Fatal("expected ExitProcess on OK(01) while DisconnectReqSent")
	}
}

func TestInitiatorTeardownWithoutExitOnErrorAck(t *testing.T) {
	s := New()
	s.State = DisconnectReqSent
	res, err := s.HandleMessage(wire.Message{Code: wire.Error, Payload: wire.ErrPeerNotFound}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.ExitProcess {
		t.Fatal("ERROR(02) must not exit the process")
	}
	if !res.Teardown {
		t.Fatal("ERROR(02) must tear the session down locally")
	}
}

func TestBeginDisconnectRequiresEstablished(t *testing.T) {
	s := New()
	if _, err := s.BeginDisconnect(); err == nil {
		t.Fatal("expected error when not FullyEstablished")
	}
}

func TestOversizedPidRejected(t *testing.T) {
	s := New()
	s.State = PassiveListening
	_, err := s.HandleMessage(wire.Message{Code: wire.ResConnPeer, Payload: string(make([]byte, MaxPidLength+1))}, nil)
	if err == nil {
		t.Fatal("expected ErrPidTooLong")
	}
}
