package protocol

import (
	"errors"
	"testing"
	"time"

	"github.com/sentryfab/sentryfab/internal/wire"
)

func TestSensStatusNormalNoRisk(t *testing.T) {
	d, reg := newTestDispatcher(RoleStatus)
	conn := testConn(t)
	slot, _ := reg.Occupy(conn)
	d.DispatchSensor(conn, slot, wire.Message{Code: wire.ReqConnSen, Payload: "1234567890,3"}, nil)

	res := d.DispatchSensor(conn, slot, wire.Message{Code: wire.ReqSensStatus, Payload: "1"}, nil)
	if !res.SendReply {
		t.Fatal("expected a reply")
	}
	msg, _ := wire.Parse(res.Reply[:len(res.Reply)-1])
	if msg.Code != wire.ResSensStatus || msg.Payload != "-1" {
		t.Fatalf("got %+v", msg)
	}
}

func TestSensStatusSlotMismatch(t *testing.T) {
	d, reg := newTestDispatcher(RoleStatus)
	conn := testConn(t)
	slot, _ := reg.Occupy(conn)
	d.DispatchSensor(conn, slot, wire.Message{Code: wire.ReqConnSen, Payload: "1234567890,3"}, nil)

	res := d.DispatchSensor(conn, slot, wire.Message{Code: wire.ReqSensStatus, Payload: "99"}, nil)
	msg, _ := wire.Parse(res.Reply[:len(res.Reply)-1])
	if msg.Code != wire.Error || msg.Payload != wire.ErrSensorNotFound {
		t.Fatalf("got %+v", msg)
	}
}

func TestSensStatusRiskForwardsCheckAlertResult(t *testing.T) {
	d, reg := newTestDispatcher(RoleStatus)
	conn := testConn(t)
	slot, _ := reg.Occupy(conn)
	d.DispatchSensor(conn, slot, wire.Message{Code: wire.ReqConnSen, Payload: "1234567890,3"}, nil)
	d.SetRisk("1234567890", true)

	rendezvous := func(sensorID string, timeout time.Duration) (int, bool, bool, error) {
		if sensorID != "1234567890" {
			t.Fatalf("unexpected sensor_id %q", sensorID)
		}
		return 7, false, true, nil
	}

	res := d.DispatchSensor(conn, slot, wire.Message{Code: wire.ReqSensStatus, Payload: "1"}, rendezvous)
	msg, _ := wire.Parse(res.Reply[:len(res.Reply)-1])
	if msg.Code != wire.ResSensStatus || msg.Payload != "7" {
		t.Fatalf("got %+v", msg)
	}
}

func TestSensStatusRiskNotFoundForwardsError(t *testing.T) {
	d, reg := newTestDispatcher(RoleStatus)
	conn := testConn(t)
	slot, _ := reg.Occupy(conn)
	d.DispatchSensor(conn, slot, wire.Message{Code: wire.ReqConnSen, Payload: "1234567890,3"}, nil)
	d.SetRisk("1234567890", true)

	rendezvous := func(sensorID string, timeout time.Duration) (int, bool, bool, error) {
		return 0, true, false, nil
	}

	res := d.DispatchSensor(conn, slot, wire.Message{Code: wire.ReqSensStatus, Payload: "1"}, rendezvous)
	msg, _ := wire.Parse(res.Reply[:len(res.Reply)-1])
	if msg.Code != wire.Error || msg.Payload != wire.ErrSensorNotFound {
		t.Fatalf("got %+v", msg)
	}
}

func TestSensStatusRiskTransportFailureGivesNoResponse(t *testing.T) {
	d, reg := newTestDispatcher(RoleStatus)
	conn := testConn(t)
	slot, _ := reg.Occupy(conn)
	d.DispatchSensor(conn, slot, wire.Message{Code: wire.ReqConnSen, Payload: "1234567890,3"}, nil)
	d.SetRisk("1234567890", true)

	rendezvous := func(sensorID string, timeout time.Duration) (int, bool, bool, error) {
		return 0, false, false, errors.New("p2p read timeout")
	}

	res := d.DispatchSensor(conn, slot, wire.Message{Code: wire.ReqSensStatus, Payload: "1"}, rendezvous)
	if res.SendReply {
		t.Fatalf("expected no response to the sensor on transport failure, got %+v", res)
	}
}

func TestSetRiskNoMatchIsNoop(t *testing.T) {
	d, _ := newTestDispatcher(RoleStatus)
	d.SetRisk("0000000000", true) // must not panic
}
