// Package protocol implements the per-role message dispatch described in
// spec.md §4.4: validating inbound frames, mutating the sensor registry,
// and driving the cross-server CHECKALERT rendezvous.
package protocol

import (
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/sentryfab/sentryfab/internal/registry"
	"github.com/sentryfab/sentryfab/internal/telemetry"
	"github.com/sentryfab/sentryfab/internal/wire"
)

// Role is which of the two cooperating servers this dispatcher serves.
type Role int

const (
	RoleStatus Role = iota
	RoleLocation
)

func (r Role) String() string {
	if r == RoleStatus {
		return "SS"
	}
	return "SL"
}

// SensorResult tells the event loop what to do after dispatching one
// frame from a sensor connection.
type SensorResult struct {
	Reply     string
	SendReply bool
	Close     bool // close the socket and clear its slot
}

// Dispatcher owns no state of its own beyond references to the registry
// and configuration; the registry and peer session remain owned by the
// server's event loop, matching spec.md §5's single-writer rule.
type Dispatcher struct {
	Role              Role
	Registry          *registry.Registry
	CheckAlertTimeout time.Duration
	Logger            *slog.Logger
	Audit             *telemetry.AuditLogger
	Metrics           *telemetry.Metrics
}

// New builds a Dispatcher for the given role.
func New(role Role, reg *registry.Registry, checkAlertTimeout time.Duration, logger *slog.Logger, audit *telemetry.AuditLogger, metrics *telemetry.Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		Role:              role,
		Registry:          reg,
		CheckAlertTimeout: checkAlertTimeout,
		Logger:            logger,
		Audit:             audit,
		Metrics:           metrics,
	}
}

// DispatchSensor routes one frame received on a sensor connection. It
// handles the role-agnostic REQ_CONNSEN/REQ_DISCSEN messages itself and
// delegates everything else to the role-specific handler.
func (d *Dispatcher) DispatchSensor(conn net.Conn, slot *registry.Slot, msg wire.Message, rendezvous CheckAlertFunc) SensorResult {
	switch msg.Code {
	case wire.ReqConnSen:
		return d.handleConnSen(slot, msg.Payload)
	case wire.ReqDiscSen:
		return d.handleDiscSen(conn, msg.Payload)
	default:
		if d.Role == RoleStatus {
			return d.handleStatusSensorMessage(slot, msg, rendezvous)
		}
		return d.handleLocationSensorMessage(slot, msg)
	}
}

func (d *Dispatcher) handleConnSen(slot *registry.Slot, payload string) SensorResult {
	sensorID, location, err := parseConnSenPayload(payload)
	if err != nil {
		return SensorResult{Reply: wire.BuildError(wire.ErrInvalidPayload), SendReply: true, Close: true}
	}
	switch admitErr := d.Registry.Admit(slot, sensorID, location); admitErr {
	case nil:
		d.Logger.Info("sensor admitted", "role", d.Role, "slot", slot.Number, "sensor_id", sensorID, "location", location)
		d.Audit.SensorAdmitted(d.Role.String(), sensorID, slot.Number, location)
		d.Metrics.ObserveRegistrySize(d.Role.String(), d.Registry.RegisteredCount())
		return SensorResult{Reply: wire.Build(wire.ResConnSen, strconv.Itoa(slot.Number)), SendReply: true}
	case registry.ErrInvalidPayload:
		return SensorResult{Reply: wire.BuildError(wire.ErrInvalidPayload), SendReply: true, Close: true}
	case registry.ErrSensorIDExists:
		d.Metrics.IncWireError(d.Role.String(), wire.ErrSensorIDExists)
		return SensorResult{Reply: wire.BuildError(wire.ErrSensorIDExists), SendReply: true, Close: true}
	case registry.ErrSensorLimitExceeded:
		d.Metrics.IncWireError(d.Role.String(), wire.ErrSensorLimitExceeded)
		return SensorResult{Reply: wire.BuildError(wire.ErrSensorLimitExceeded), SendReply: true, Close: true}
	default:
		d.Logger.Error("unexpected registry admit error", "error", admitErr)
		return SensorResult{Close: true}
	}
}

func (d *Dispatcher) handleDiscSen(conn net.Conn, payload string) SensorResult {
	slotNumber, err := strconv.Atoi(strings.TrimSpace(payload))
	if err != nil {
		return SensorResult{Reply: wire.BuildError(wire.ErrSensorNotFound), SendReply: true}
	}
	if slot, ok := d.Registry.SlotFor(conn); ok {
		sensorID := slot.SensorID
		if err := d.Registry.Remove(conn, slotNumber); err != nil {
			return SensorResult{Reply: wire.BuildError(wire.ErrSensorNotFound), SendReply: true}
		}
		d.Logger.Info("sensor disconnected", "role", d.Role, "sensor_id", sensorID, "slot", slotNumber)
		d.Audit.SensorRemoved(d.Role.String(), sensorID, slotNumber)
		d.Metrics.ObserveRegistrySize(d.Role.String(), d.Registry.RegisteredCount())
		return SensorResult{Reply: wire.BuildOK(wire.OKDisconnect), SendReply: true, Close: true}
	}
	return SensorResult{Reply: wire.BuildError(wire.ErrSensorNotFound), SendReply: true}
}

// parseConnSenPayload parses "<sensor_id>,<location>".
func parseConnSenPayload(payload string) (sensorID string, location int, err error) {
	parts := strings.SplitN(payload, ",", 2)
	if len(parts) != 2 {
		return "", 0, registry.ErrInvalidPayload
	}
	sensorID = parts[0]
	location, convErr := strconv.Atoi(strings.TrimSpace(parts[1]))
	if convErr != nil {
		return "", 0, registry.ErrInvalidPayload
	}
	if err := registry.ValidatePayload(sensorID, location); err != nil {
		return "", 0, err
	}
	return sensorID, location, nil
}

// parseLocListPayload parses "<requester_slot>,<location>".
func parseLocListPayload(payload string) (requesterSlot, location int, err error) {
	parts := strings.SplitN(payload, ",", 2)
	if len(parts) != 2 {
		return 0, 0, registry.ErrInvalidPayload
	}
	requesterSlot, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	location, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return 0, 0, registry.ErrInvalidPayload
	}
	return requesterSlot, location, nil
}
