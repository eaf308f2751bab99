package protocol

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sentryfab/sentryfab/internal/registry"
	"github.com/sentryfab/sentryfab/internal/wire"
)

// CheckAlertFunc performs the CHECKALERT rendezvous: it sends
// REQ_CHECKALERT(sensorID) over the established P2P session and returns
// the single bounded reply. ok is false and err is nil when the read
// simply didn't produce a usable reply (wrong code, malformed payload);
// err is non-nil only on a transport-level failure (write error, read
// error, or timeout), which the caller must treat as a P2P teardown.
type CheckAlertFunc func(sensorID string, timeout time.Duration) (location int, notFound bool, ok bool, err error)

// handleStatusSensorMessage handles REQ_SENSSTATUS, the only sensor-
// facing message specific to the STATUS role beyond REQ_CONNSEN/DISCSEN.
func (d *Dispatcher) handleStatusSensorMessage(slot *registry.Slot, msg wire.Message, rendezvous CheckAlertFunc) SensorResult {
	if msg.Code != wire.ReqSensStatus {
		d.Logger.Warn("unrecognized code on STATUS sensor connection, ignoring", "code", msg.Code)
		return SensorResult{}
	}

	slotNumber, err := strconv.Atoi(strings.TrimSpace(msg.Payload))
	if err != nil || !slot.Registered() || slot.Number != slotNumber {
		return SensorResult{Reply: wire.BuildError(wire.ErrSensorNotFound), SendReply: true}
	}

	if !slot.RiskFlag {
		return SensorResult{Reply: wire.Build(wire.ResSensStatus, "-1"), SendReply: true}
	}

	if rendezvous == nil {
		d.Logger.Error("risk flag set but no P2P session available for CHECKALERT", "sensor_id", slot.SensorID)
		return SensorResult{}
	}

	// Every rendezvous attempt gets its own correlation id so the audit
	// trail can tie the sensor-facing request to its CHECKALERT outcome
	// even though neither wire message carries one (spec.md §6 stays
	// byte-identical; the id only ever appears in the audit log).
	correlationID := uuid.NewString()
	start := time.Now()
	location, notFound, ok, err := rendezvous(slot.SensorID, d.CheckAlertTimeout)
	elapsed := time.Since(start).Seconds()
	switch {
	case err != nil:
		d.Metrics.ObserveCheckAlert("transport_error", elapsed)
		d.Audit.CheckAlertForwarded(correlationID, slot.SensorID, "transport_error")
		d.Logger.Error("CHECKALERT rendezvous failed, tearing down P2P", "correlation_id", correlationID, "sensor_id", slot.SensorID, "error", err)
		return SensorResult{} // no response to the sensor; P2P teardown is the event loop's job
	case notFound:
		d.Metrics.ObserveCheckAlert("not_found", elapsed)
		d.Audit.CheckAlertForwarded(correlationID, slot.SensorID, "not_found")
		return SensorResult{Reply: wire.BuildError(wire.ErrSensorNotFound), SendReply: true}
	case ok:
		d.Metrics.ObserveCheckAlert("ok", elapsed)
		d.Audit.CheckAlertForwarded(correlationID, slot.SensorID, "ok")
		return SensorResult{Reply: wire.Build(wire.ResSensStatus, strconv.Itoa(location)), SendReply: true}
	default:
		d.Metrics.ObserveCheckAlert("unexpected_reply", elapsed)
		d.Audit.CheckAlertForwarded(correlationID, slot.SensorID, "unexpected_reply")
		d.Logger.Warn("unexpected CHECKALERT reply, no response sent to sensor", "correlation_id", correlationID, "sensor_id", slot.SensorID)
		return SensorResult{}
	}
}

// SetRisk implements the admin `set_risk <sensor_id> <0|1>` command.
// It is a no-op (besides logging) if no registered slot matches.
func (d *Dispatcher) SetRisk(sensorID string, risk bool) {
	if !d.Registry.SetRisk(sensorID, risk) {
		d.Logger.Warn("set_risk: no matching registered sensor", "sensor_id", sensorID)
		return
	}
	d.Logger.Info("risk flag updated", "sensor_id", sensorID, "risk", risk)
	d.Audit.RiskFlagChanged(sensorID, risk)
}
