package protocol

import (
	"strconv"
	"strings"

	"github.com/sentryfab/sentryfab/internal/registry"
	"github.com/sentryfab/sentryfab/internal/wire"
)

// handleLocationSensorMessage handles REQ_SENSLOC and REQ_LOCLIST, the
// sensor-facing messages specific to the LOCATION role beyond
// REQ_CONNSEN/REQ_DISCSEN.
func (d *Dispatcher) handleLocationSensorMessage(slot *registry.Slot, msg wire.Message) SensorResult {
	switch msg.Code {
	case wire.ReqSensLoc:
		return d.handleSensLoc(msg.Payload)
	case wire.ReqLocList:
		return d.handleLocList(slot, msg.Payload)
	default:
		d.Logger.Warn("unrecognized code on LOCATION sensor connection, ignoring", "code", msg.Code)
		return SensorResult{}
	}
}

func (d *Dispatcher) handleSensLoc(sensorID string) SensorResult {
	slot, ok := d.Registry.LookupBySensorID(strings.TrimSpace(sensorID))
	if !ok || slot.Location <= 0 {
		return SensorResult{Reply: wire.BuildError(wire.ErrSensorNotFound), SendReply: true}
	}
	return SensorResult{Reply: wire.Build(wire.ResSensLoc, strconv.Itoa(slot.Location)), SendReply: true}
}

func (d *Dispatcher) handleLocList(requester *registry.Slot, payload string) SensorResult {
	_, location, err := parseLocListPayload(payload)
	if err != nil || location < registry.MinLocation || location > registry.MaxLocation {
		return SensorResult{Reply: wire.BuildError(wire.ErrInvalidPayload), SendReply: true}
	}
	ids := d.Registry.SensorIDsAtLocation(location)
	if len(ids) == 0 {
		return SensorResult{Reply: wire.BuildError(wire.ErrSensorNotFound), SendReply: true}
	}
	return SensorResult{Reply: wire.Build(wire.ResLocList, strings.Join(ids, ",")), SendReply: true}
}

// CheckAlertReply is what the LOCATION role answers a REQ_CHECKALERT
// with, computed purely from registry state (no I/O).
func (d *Dispatcher) CheckAlertReply(sensorID string) string {
	slot, ok := d.Registry.LookupBySensorID(strings.TrimSpace(sensorID))
	if !ok || slot.Location <= 0 {
		d.Metrics.IncWireError(d.Role.String(), wire.ErrSensorNotFound)
		return wire.BuildError(wire.ErrSensorNotFound)
	}
	return wire.Build(wire.ResCheckAlert, strconv.Itoa(slot.Location))
}
