package telemetry

import "log/slog"

// AuditLogger writes structured audit events for registry and peer
// lifecycle changes. Every method is nil-safe: calling any method on a
// nil *AuditLogger is a no-op, so callers never need a nil check.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates an AuditLogger writing under the "audit" group.
func NewAuditLogger(handler slog.Handler) *AuditLogger {
	return &AuditLogger{logger: slog.New(handler).WithGroup("audit")}
}

// SensorAdmitted logs a successful REQ_CONNSEN.
func (a *AuditLogger) SensorAdmitted(role, sensorID string, slot, location int) {
	if a == nil {
		return
	}
	a.logger.Info("sensor_admitted", "role", role, "sensor_id", sensorID, "slot", slot, "location", location)
}

// SensorRemoved logs a REQ_DISCSEN removal. Passive removal on EOF or a
// read error is not reported through it.
func (a *AuditLogger) SensorRemoved(role, sensorID string, slot int) {
	if a == nil {
		return
	}
	a.logger.Info("sensor_removed", "role", role, "sensor_id", sensorID, "slot", slot)
}

// PeerEstablished logs a completed P2P handshake.
func (a *AuditLogger) PeerEstablished(side, localPid, peerPid string) {
	if a == nil {
		return
	}
	a.logger.Info("peer_established", "side", side, "local_pid_for_peer", localPid, "peer_pid_for_local", peerPid)
}

// PeerTornDown logs a P2P session teardown, graceful or not.
func (a *AuditLogger) PeerTornDown(reason string) {
	if a == nil {
		return
	}
	a.logger.Info("peer_torn_down", "reason", reason)
}

// CheckAlertForwarded logs the outcome of a CHECKALERT rendezvous, tagged
// with the correlation id the dispatcher minted for that attempt.
func (a *AuditLogger) CheckAlertForwarded(correlationID, sensorID, outcome string) {
	if a == nil {
		return
	}
	a.logger.Info("checkalert_forwarded", "correlation_id", correlationID, "sensor_id", sensorID, "outcome", outcome)
}

// RiskFlagChanged logs an admin set_risk command.
func (a *AuditLogger) RiskFlagChanged(sensorID string, risk bool) {
	if a == nil {
		return
	}
	a.logger.Info("risk_flag_changed", "sensor_id", sensorID, "risk", risk)
}
