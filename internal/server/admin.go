package server

import (
	"errors"
	"strconv"
	"strings"

	"github.com/sentryfab/sentryfab/internal/protocol"
)

// handleAdminLine processes one line read from the admin console
// (spec.md §4.5). It reports whether the server should shut down.
func (s *Server) handleAdminLine(line string) (exit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "exit":
		s.logger.Info("admin requested shutdown")
		return true

	case "kill":
		s.handleAdminKill()
		return false

	case "set_risk":
		s.handleAdminSetRisk(fields[1:])
		return false

	default:
		s.logger.Warn("unrecognized admin command", "command", fields[0])
		return false
	}
}

// handleAdminKill implements the `kill` verb: request an orderly P2P
// disconnect. It is a no-op if no peer is currently established.
func (s *Server) handleAdminKill() {
	if !s.peerSess.Established() {
		s.logger.Info("No peer connected to close connection")
		return
	}
	frame, err := s.peerSess.BeginDisconnect()
	if err != nil {
		s.logger.Warn("kill: could not begin disconnect", "error", err)
		return
	}
	if err := writeFrame(s.peerSess.Conn, frame); err != nil {
		s.teardownPeer("write failure sending REQ_DISCPEER")
		return
	}
	s.logger.Info("sent disconnect request to peer")
}

// handleAdminSetRisk implements `set_risk <sensor_id> <0|1>`, a
// STATUS-role-only command (spec.md §4.5).
func (s *Server) handleAdminSetRisk(args []string) {
	if s.cfg.Role != protocol.RoleStatus {
		s.logger.Warn("set_risk is only valid on the STATUS role")
		return
	}
	if len(args) != 2 {
		s.logger.Warn("usage: set_risk <sensor_id> <0|1>")
		return
	}
	risk, err := parseRiskValue(args[1])
	if err != nil {
		s.logger.Warn("set_risk: invalid risk value", "value", args[1])
		return
	}
	s.dispatcher.SetRisk(args[0], risk)
}

func parseRiskValue(s string) (bool, error) {
	n, err := strconv.Atoi(s)
	if err != nil || (n != 0 && n != 1) {
		return false, errors.New("server: risk value must be 0 or 1")
	}
	return n == 1, nil
}
