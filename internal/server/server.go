// Package server wires together the wire codec, sensor registry, P2P
// session manager, and protocol dispatcher into the single-goroutine
// event loop described in spec.md §4.1 and §5.
package server

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/sentryfab/sentryfab/internal/peer"
	"github.com/sentryfab/sentryfab/internal/protocol"
	"github.com/sentryfab/sentryfab/internal/registry"
	"github.com/sentryfab/sentryfab/internal/telemetry"
	"github.com/sentryfab/sentryfab/internal/wire"
)

// peerFrame carries one decoded P2P frame, or the error that ended the
// P2P reader goroutine, onto the peerEvents channel.
type peerFrame struct {
	Msg wire.Message
	Err error
}

// Config holds everything needed to construct a Server. It corresponds
// directly to the four positional CLI arguments of spec.md §6, plus the
// ambient stack additions of SPEC_FULL.md §5.7.
type Config struct {
	Role              protocol.Role
	PeerHost          string // peer_ip
	P2PPort           int
	ClientPort        int
	CheckAlertTimeout time.Duration
	ListenBacklog     int // SPEC_FULL §11; 0 means use DefaultListenBacklog

	AdminInput io.Reader // defaults to os.Stdin in cmd/sentryfabd
	Logger     *slog.Logger
	Metrics    *telemetry.Metrics
	Audit      *telemetry.AuditLogger
}

// DefaultListenBacklog mirrors the original fabric's SERVER_BACKLOG.
const DefaultListenBacklog = 5

// DefaultCheckAlertTimeout bounds the CHECKALERT rendezvous read.
const DefaultCheckAlertTimeout = 3 * time.Second

// Server is one running SS or SL instance.
type Server struct {
	cfg Config

	logger *slog.Logger

	registry   *registry.Registry
	peerSess   *peer.Session
	dispatcher *protocol.Dispatcher

	clientListener net.Listener
	p2pListener    net.Listener

	events     chan any
	peerEvents chan peerFrame

	lastTick             atomic.Int64 // unix nanos, updated once per event loop iteration
	lastCheckAlertFailed atomic.Bool  // set on CHECKALERT timeout/transport error, cleared on success
}

// New constructs a Server ready for Start.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CheckAlertTimeout == 0 {
		cfg.CheckAlertTimeout = DefaultCheckAlertTimeout
	}
	if cfg.ListenBacklog == 0 {
		cfg.ListenBacklog = DefaultListenBacklog
	}
	reg := registry.New()
	s := &Server{
		cfg:        cfg,
		logger:     cfg.Logger,
		registry:   reg,
		peerSess:   peer.New(),
		events:     make(chan any, 16),
		peerEvents: make(chan peerFrame, 1),
	}
	s.dispatcher = protocol.New(cfg.Role, reg, cfg.CheckAlertTimeout, cfg.Logger, cfg.Audit, cfg.Metrics)
	return s
}

func bufReader(r io.Reader) *bufio.Reader { return bufio.NewReaderSize(r, wire.MaxMessageSize+64) }

func fmtAddr(host string, port int) string { return fmt.Sprintf("%s:%d", host, port) }

// LoopHealthy reports whether the event loop has processed at least one
// select iteration within maxAge. Used by the watchdog's "is the event
// loop goroutine still ticking" health check.
func (s *Server) LoopHealthy(maxAge time.Duration) error {
	last := s.lastTick.Load()
	if last == 0 {
		return nil // not started yet, or just starting up
	}
	age := time.Since(time.Unix(0, last))
	if age > maxAge {
		return fmt.Errorf("server: event loop has not ticked in %s", age.Round(time.Millisecond))
	}
	return nil
}

// PeerSessionState reports the current P2P session state machine value.
// Exposed for diagnostics and test harnesses; the event loop itself reads
// peerSess.State directly.
func (s *Server) PeerSessionState() peer.State {
	return s.peerSess.State
}

// CheckAlertHealthy reports whether the most recent CHECKALERT rendezvous
// (if any) completed without a transport error or timeout. Meaningful only
// on the STATUS role; the LOCATION role never initiates CHECKALERT.
func (s *Server) CheckAlertHealthy() error {
	if s.lastCheckAlertFailed.Load() {
		return fmt.Errorf("server: most recent CHECKALERT rendezvous failed")
	}
	return nil
}
