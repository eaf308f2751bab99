// Command sentryfabd runs one half (STATUS or LOCATION) of the sensor
// monitoring fabric described in spec.md.
//
// Usage:
//
//	sentryfabd [--config <path>] <peer_ip> <p2p_port> <client_listen_port> <SS|SL>
//	sentryfabd version
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/sentryfab/sentryfab/internal/buildinfo"
	"github.com/sentryfab/sentryfab/internal/config"
	"github.com/sentryfab/sentryfab/internal/protocol"
	"github.com/sentryfab/sentryfab/internal/server"
	"github.com/sentryfab/sentryfab/internal/telemetry"
	"github.com/sentryfab/sentryfab/internal/watchdog"
)

var osExit = os.Exit

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if len(os.Args) >= 2 && (os.Args[1] == "version" || os.Args[1] == "--version") {
		fmt.Println(buildinfo.String())
		return
	}

	if err := run(os.Args[1:]); err != nil {
		slog.Error("sentryfabd exiting", "error", err)
		osExit(1)
	}
}

func run(args []string) error {
	args = reorderArgs(args, nil)

	fs := flag.NewFlagSet("sentryfabd", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML config file (CLI arguments always override it)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	positional := fs.Args()

	cfg, err := buildServerConfig(*configPath, positional)
	if err != nil {
		return err
	}

	metrics := telemetry.NewMetrics(buildinfo.Version, buildinfo.Commit)
	var audit *telemetry.AuditLogger
	if cfg.audit {
		audit = telemetry.NewAuditLogger(slog.Default().Handler())
	}

	if cfg.metricsListenAddr != "" {
		go serveMetrics(cfg.metricsListenAddr, metrics)
	}

	srv := server.New(server.Config{
		Role:              cfg.role,
		PeerHost:          cfg.peerHost,
		P2PPort:           cfg.p2pPort,
		ClientPort:        cfg.clientPort,
		CheckAlertTimeout: cfg.checkAlertTimeout,
		ListenBacklog:     cfg.listenBacklog,
		AdminInput:        os.Stdin,
		Logger:            slog.Default(),
		Metrics:           metrics,
		Audit:             audit,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runWatchdog(ctx, srv, cfg.role)

	if err := watchdog.Ready(); err != nil {
		slog.Warn("sd_notify READY failed", "error", err)
	}
	defer watchdog.Stopping()

	return srv.Run()
}

// runWatchdog reports event-loop liveness, and on the STATUS role the
// health of the most recent CHECKALERT rendezvous, to systemd.
func runWatchdog(ctx context.Context, srv *server.Server, role protocol.Role) {
	checks := []watchdog.HealthCheck{
		{Name: "event_loop", Check: func() error { return srv.LoopHealthy(30 * time.Second) }},
	}
	if role == protocol.RoleStatus {
		checks = append(checks, watchdog.HealthCheck{
			Name:  "checkalert_rendezvous",
			Check: srv.CheckAlertHealthy,
		})
	}
	watchdog.Run(ctx, watchdog.Config{Interval: 10 * time.Second}, checks)
}

func serveMetrics(addr string, metrics *telemetry.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics listener stopped", "error", err)
	}
}

// resolvedConfig merges a --config file (if any) with the mandatory CLI
// positional arguments; CLI values always win, per SPEC_FULL.md §5.7.
type resolvedConfig struct {
	role              protocol.Role
	peerHost          string
	p2pPort           int
	clientPort        int
	checkAlertTimeout time.Duration
	listenBacklog     int
	audit             bool
	metricsListenAddr string
}

func buildServerConfig(configPath string, positional []string) (resolvedConfig, error) {
	var rc resolvedConfig

	if configPath != "" {
		// The config file only supplies ambient-stack settings; the four
		// mandatory positional arguments below always come from the CLI
		// and are never overridden by the file (spec.md §6's CLI contract
		// stays unmodified, per SPEC_FULL.md §5.7).
		fileCfg, err := config.Load(configPath)
		if err != nil {
			return rc, err
		}
		rc.checkAlertTimeout = fileCfg.CheckAlertTimeout
		rc.listenBacklog = fileCfg.ListenBacklog
		rc.audit = fileCfg.Telemetry.Audit.Enabled
		if fileCfg.Telemetry.Metrics.Enabled {
			rc.metricsListenAddr = fileCfg.Telemetry.Metrics.ListenAddress
		}
	}

	if len(positional) != 4 {
		return rc, fmt.Errorf("usage: sentryfabd [--config <path>] <peer_ip> <p2p_port> <client_listen_port> <SS|SL>")
	}

	rc.peerHost = positional[0]

	p2pPort, err := strconv.Atoi(positional[1])
	if err != nil {
		return rc, fmt.Errorf("invalid p2p_port %q: %w", positional[1], err)
	}
	rc.p2pPort = p2pPort

	clientPort, err := strconv.Atoi(positional[2])
	if err != nil {
		return rc, fmt.Errorf("invalid client_listen_port %q: %w", positional[2], err)
	}
	rc.clientPort = clientPort

	switch positional[3] {
	case "SS":
		rc.role = protocol.RoleStatus
	case "SL":
		rc.role = protocol.RoleLocation
	default:
		return rc, fmt.Errorf("invalid role %q: must be SS or SL", positional[3])
	}

	return rc, nil
}
