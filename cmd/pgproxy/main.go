// Command pgproxy runs the transparent PostgreSQL authorization proxy:
// load configuration, wire the startup state machine and relay, and serve
// until killed (spec §6). Wiring follows dbbouncer/cmd/dbbouncer/main.go's
// shape: flags layered on a loaded config file, then run until a signal.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/panoplyio/pgproxy/internal/auth"
	"github.com/panoplyio/pgproxy/internal/config"
	"github.com/panoplyio/pgproxy/internal/metrics"
	"github.com/panoplyio/pgproxy/internal/server"
	"github.com/panoplyio/pgproxy/internal/session"
	"github.com/panoplyio/pgproxy/internal/tlsutil"
)

func main() {
	configPath := flag.String("config", "configs/pgproxy.yaml", "path to configuration file")
	listen := flag.String("listen", "", "override listen address:port")
	upstream := flag.String("upstream", "", "override upstream socket path or host:port")
	authScript := flag.String("auth-script", "", "override external authorization program path")
	verbosity := flag.String("verbosity", "", "override log verbosity (ERROR|INFO|DEBUG|TRACE)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// No config file is a common, supported starting point: every
		// knob has a default (spec §6), so fall back to an empty config
		// rather than refusing to start.
		if errors.Is(err, os.ErrNotExist) {
			cfg = &config.Config{}
			applyFlagDefaults(cfg)
		} else {
			fatal("loading config: %v", err)
		}
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *upstream != "" {
		cfg.Upstream = *upstream
	}
	if *authScript != "" {
		cfg.AuthScript = *authScript
	}
	if *verbosity != "" {
		cfg.Verbosity = *verbosity
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	var tlsConfig *tls.Config
	if cfg.SSL.Enabled() {
		tlsConfig, err = tlsutil.LoadServerConfig(cfg.SSL.Cert, cfg.SSL.Key)
		if err != nil {
			fatal("loading TLS material: %v", err)
		}
	}

	var authorizer auth.Authorizer = auth.AllowAll
	if cfg.AuthScript != "" && cfg.AuthScript != "true" {
		authorizer = auth.NewScriptAuthorizer(cfg.AuthScript)
	}

	collector := metrics.New()

	sessionCfg := session.Config{
		Upstream:   cfg.Upstream,
		TLSConfig:  tlsConfig,
		Authorizer: authorizer,
		ChainCap:   cfg.MaxChain,
		LinkIdle:   cfg.Timeout.Duration(),
		Logger:     logger,
		Metrics:    collector,
	}

	srv := server.New(sessionCfg, logger)
	admin := server.NewAdminServer(cfg.Admin.Listen, collector)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		if err := admin.ListenAndServe(); err != nil {
			logger.Error("admin server exited", "error", err)
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Listen(ctx, cfg.Listen)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			logger.Error("listener exited", "error", err)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := admin.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown failed", "error", err)
	}

	logger.Info("pgproxy stopped")
}

// applyFlagDefaults fills in spec §6's defaults for the no-config-file
// startup path, mirroring what config.Load applies internally when a
// file is present.
func applyFlagDefaults(cfg *config.Config) {
	cfg.Listen = "0.0.0.0:6000"
	cfg.Upstream = "/var/run/postgresql/.s.PGSQL.5432"
	cfg.AuthScript = "true"
	cfg.SetTimeout(config.DefaultTimeout)
	cfg.MaxChain = 10_000_000
	cfg.Admin.Listen = "127.0.0.1:9090"
	cfg.Verbosity = "INFO"
}

func fatal(format string, args ...interface{}) {
	slog.Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}
