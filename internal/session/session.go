// Package session implements the Startup State Machine and Session
// components (spec §4.2, §4.4): the per-connection lifecycle from accepted
// client socket through authorization to teardown of a relayed pair.
package session

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panoplyio/pgproxy/internal/auth"
	"github.com/panoplyio/pgproxy/internal/metrics"
	"github.com/panoplyio/pgproxy/internal/pgerr"
	"github.com/panoplyio/pgproxy/internal/relay"
)

// Config carries the knobs a Session needs that come from the proxy's
// configuration rather than from the accepted connection itself.
type Config struct {
	Upstream   string
	TLSConfig  *tls.Config
	Authorizer auth.Authorizer
	ChainCap   int
	LinkIdle   time.Duration // zero disables the read deadline

	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// Session owns one accepted client connection for its entire lifetime:
// startup negotiation, then (if authorized) the two relay halves, then
// teardown. Grounded on Ratio1-tcp-tunnel-proxy's per-connection handler,
// which pairs a single accepted socket with a single dialed upstream and
// waits on both copy directions before closing.
type Session struct {
	client net.Conn
	cfg    Config
	peerIP string
}

// sessionSeq numbers sessions for the "session" attribute on their logs.
var sessionSeq atomic.Uint64

// New wraps an accepted client connection in a Session.
func New(client net.Conn, cfg Config) *Session {
	host, _, err := net.SplitHostPort(client.RemoteAddr().String())
	if err != nil {
		host = client.RemoteAddr().String()
	}
	return &Session{client: client, cfg: cfg, peerIP: host}
}

// Run drives the session to completion: dial the backend, negotiate
// startup, relay until either side closes, then close both links exactly
// once. It never returns an error — every outcome is logged and reflected
// in metrics, matching spec §4.4's teardown contract.
func (s *Session) Run(ctx context.Context) {
	logger := s.cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session", sessionSeq.Add(1), "peer", s.peerIP)

	backend, err := DialBackend(ctx, s.cfg.Upstream)
	if err != nil {
		logger.Error("backend dial failed", "error", pgerr.UpstreamConnectf(err, "dialing %s", s.cfg.Upstream))
		s.cfg.Metrics.SessionOutcome("dial_error")
		s.client.Close()
		return
	}

	m := &Machine{
		Conn:       s.client,
		PeerIP:     s.peerIP,
		TLSConfig:  s.cfg.TLSConfig,
		Authorizer: s.cfg.Authorizer,
		Backend:    backend,
		Logger:     logger,
		Metrics:    s.cfg.Metrics,
	}

	state, err := m.Run(ctx)
	// The state machine may have replaced m.Conn in place (TLS upgrade).
	clientConn := m.Conn

	closeOnce := sync.OnceFunc(func() {
		clientConn.Close()
		backend.Close()
	})
	defer closeOnce()

	if err != nil {
		logger.Debug("startup negotiation failed", "error", err, "state", state.String())
		s.cfg.Metrics.SessionOutcome("startup_error")
		return
	}

	switch state {
	case StateDenied:
		logger.Info("session denied")
		s.cfg.Metrics.SessionOutcome("denied")
		return
	case StateCancelled:
		logger.Debug("session cancelled")
		s.cfg.Metrics.SessionOutcome("cancelled")
		return
	case StateAuthorized:
		logger.Debug("session authorized")
	default:
		s.cfg.Metrics.SessionOutcome("error")
		return
	}

	toBackend := &relay.Half{
		Direction:   "client_to_backend",
		Src:         clientConn,
		Dst:         backend,
		ChainCap:    s.cfg.ChainCap,
		ReadTimeout: s.cfg.LinkIdle,
		Logger:      logger,
		Metrics:     s.cfg.Metrics,
	}
	toClient := &relay.Half{
		Direction:   "backend_to_client",
		Src:         backend,
		Dst:         clientConn,
		ChainCap:    s.cfg.ChainCap,
		ReadTimeout: s.cfg.LinkIdle,
		Logger:      logger,
		Metrics:     s.cfg.Metrics,
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		toBackend.Run(ctx)
		closeOnce()
	}()
	go func() {
		defer wg.Done()
		toClient.Run(ctx)
		closeOnce()
	}()
	wg.Wait()

	s.cfg.Metrics.SessionOutcome("relayed")
	logger.Debug("session torn down")
}
