// Package server implements the proxy's accept loop: one Server per
// listener, spawning a Session per accepted connection. Grounded on the
// teacher's own srv.go (server.Listen/Serve, go s.Serve(conn) per accept).
package server

import (
	"context"
	"log/slog"
	"net"

	"github.com/panoplyio/pgproxy/internal/session"
)

// Server accepts client connections and hands each one to a new Session.
type Server struct {
	SessionConfig session.Config
	Logger        *slog.Logger
}

// New creates a Server that spawns sessions built from cfg.
func New(cfg session.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{SessionConfig: cfg, Logger: logger}
}

// Listen binds laddr and accepts connections until ctx is cancelled or
// Accept returns a fatal error.
func (s *Server) Listen(ctx context.Context, laddr string) error {
	ln, err := net.Listen("tcp", laddr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.Logger.Info("listening", "addr", laddr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.Serve(ctx, conn)
	}
}

// Serve runs a single accepted connection's session to completion.
func (s *Server) Serve(ctx context.Context, conn net.Conn) {
	sess := session.New(conn, s.SessionConfig)
	sess.Run(ctx)
}
