package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/panoplyio/pgproxy/internal/auth"
	"github.com/panoplyio/pgproxy/internal/session"
	"github.com/stretchr/testify/require"
)

func TestServer_Listen_StopsOnContextCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	s := New(session.Config{Authorizer: auth.AllowAll}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Listen(ctx, addr)
	}()

	// Give the accept loop a moment to bind before cancelling.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after context cancellation")
	}
}

func TestServer_Listen_InvalidAddrReturnsError(t *testing.T) {
	s := New(session.Config{}, nil)
	err := s.Listen(context.Background(), "not-a-valid-address")
	require.Error(t, err)
}
