package session

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDialBackend_TCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	conn, err := DialBackend(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.Equal(t, "tcp", conn.RemoteAddr().Network())
}

func TestDialBackend_UnixSocket(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix sockets not exercised on windows")
	}

	dir := t.TempDir()
	sockPath := filepath.Join(dir, ".s.PGSQL.5432")

	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	require.FileExists(t, sockPath)

	conn, err := DialBackend(context.Background(), sockPath)
	require.NoError(t, err)
	defer conn.Close()
	require.Equal(t, "unix", conn.RemoteAddr().Network())
}

func TestDialBackend_NonexistentPathFallsBackToTCP(t *testing.T) {
	_, err := DialBackend(context.Background(), filepath.Join(os.TempDir(), "does-not-exist.sock"))
	// Not a real path on disk, so DialBackend treats it as host:port and
	// fails to dial rather than treating it as a unix socket.
	require.Error(t, err)
}
