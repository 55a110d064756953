package session

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/panoplyio/pgproxy/internal/auth"
	"github.com/stretchr/testify/require"
)

func buildStartupMessage(params map[string]string) []byte {
	var body bytes.Buffer
	var versionBE [4]byte
	binary.BigEndian.PutUint32(versionBE[:], 196608)
	body.Write(versionBE[:])

	for k, v := range params {
		body.WriteString(k)
		body.WriteByte(0)
		body.WriteString(v)
		body.WriteByte(0)
	}
	body.WriteByte(0)

	var frame bytes.Buffer
	var lengthBE [4]byte
	binary.BigEndian.PutUint32(lengthBE[:], uint32(4+body.Len()))
	frame.Write(lengthBE[:])
	frame.Write(body.Bytes())
	return frame.Bytes()
}

func TestMachine_Run_AuthorizedStartup(t *testing.T) {
	client, proxySide := net.Pipe()
	defer client.Close()

	var backend bytes.Buffer
	m := &Machine{Conn: proxySide, PeerIP: "127.0.0.1", Authorizer: auth.AllowAll, Backend: &backend}

	done := make(chan struct{})
	var state State
	var runErr error
	go func() {
		state, runErr = m.Run(context.Background())
		close(done)
	}()

	msg := buildStartupMessage(map[string]string{"user": "alice", "database": "app"})
	_, err := client.Write(msg)
	require.NoError(t, err)

	<-done
	require.NoError(t, runErr)
	require.Equal(t, StateAuthorized, state)
	require.Equal(t, msg, backend.Bytes())
}

func TestMachine_Run_DeniedStartup(t *testing.T) {
	client, proxySide := net.Pipe()
	defer client.Close()

	var backend bytes.Buffer
	deny := auth.AuthorizerFunc(func(ctx context.Context, clientIP, role, database string) bool { return false })
	m := &Machine{Conn: proxySide, PeerIP: "127.0.0.1", Authorizer: deny, Backend: &backend}

	done := make(chan struct{})
	go func() {
		m.Run(context.Background())
		close(done)
	}()

	msg := buildStartupMessage(map[string]string{"user": "alice", "database": "app"})
	_, err := client.Write(msg)
	require.NoError(t, err)

	fatal := make([]byte, 256)
	client.SetReadDeadline(time.Now().Add(time.Second))
	n, err := client.Read(fatal)
	require.NoError(t, err)
	require.Equal(t, byte('E'), fatal[0])
	require.Contains(t, string(fatal[:n]), "28000")
	require.Equal(t, 0, backend.Len())

	<-done
}

func TestMachine_Run_MissingParamsDenied(t *testing.T) {
	client, proxySide := net.Pipe()
	defer client.Close()

	var backend bytes.Buffer
	m := &Machine{Conn: proxySide, PeerIP: "127.0.0.1", Authorizer: auth.AllowAll, Backend: &backend}

	done := make(chan struct{})
	go func() {
		m.Run(context.Background())
		close(done)
	}()

	msg := buildStartupMessage(map[string]string{"user": "alice"})
	_, err := client.Write(msg)
	require.NoError(t, err)

	fatal := make([]byte, 256)
	client.SetReadDeadline(time.Now().Add(time.Second))
	_, err = client.Read(fatal)
	require.NoError(t, err)
	require.Equal(t, byte('E'), fatal[0])

	<-done
}

func TestMachine_Run_UnknownDiscriminator(t *testing.T) {
	client, proxySide := net.Pipe()
	defer client.Close()

	var backend bytes.Buffer
	m := &Machine{Conn: proxySide, PeerIP: "127.0.0.1", Authorizer: auth.AllowAll, Backend: &backend}

	done := make(chan struct{})
	var state State
	go func() {
		state, _ = m.Run(context.Background())
		close(done)
	}()

	datagram := []byte{0, 0, 0, 8, 0xFF, 0xFF, 0xFF, 0xFF}
	_, err := client.Write(datagram)
	require.NoError(t, err)

	fatal := make([]byte, 256)
	client.SetReadDeadline(time.Now().Add(time.Second))
	n, err := client.Read(fatal)
	require.NoError(t, err)
	require.Contains(t, string(fatal[:n]), "Unknown startup message")

	<-done
	require.Equal(t, StateDenied, state)
}

func TestMachine_Run_CancelRequestForwarded(t *testing.T) {
	client, proxySide := net.Pipe()
	defer client.Close()

	var backend bytes.Buffer
	m := &Machine{Conn: proxySide, PeerIP: "127.0.0.1", Authorizer: auth.AllowAll, Backend: &backend}

	done := make(chan struct{})
	var state State
	go func() {
		state, _ = m.Run(context.Background())
		close(done)
	}()

	cancel := []byte{0, 0, 0, 16, 4, 210, 22, 46, 0, 0, 0, 42, 0, 0, 0, 99}
	_, err := client.Write(cancel)
	require.NoError(t, err)

	<-done
	require.Equal(t, StateCancelled, state)
	require.Equal(t, cancel, backend.Bytes())
}

func TestMachine_Run_SSLRequestNoTLSConfigured(t *testing.T) {
	client, proxySide := net.Pipe()
	defer client.Close()

	var backend bytes.Buffer
	m := &Machine{Conn: proxySide, PeerIP: "127.0.0.1", Authorizer: auth.AllowAll, Backend: &backend}

	done := make(chan struct{})
	go func() {
		m.Run(context.Background())
		close(done)
	}()

	ssl := []byte{0, 0, 0, 8, 4, 210, 22, 47}
	_, err := client.Write(ssl)
	require.NoError(t, err)

	resp := make([]byte, 1)
	client.SetReadDeadline(time.Now().Add(time.Second))
	_, err = client.Read(resp)
	require.NoError(t, err)
	require.Equal(t, byte('N'), resp[0])

	msg := buildStartupMessage(map[string]string{"user": "alice", "database": "app"})
	_, err = client.Write(msg)
	require.NoError(t, err)

	<-done
	require.Equal(t, msg, backend.Bytes())
}
