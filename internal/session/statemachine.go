package session

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/panoplyio/pgproxy/internal/auth"
	"github.com/panoplyio/pgproxy/internal/metrics"
	"github.com/panoplyio/pgproxy/internal/pgerr"
	"github.com/panoplyio/pgproxy/internal/pgwire"
)

// State is one of the startup state machine's five states (spec §4.2).
type State int

const (
	StateInit State = iota
	StateAwaitStartup
	StateAuthorized
	StateDenied
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitStartup:
		return "await_startup"
	case StateAuthorized:
		return "authorized"
	case StateDenied:
		return "denied"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

const defaultStartupBufSize = 8 * 1024

const denialMessage = "Custom auth failed!"
const unknownStartupMessage = "Unknown startup message, possibly an old client?"

// Machine drives the pre-authorization exchange on a single client link.
// Conn is reassigned in place when an SSLRequest upgrades the link to TLS,
// so callers should read m.Conn back after Run returns rather than holding
// on to the original net.Conn.
type Machine struct {
	Conn       net.Conn
	PeerIP     string
	TLSConfig  *tls.Config // nil: TLS is not configured for this proxy
	Authorizer auth.Authorizer
	Backend    io.Writer // the dialed backend link; startup bytes are forwarded here verbatim
	BufSize    int       // startup datagram read size; defaults to 8KiB

	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// Run drives the state machine until it reaches Authorized, Denied, or
// Cancelled, or until an I/O error makes further progress impossible.
func (m *Machine) Run(ctx context.Context) (State, error) {
	bufSize := m.BufSize
	if bufSize <= 0 {
		bufSize = defaultStartupBufSize
	}

	state := StateInit
	for {
		datagram, err := pgwire.ReadStartupDatagram(m.Conn, bufSize)
		if err != nil {
			return state, err
		}

		frame, err := pgwire.DecodeStartupFrame(datagram)
		if err != nil {
			return state, err
		}

		switch frame.Kind {
		case pgwire.SSLRequest:
			if m.TLSConfig != nil {
				if _, err := m.Conn.Write(pgwire.TLSResponse(true)); err != nil {
					return state, err
				}
				tlsConn := tls.Server(m.Conn, m.TLSConfig)
				if err := tlsConn.HandshakeContext(ctx); err != nil {
					return state, pgerr.TLSf(err, "upgrading client link after SSLRequest")
				}
				m.Conn = tlsConn
			} else {
				if _, err := m.Conn.Write(pgwire.TLSResponse(false)); err != nil {
					return state, err
				}
			}
			state = StateAwaitStartup

		case pgwire.CancelRequest:
			if _, err := m.Backend.Write(frame.Raw); err != nil {
				return state, err
			}
			return StateCancelled, nil

		case pgwire.StartupMessage:
			user, hasUser := frame.Parameters["user"]
			database, hasDatabase := frame.Parameters["database"]

			authorized := hasUser && hasDatabase && m.authorize(ctx, user, database)
			if !authorized {
				return m.deny(denialMessage)
			}

			if _, err := m.Backend.Write(frame.Raw); err != nil {
				return state, err
			}
			return StateAuthorized, nil

		default:
			return m.deny(unknownStartupMessage)
		}
	}
}

func (m *Machine) authorize(ctx context.Context, user, database string) bool {
	start := time.Now()
	ok := m.Authorizer.Authorize(ctx, m.PeerIP, user, database)
	m.Metrics.AuthorizeDurationSeconds(time.Since(start).Seconds())
	return ok
}

// deny sends a fatal error frame to the client and transitions to Denied.
// The client link is not closed here — spec §4.2 leaves that to the
// surrounding session teardown, which always runs regardless of outcome.
func (m *Machine) deny(message string) (State, error) {
	reason := pgerr.StartupDenied(message)
	if m.Logger != nil {
		m.Logger.Info("denying session", "reason", reason)
	}
	if _, err := m.Conn.Write(pgwire.FatalFrame(message)); err != nil {
		return StateDenied, err
	}
	return StateDenied, nil
}
