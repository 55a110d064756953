package pgwire

import (
	"encoding/binary"

	"github.com/jackc/pgx/pgproto3"

	"github.com/panoplyio/pgproxy/internal/pgerr"
)

// Kind classifies a decoded startup frame (spec §3's discriminator table).
type Kind int

const (
	Unknown Kind = iota
	SSLRequest
	CancelRequest
	StartupMessage
)

const (
	sslRequestCode    uint32 = 80877103 // 0x04d2162f
	cancelRequestCode uint32 = 80877102 // 0x04d2162e
	protocolVersion3  uint32 = 196608   // 0x00030000
)

// StartupFrame is a decoded, tokenless startup frame: a 4-byte length
// followed by a 4-byte discriminator and, for StartupMessage, a sequence
// of NUL-terminated key/value strings.
type StartupFrame struct {
	Kind Kind
	// Raw holds the exact original bytes, including the length prefix, as
	// received from the client. Forwarded verbatim to the backend on
	// success (spec P6) — never reconstructed from the parsed fields.
	Raw []byte

	ProcessID uint32
	SecretKey uint32

	Parameters map[string]string
}

// ReadStartupDatagram performs the single "recv up to bufSize bytes" the
// startup phase is specified to use (spec §4.2): one Read call, not a loop,
// so a startup frame fragmented across TCP segments is — by design,
// preserving the source's own simplification — unsupported. See
// SPEC_FULL.md's open question on this.
func ReadStartupDatagram(src Source, bufSize int) ([]byte, error) {
	buf := make([]byte, bufSize)
	n, err := src.Read(buf)
	if err != nil {
		return nil, pgerr.IOf(err, "reading startup datagram")
	}
	return buf[:n], nil
}

// DecodeStartupFrame decodes a single startup frame out of a datagram
// previously obtained from ReadStartupDatagram. The datagram may contain
// trailing bytes beyond the frame's declared length; those are ignored,
// matching the "unsupported fragmentation, but don't explode on extra
// bytes" simplification spec §4.2 calls out.
func DecodeStartupFrame(datagram []byte) (*StartupFrame, error) {
	if len(datagram) < 8 {
		return nil, pgerr.IOf(nil, "startup datagram shorter than header (%d bytes)", len(datagram))
	}

	length := binary.BigEndian.Uint32(datagram[0:4])
	if int(length) > len(datagram) {
		return nil, pgerr.IOf(nil, "startup frame length %d exceeds datagram size %d", length, len(datagram))
	}
	frame := datagram[:length]
	discriminator := binary.BigEndian.Uint32(frame[4:8])

	switch discriminator {
	case sslRequestCode:
		return &StartupFrame{Kind: SSLRequest, Raw: frame}, nil
	case cancelRequestCode:
		if len(frame) < 16 {
			return nil, pgerr.IOf(nil, "cancel request too short (%d bytes)", len(frame))
		}
		return &StartupFrame{
			Kind:      CancelRequest,
			Raw:       frame,
			ProcessID: binary.BigEndian.Uint32(frame[8:12]),
			SecretKey: binary.BigEndian.Uint32(frame[12:16]),
		}, nil
	case protocolVersion3:
		sm := &pgproto3.StartupMessage{}
		if err := sm.Decode(frame[4:]); err != nil {
			return nil, pgerr.IOf(err, "decoding startup message")
		}
		return &StartupFrame{Kind: StartupMessage, Raw: frame, Parameters: sm.Parameters}, nil
	default:
		return &StartupFrame{Kind: Unknown, Raw: frame}, nil
	}
}

// TLSResponse is the single-byte reply to an SSLRequest: 'S' if the proxy
// is configured with TLS material, 'N' otherwise (spec §4.2, P8).
func TLSResponse(supported bool) []byte {
	if supported {
		return []byte{'S'}
	}
	return []byte{'N'}
}
