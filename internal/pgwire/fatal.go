package pgwire

import "encoding/binary"

// invalidAuthSpecification is the only SQLSTATE the startup state machine
// ever emits (spec §4.2): invalid_authorization_specification.
const invalidAuthSpecification = "28000"

// FatalFrame builds the fatal ErrorResponse frame sent to reject a session
// at startup: 'E', a length, then Severity/Code/Message fields each
// terminated by a NUL, the whole body closed by a final NUL.
//
// This is hand-built rather than routed through pgproto3.ErrorResponse:
// the wire shape here is fixed to exactly one field set by spec §4.2, and
// building it directly keeps that shape auditable byte-for-byte against
// the spec instead of depending on a general-purpose encoder's field
// ordering.
func FatalFrame(message string) []byte {
	body := make([]byte, 0, len(message)+32)
	body = append(body, 'S')
	body = append(body, "FATAL"...)
	body = append(body, 0)
	body = append(body, 'C')
	body = append(body, invalidAuthSpecification...)
	body = append(body, 0)
	body = append(body, 'M')
	body = append(body, message...)
	body = append(body, 0)
	body = append(body, 0)

	frame := make([]byte, 1+4+len(body))
	frame[0] = 'E'
	binary.BigEndian.PutUint32(frame[1:5], uint32(4+len(body)))
	copy(frame[5:], body)
	return frame
}
