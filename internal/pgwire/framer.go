package pgwire

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/panoplyio/pgproxy/internal/pgerr"
)

// Source is what the Framer reads from. It is satisfied by net.Conn (and by
// *tls.Conn once the client link has been upgraded): the opportunistic
// header peek needs SetReadDeadline to turn a would-block read into an
// immediate, cheap timeout rather than stalling the whole relay half.
type Source interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

const headerSize = 5 // 1 token byte + 4-byte big-endian length

// peekDeadline is how long the opportunistic next-header peek waits before
// concluding nothing more is immediately available. It only needs to be
// long enough for data already sitting in the socket's receive buffer (or
// already in flight from a single concatenated write, as in a net.Pipe
// test) to be delivered — not long enough to wait on the network. A
// deadline already in the past (e.g. time.Now() with no margin) makes Go's
// poller fail the read before it even attempts the syscall, so the peek
// must get a small positive margin or it can never succeed.
const peekDeadline = 10 * time.Millisecond

// PullEntireMessage reads a non-empty, maximal chain of contiguous,
// well-formed messages from src into buf (see spec §4.1). buf is assumed
// empty on entry and, on a clean return, holds exactly the bytes of one or
// more complete messages with no trailing partial bytes.
//
// idleDeadline is the read deadline the caller wants in force for
// everything except the opportunistic peek; it is restored on src after
// each peek attempt. When chainCap disables the peek, src's deadline is
// left untouched. The zero time.Time means "no deadline". PullEntireMessage
// never changes idleDeadline's meaning — only the brief peek window
// overrides it.
//
// Return contract:
//   - ok=true,  err=nil: success. buf may be empty, which the caller (the
//     relay half) must treat as a clean close of src.
//   - ok=false, err=nil: framing error — an unrecognized leading token byte.
//   - err!=nil:          an I/O failure, including a mid-message EOF.
func PullEntireMessage(src Source, buf *bytes.Buffer, chainCap int, idleDeadline time.Time) (ok bool, err error) {
	header := make([]byte, headerSize)
	n, err := io.ReadFull(src, header)
	if err != nil {
		if err == io.EOF && n == 0 {
			// Clean close before any bytes arrived: the relay half treats
			// this as end of stream, not a failure.
			return true, nil
		}
		return false, pgerr.IOf(err, "reading message header")
	}

	for {
		token := header[0]
		if !ValidToken(token) {
			return false, nil
		}

		length := binary.BigEndian.Uint32(header[1:])
		bodyLen := int(length) - 4 // payload bytes after the length field
		if bodyLen < 0 {
			return false, nil
		}

		buf.Write(header)

		peekAllowed := buf.Len() <= chainCap
		body := make([]byte, bodyLen)
		if bodyLen > 0 {
			if _, err := io.ReadFull(src, body); err != nil {
				return false, pgerr.IOf(err, "reading message body")
			}
			buf.Write(body)
		}

		if !peekAllowed {
			return true, nil
		}

		peek := make([]byte, headerSize)
		_ = src.SetReadDeadline(time.Now().Add(peekDeadline))
		pn, perr := io.ReadFull(src, peek)
		_ = src.SetReadDeadline(idleDeadline)

		if perr != nil && pn > 0 {
			// Part of the next header already arrived: finish it under the
			// caller's deadline rather than dropping the bytes already read.
			if _, err := io.ReadFull(src, peek[pn:]); err != nil {
				return false, pgerr.IOf(err, "reading message header")
			}
			pn, perr = headerSize, nil
		}

		if perr != nil || pn < headerSize {
			// Short or failed peek: nothing more is immediately available,
			// so the chain ends here. The next call will discover a real
			// error or EOF on its own initial header read.
			return true, nil
		}

		if binary.BigEndian.Uint32(peek[1:]) == 4 {
			// The peeked message is itself payload-less and was fully
			// consumed by the peek read; nothing left to decode for it.
			buf.Write(peek)
			return true, nil
		}

		// The next iteration validates this header and writes it to buf.
		header = peek
	}
}
