// Package relay implements the Relay Half component (spec §4.3): once a
// session is authorized, one Relay Half per direction loops pulling a
// reassembled message chain off its input link and writing it, whole, to
// its output link.
package relay

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/panoplyio/pgproxy/internal/metrics"
	"github.com/panoplyio/pgproxy/internal/pgerr"
	"github.com/panoplyio/pgproxy/internal/pgwire"
)

// Half is one direction of an authorized session's byte relay.
type Half struct {
	Direction string // "client_to_backend" or "backend_to_client", for logs/metrics
	Src       pgwire.Source
	Dst       io.Writer
	ChainCap  int
	// ReadTimeout is the per-operation read deadline spec §5 requires
	// ("a timeout raises an I/O error that terminates the affected relay
	// half"). Zero disables it. Re-armed before every chain pull, so it
	// bounds each individual PullEntireMessage call rather than the whole
	// session.
	ReadTimeout time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// Run pulls chains from Src and writes them whole to Dst until a clean
// close, a framing error, or an I/O error. It never returns an error: spec
// §4.3 says each outcome is handled in place (log and terminate), and the
// caller (Session) only needs to know when this half is done.
func (h *Half) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		var idleDeadline time.Time
		if h.ReadTimeout > 0 {
			idleDeadline = time.Now().Add(h.ReadTimeout)
			_ = h.Src.SetReadDeadline(idleDeadline)
		}

		var buf bytes.Buffer
		ok, err := pgwire.PullEntireMessage(h.Src, &buf, h.ChainCap, idleDeadline)
		if err != nil {
			// I/O error, including mid-message EOF: terminate silently
			// per spec §4.3 step 5 — the session teardown logs at the
			// session level, not here.
			return
		}
		if !ok {
			reason := pgerr.Framingf("unrecognized leading token byte on %s", h.Direction)
			if h.Logger != nil {
				h.Logger.Error("framing error", "error", reason)
			}
			h.Metrics.FramingError()
			return
		}
		if buf.Len() == 0 {
			// Clean close of the input link (spec P3): nothing to
			// forward, terminate without touching Dst.
			return
		}

		if _, err := h.Dst.Write(buf.Bytes()); err != nil {
			return
		}
		h.Metrics.RelayBytes(h.Direction, buf.Len())
	}
}
