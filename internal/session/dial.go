package session

import (
	"context"
	"net"
	"os"
)

// DialBackend opens the backend link for a new session: a Unix-domain
// socket if upstream names a path that exists on disk, otherwise a TCP
// dial to upstream as a host:port pair (spec §4.4, §6).
//
// Grounded on the pack's transport-selection proxies (e.g.
// BarakaAka1Only-bdcode-proxy's core server picking a dial strategy off
// configuration), adapted to the spec's "stat the path" rule.
func DialBackend(ctx context.Context, upstream string) (net.Conn, error) {
	network := "tcp"
	if _, err := os.Stat(upstream); err == nil {
		network = "unix"
	}

	var d net.Dialer
	return d.DialContext(ctx, network, upstream)
}
