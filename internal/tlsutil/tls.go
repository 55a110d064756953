// Package tlsutil loads the server-side TLS material the startup state
// machine uses to upgrade a client link after an SSLRequest (spec §4.2,
// §6). The backend link is never upgraded — this package only ever
// produces a server-side tls.Config for the client half of a session.
package tlsutil

import "crypto/tls"

// LoadServerConfig reads a PEM certificate+key pair and returns a minimal
// server-side TLS config: TLS 1.0 or newer, no client certificate
// verification, no ALPN (spec §6). certPath and keyPath may name the same
// combined-bundle file, since tls.LoadX509KeyPair only extracts the
// CERTIFICATE and PRIVATE KEY blocks it needs and ignores the rest.
func LoadServerConfig(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS10,
		ClientAuth:   tls.NoClientCert,
	}, nil
}
