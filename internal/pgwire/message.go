// Package pgwire implements the PostgreSQL frontend/backend wire framing
// the proxy relays: the token-byte message format, the tokenless startup
// frame, the chain-reassembling Framer, and fatal-error frame synthesis.
// It deliberately stops at the wire: nothing here parses query text or
// builds an AST, matching the non-goal that the proxy is not a SQL engine.
package pgwire

// validTokens is the 30-byte set of leading tokens a post-startup message
// may carry. Any other leading byte is a framing error (spec §3).
var validTokens = [256]bool{
	'1': true, '2': true, '3': true,
	'c': true, 'd': true, 'f': true, 'n': true, 'p': true, 's': true, 't': true,
	'A': true, 'B': true, 'C': true, 'D': true, 'E': true, 'F': true, 'G': true,
	'H': true, 'I': true, 'K': true, 'N': true, 'P': true, 'Q': true, 'R': true,
	'S': true, 'T': true, 'V': true, 'W': true, 'X': true, 'Z': true,
}

// ValidToken reports whether b is a recognized leading message token.
func ValidToken(b byte) bool {
	return validTokens[b]
}
