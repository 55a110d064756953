// Package auth implements the external authorization callout the startup
// state machine consults before letting a session through (spec §4.5). The
// core only ever sees the narrow Authorizer contract; everything else here
// — the script adapter, its argument handling, its exit-status mapping —
// is the external collaborator spec §1 deliberately keeps out of the core.
package auth

import (
	"context"
	"os/exec"
)

// Authorizer decides whether a client may open a session for the given
// role and database, coming in from clientIP. Implementations may block —
// the startup state machine has no timeout of its own around this call
// (spec §4.5, §9).
type Authorizer interface {
	Authorize(ctx context.Context, clientIP, role, database string) bool
}

// AuthorizerFunc adapts a plain function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, clientIP, role, database string) bool

func (f AuthorizerFunc) Authorize(ctx context.Context, clientIP, role, database string) bool {
	return f(ctx, clientIP, role, database)
}

// AllowAll always authorizes. It's the default behavior spec §6 describes
// for the auth-script knob (the no-op "true" command).
var AllowAll Authorizer = AuthorizerFunc(func(context.Context, string, string, string) bool {
	return true
})

// ScriptAuthorizer invokes an external program with three positional
// string arguments (client_ip, user, database); exit status 0 authorizes,
// any other status denies (spec §6). It is the trivial adapter spec §4.5
// describes: a thin wrapper around the external decision procedure, with
// no caching and no assumption about the script's own concurrency safety.
type ScriptAuthorizer struct {
	Path string
}

func NewScriptAuthorizer(path string) *ScriptAuthorizer {
	return &ScriptAuthorizer{Path: path}
}

func (s *ScriptAuthorizer) Authorize(ctx context.Context, clientIP, role, database string) bool {
	cmd := exec.CommandContext(ctx, s.Path, clientIP, role, database)
	return cmd.Run() == nil
}
