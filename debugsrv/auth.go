package debugsrv

import (
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/valyala/fasthttp"

	"github.com/pucrs-maestro/maestro/cmn"
)

// tokenClaims is deliberately minimal: debugsrv only ever needs to know
// that the bearer holds a token signed with the configured secret, not
// who they are.
type tokenClaims struct {
	jwt.RegisteredClaims
}

// authorize enforces cmn.GCO().Debug.Token when set, mirroring the
// bearer-JWT gate the teacher's own debug/introspection surfaces use
// ahead of anything that can read kernel-internal state. An empty
// configured token disables the gate entirely, since a local simulator
// run with no token set is assumed to be single-operator and trusted.
func authorize(ctx *fasthttp.RequestCtx) bool {
	secret := cmn.GCO().Debug.Token
	if secret == "" {
		return true
	}

	auth := string(ctx.Request.Header.Peek("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		ctx.Error("missing bearer token", fasthttp.StatusUnauthorized)
		return false
	}
	raw := strings.TrimPrefix(auth, prefix)

	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		ctx.Error("invalid bearer token", fasthttp.StatusUnauthorized)
		return false
	}
	return true
}

// IssueToken mints a bearer token signed with the configured debug
// secret, valid for an operator to pass to curl/a browser session.
// Exposed for cmd/maestro-sim's "-print-debug-token" startup helper.
func IssueToken(subject string) (string, error) {
	secret := cmn.GCO().Debug.Token
	if secret == "" {
		return "", cmn.ErrUnauthorized
	}
	claims := tokenClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: subject}}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(secret))
}
