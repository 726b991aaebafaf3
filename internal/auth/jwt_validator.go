package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var (
	ErrNoToken   = errors.New("auth: token is nil")
	ErrUnsigned  = errors.New("auth: token is unsigned")
	ErrNoSubject = errors.New("auth: token has no subject")
	ErrAlgorithm = errors.New("auth: unexpected token algorithm")
)

// TokenValidator checks the registered claims of a storefront access token.
type TokenValidator struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
}

func (v TokenValidator) options(now time.Time) []jwt.ValidateOption {
	opts := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
	}
	if v.ClockSkew > 0 {
		opts = append(opts, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}
	return opts
}

// Validate accepts tok only when it was signed with the configured
// algorithm, names a user in sub, and is inside its validity window at now.
func (v TokenValidator) Validate(tok jwt.Token, algorithm jwa.SignatureAlgorithm, now time.Time) error {
	switch {
	case tok == nil:
		return ErrNoToken
	case algorithm == "" || algorithm == jwa.NoSignature:
		return ErrUnsigned
	case v.Algorithm != "" && algorithm != v.Algorithm:
		return fmt.Errorf("%w %s", ErrAlgorithm, algorithm)
	case strings.TrimSpace(tok.Subject()) == "":
		return ErrNoSubject
	}
	return jwt.Validate(tok, v.options(now)...)
}
