package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/storefront/internal/common"
)

// Principal is the authenticated caller extracted from a bearer token.
type Principal struct {
	UserID string
	Admin  bool
}

// Verifier checks HS256 bearer tokens minted by the hosted auth provider.
type Verifier struct {
	Secret    []byte
	Validator TokenValidator
	Now       func() time.Time
}

// NewVerifier constructs a Verifier for the shared secret.
func NewVerifier(secret, issuer, audience string) *Verifier {
	return &Verifier{
		Secret:    []byte(secret),
		Validator: TokenValidator{Issuer: issuer, Audience: audience, ClockSkew: 30 * time.Second, Algorithm: jwa.HS256},
	}
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func unauthorized(err error) error {
	return common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
}

// Parse verifies the token and returns its principal.
func (v *Verifier) Parse(token string) (Principal, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Principal{}, common.NewAppError("UNAUTHORIZED", "missing token", http.StatusUnauthorized, nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return Principal{}, unauthorized(err)
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, v.Secret), jwt.WithValidate(false))
	if err != nil {
		return Principal{}, unauthorized(err)
	}
	if err := v.Validator.Validate(parsed, algorithm, v.now()); err != nil {
		return Principal{}, unauthorized(err)
	}
	return Principal{UserID: parsed.Subject(), Admin: isAdmin(parsed)}, nil
}

// isAdmin accepts either {"admin": true} or {"role": "admin"}.
func isAdmin(tok jwt.Token) bool {
	if v, ok := tok.Get("admin"); ok {
		if b, ok := v.(bool); ok && b {
			return true
		}
	}
	if v, ok := tok.Get("role"); ok {
		if s, ok := v.(string); ok && strings.EqualFold(s, "admin") {
			return true
		}
	}
	return false
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", errors.New("auth: inconsistent token algorithms")
		}
	}
	return algorithm, nil
}
