package upload

import (
	"context"
	"regexp"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"wedding-site/internal/apperr"
)

const (
	MsgMissingAuth  = "Missing Authorization header."
	MsgInvalidToken = "Invalid or expired access token."
)

// Identity is the caller behind a verified access token.
type Identity struct {
	Subject string
	Email   string
}

// Authenticator verifies guest access tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Identity, error)
}

// Claims are the claims carried by a guest access token.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuthenticator accepts HS256 tokens signed with the project secret.
// Tokens without an expiry are rejected.
type JWTAuthenticator struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTAuthenticator creates an authenticator for tokens signed with secret
func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

func (a *JWTAuthenticator) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, apperr.Auth(MsgMissingAuth)
	}

	var claims Claims
	parsed, err := a.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, apperr.Auth(MsgInvalidToken)
	}
	return &Identity{Subject: claims.Subject, Email: claims.Email}, nil
}

// IssueToken signs a guest token valid for the given claims. It is used by
// the CLI and tests; production tokens come from the identity provider.
func IssueToken(secret string, claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

var bearerRe = regexp.MustCompile(`(?i)^Bearer\s+(.+)$`)

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	m := bearerRe.FindStringSubmatch(header)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
