package auth

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

// NewJWT returns an Authenticator for HS256 tokens signed with secret. Empty
// issuer or audience disables that check; a token's aud may be a string or
// an array containing audience.
func NewJWT(secret, issuer, audience string) Authenticator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &jwtAuth{secret: []byte(secret), parser: jwt.NewParser(opts...)}
}

type jwtAuth struct {
	secret []byte
	parser *jwt.Parser
}

func (a *jwtAuth) Authenticate(r *http.Request) (map[string]interface{}, bool) {
	tokenString, ok := bearerToken(r)
	if !ok || len(a.secret) == 0 {
		return nil, false
	}

	claims := jwt.MapClaims{}
	token, err := a.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, false
	}

	out := make(map[string]interface{}, len(claims))
	for k, v := range claims {
		out[k] = v
	}
	return out, true
}
