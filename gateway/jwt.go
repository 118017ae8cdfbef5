package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/n9te9/federation-router/federation/fedgql"
	"github.com/n9te9/federation-router/federation/pipeline"
)

// bagKeyJWTClaims holds the verified bearer token's claims, available to
// later pipeline stages via the request's extensions bag.
const bagKeyJWTClaims = "jwtClaims"

// jwtStage verifies the bearer token carried in the Authorization header
// against the configured HMAC secret, matching the header-rules component's
// "bearer token verification" responsibility. Requests without a token pass
// through untouched unless JWTRequired is set; a present-but-invalid token
// always rejects with JWT_INVALID.
func (g *gateway) jwtStage(header http.Header) pipeline.StageFunc {
	return pipeline.StageFunc{
		StageName: "jwt",
		Fn: func(ctx context.Context, bag *pipeline.Bag) (*pipeline.Response, error) {
			if !g.jwtEnabled {
				return nil, nil
			}

			token, ok := bearerToken(header)
			if !ok {
				if g.jwtRequired {
					return &pipeline.Response{
						StatusCode: http.StatusUnauthorized,
						Body: mustJSON(map[string]any{
							"errors": singleError("missing bearer token", fedgql.CodeJWTMissing),
						}),
					}, nil
				}
				return nil, nil
			}

			claims := jwt.MapClaims{}
			parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrTokenSignatureInvalid
				}
				return g.jwtSecret, nil
			})
			if err != nil || !parsed.Valid {
				return &pipeline.Response{
					StatusCode: http.StatusUnauthorized,
					Body: mustJSON(map[string]any{
						"errors": singleError("invalid bearer token", fedgql.CodeJWTInvalid),
					}),
				}, nil
			}

			bag.Set(bagKeyJWTClaims, claims)
			return nil, nil
		},
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>",
// reporting ok=false for any other scheme or an absent header.
func bearerToken(header http.Header) (string, bool) {
	auth := header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, prefix))
	return token, token != ""
}
