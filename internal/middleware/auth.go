package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/guildbank/backend/internal/services"
)

type contextKey string

const actorKey contextKey = "actor"

// Claims are carried by admin API bearer tokens.
type Claims struct {
	GuildID    string `json:"guild_id,omitempty"` // empty for global tokens
	Level      int    `json:"level"`
	GuildAdmin bool   `json:"guild_admin,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates HS256 admin tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	expiry time.Duration
}

func NewTokenIssuer(secret, issuer string, expiry time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), issuer: issuer, expiry: expiry}
}

// Issue mints a token for actor.
func (ti *TokenIssuer) Issue(actor services.Actor) (string, error) {
	if len(ti.secret) == 0 {
		return "", errors.New("jwt secret is not configured")
	}
	now := time.Now()
	claims := Claims{
		GuildID:    actor.GuildID,
		Level:      int(actor.Level),
		GuildAdmin: actor.GuildAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    ti.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
}

func (ti *TokenIssuer) validate(tokenString string) (*Claims, error) {
	if len(ti.secret) == 0 {
		return nil, errors.New("jwt secret is not configured")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return ti.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(ti.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Authenticate resolves the bearer token into a services.Actor on the
// request context.
func (ti *TokenIssuer) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get token from Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			services.SendErrorResponse(w, "Authorization header required", http.StatusUnauthorized, nil)
			return
		}

		// Extract token
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			services.SendErrorResponse(w, "Invalid authorization header format", http.StatusUnauthorized, nil)
			return
		}

		claims, err := ti.validate(parts[1])
		if err != nil {
			services.SendErrorResponse(w, "Invalid token", http.StatusUnauthorized, nil)
			return
		}

		actor := services.Actor{
			ID:         claims.Subject,
			GuildID:    claims.GuildID,
			Level:      services.PermissionLevel(claims.Level),
			GuildAdmin: claims.GuildAdmin,
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func WithActor(ctx context.Context, actor services.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (services.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(services.Actor)
	return actor, ok
}
