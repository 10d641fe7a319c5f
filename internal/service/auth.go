package service

import (
	"context"
	"fmt"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("auth")

// AuthService verifies session tokens issued by the auth subsystem. Tokens
// are HS256 JWTs carrying a userId claim; revoked token IDs live in
// memcached.
type AuthService struct {
	secret    []byte
	blacklist *memcache.Client
}

func NewAuthService(secret string, blacklist *memcache.Client) *AuthService {
	return &AuthService{
		secret:    []byte(secret),
		blacklist: blacklist,
	}
}

// VerifyIdentity resolves a bearer token to a user ID.
func (s *AuthService) VerifyIdentity(ctx context.Context, token string) (string, error) {
	_, span := tracer.Start(ctx, "Auth.Service.VerifyIdentity")
	defer span.End()

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		span.RecordError(errors.Wrap(err, "token validation failed"))
		return "", errors.Wrap(err, "token validation failed")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		err := fmt.Errorf("unexpected claims format")
		span.RecordError(err)
		return "", err
	}

	userID, _ := claims["userId"].(string)
	if userID == "" {
		userID, _ = claims["user_id"].(string)
	}
	if userID == "" {
		err := fmt.Errorf("token missing user id")
		span.RecordError(err)
		return "", err
	}

	if jti, _ := claims["jti"].(string); jti != "" && s.blacklist != nil {
		if _, err := s.blacklist.Get("revoked:" + jti); err == nil {
			err := fmt.Errorf("token has been revoked")
			span.RecordError(err)
			return "", err
		}
	}

	return userID, nil
}
