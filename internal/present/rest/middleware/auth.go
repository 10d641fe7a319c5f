package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/coopvest/coopvest/internal/domain"
)

var tracer = otel.Tracer("auth")

// IdentityVerifier resolves a bearer token to a user ID.
type IdentityVerifier interface {
	VerifyIdentity(ctx context.Context, token string) (string, error)
}

type AuthMiddleware struct {
	verifier IdentityVerifier
}

func NewAuthMiddleware(verifier IdentityVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// IdentifyIdentity resolves the Authorization header into the requester's
// user ID and stashes it in the request context. A missing or bad token is
// not an error here; handlers that need an identity reject its absence.
func (s *AuthMiddleware) IdentifyIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracer.Start(c.Request().Context(), "Auth.Middleware.IdentifyIdentity")
		defer span.End()

		authHeader := c.Request().Header.Get("authorization")

		if authHeader != "" {
			split := strings.Split(authHeader, " ")
			if len(split) != 2 {
				span.RecordError(fmt.Errorf("invalid authentication header"))
				goto skipCheckAuthorization
			}

			{
				authType, token := split[0], split[1]
				if authType != "Bearer" {
					span.RecordError(fmt.Errorf("only Bearer is acceptable"))
					goto skipCheckAuthorization
				}

				userID, err := s.verifier.VerifyIdentity(ctx, token)
				if err != nil {
					span.RecordError(errors.Wrap(err, "AuthMiddleware.IdentifyIdentity: token verification failed"))
					goto skipCheckAuthorization
				}

				ctx = context.WithValue(ctx, domain.RequesterIDCtxKey, userID)
				span.SetAttributes(attribute.String("RequesterId", userID))
			}
		}

	skipCheckAuthorization:
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}
