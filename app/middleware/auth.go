package middleware

import (
	"net/http"
	"strings"

	"github.com/vibast-solutions/ms-go-identity/app/service"
	"github.com/vibast-solutions/ms-go-identity/app/types"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	ContextKeyClaims    = "claims"
	ContextKeyAccountID = "account_id"
)

type tokenValidator interface {
	Validate(tokenString string) (*service.Claims, error)
}

type AuthMiddleware struct {
	tokens tokenValidator
}

func NewAuthMiddleware(tokens tokenValidator) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// RequireAuth admits requests carrying a valid bearer token and attaches the
// verified claims to the context.
func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" {
			logrus.Debug("Missing authorization header")
			return c.JSON(http.StatusUnauthorized, types.ErrorResponse{Error: "missing authorization header"})
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], service.TokenTypeBearer) {
			logrus.Debug("Invalid authorization header format")
			return c.JSON(http.StatusUnauthorized, types.ErrorResponse{Error: "invalid authorization header format"})
		}

		claims, err := m.tokens.Validate(parts[1])
		if err != nil {
			logrus.WithError(err).Debug("Invalid or expired access token")
			return c.JSON(http.StatusUnauthorized, types.ErrorResponse{Error: "invalid or expired token"})
		}

		accountID, err := service.AccountIDFromClaims(claims)
		if err != nil {
			logrus.WithError(err).Debug("Access token carries no account")
			return c.JSON(http.StatusUnauthorized, types.ErrorResponse{Error: "invalid or expired token"})
		}

		c.Set(ContextKeyClaims, claims)
		c.Set(ContextKeyAccountID, accountID)

		return next(c)
	}
}

// ClaimsFromContext returns the claims attached by RequireAuth, or nil.
func ClaimsFromContext(c echo.Context) *service.Claims {
	claims, _ := c.Get(ContextKeyClaims).(*service.Claims)
	return claims
}

// AccountID resolves the current account from the verified claims.
func AccountID(c echo.Context) (string, error) {
	return service.AccountIDFromClaims(ClaimsFromContext(c))
}
