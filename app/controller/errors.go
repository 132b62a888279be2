package controller

import (
	"errors"
	"net/http"

	"github.com/vibast-solutions/ms-go-identity/app/service"
	"github.com/vibast-solutions/ms-go-identity/app/types"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	msgInvalidBody        = "invalid request body"
	msgValidationFailed   = "validation failed"
	msgInvalidCredentials = "invalid email or password"
	msgInvalidResetToken  = "invalid or expired token"
	msgUnauthorized       = "unauthorized"
	msgUnavailable        = "service temporarily unavailable"
	msgInternal           = "internal server error"

	retryAfterSeconds = "5"
)

// renderError maps a service error onto its HTTP status. Causes of
// unexpected failures are logged, never returned.
func renderError(ctx echo.Context, err error, entry *logrus.Entry) error {
	var verr *types.ValidationError
	switch {
	case errors.As(err, &verr):
		entry.Debug("Request validation failed")
		return ctx.JSON(http.StatusBadRequest, types.ErrorResponse{Error: msgValidationFailed, Errors: verr.Fields})
	case errors.Is(err, service.ErrDuplicateEmail):
		entry.Warn("Email already registered")
		return ctx.JSON(http.StatusConflict, types.ErrorResponse{Error: "email already registered"})
	case errors.Is(err, service.ErrInvalidCredentials):
		entry.Warn("Invalid credentials")
		return ctx.JSON(http.StatusUnauthorized, types.ErrorResponse{Error: msgInvalidCredentials})
	case errors.Is(err, service.ErrUnauthenticated):
		return ctx.JSON(http.StatusUnauthorized, types.ErrorResponse{Error: msgUnauthorized})
	case errors.Is(err, service.ErrTooManyAttempts):
		entry.Warn("Too many attempts")
		ctx.Response().Header().Set(echo.HeaderRetryAfter, retryAfterSeconds)
		return ctx.JSON(http.StatusTooManyRequests, types.ErrorResponse{Error: "too many attempts, try again later"})
	case errors.Is(err, service.ErrPasswordMismatch):
		entry.Warn("Old password does not match")
		return ctx.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "old password is incorrect"})
	case errors.Is(err, service.ErrInvalidOrExpiredToken):
		return ctx.JSON(http.StatusBadRequest, types.ErrorResponse{Error: msgInvalidResetToken})
	case errors.Is(err, service.ErrAccountNotFound):
		return ctx.JSON(http.StatusNotFound, types.ErrorResponse{Error: "account not found"})
	case service.IsRetryable(err):
		entry.WithError(err).Error("Store unavailable")
		ctx.Response().Header().Set(echo.HeaderRetryAfter, retryAfterSeconds)
		return ctx.JSON(http.StatusServiceUnavailable, types.ErrorResponse{Error: msgUnavailable})
	}

	entry.WithError(err).Error("Request failed")
	return ctx.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: msgInternal})
}

func badRequestBody(ctx echo.Context, err error, what string) error {
	logrus.WithError(err).Debugf("Failed to bind %s request", what)
	return ctx.JSON(http.StatusBadRequest, types.ErrorResponse{Error: msgInvalidBody})
}
