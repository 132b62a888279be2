package controller

import (
	"errors"
	"net/http"

	"github.com/vibast-solutions/ms-go-identity/app/service"
	"github.com/vibast-solutions/ms-go-identity/app/types"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type PasswordResetController struct {
	resets service.PasswordResetService
}

func NewPasswordResetController(resets service.PasswordResetService) *PasswordResetController {
	return &PasswordResetController{resets: resets}
}

func (c *PasswordResetController) ForgotPassword(ctx echo.Context) error {
	req, err := types.NewForgotPasswordRequestFromContext(ctx)
	if err != nil {
		return badRequestBody(ctx, err, "forgot password")
	}

	entry := logrus.WithField("email", req.Email)
	entry.Info("Password reset requested")

	result, err := c.resets.RequestReset(ctx.Request().Context(), req)
	if err != nil {
		return renderError(ctx, err, entry)
	}

	return ctx.JSON(http.StatusOK, result)
}

func (c *PasswordResetController) ResetPassword(ctx echo.Context) error {
	req, err := types.NewResetPasswordRequestFromContext(ctx)
	if err != nil {
		return badRequestBody(ctx, err, "reset password")
	}

	entry := logrus.WithField("email", req.Email)

	result, err := c.resets.ConfirmReset(ctx.Request().Context(), req)
	if err != nil {
		// an unknown email must look exactly like a bad token
		if errors.Is(err, service.ErrAccountNotFound) || errors.Is(err, service.ErrInvalidOrExpiredToken) {
			entry.Warn("Password reset rejected")
			return ctx.JSON(http.StatusBadRequest, types.ErrorResponse{Error: msgInvalidResetToken})
		}
		return renderError(ctx, err, entry)
	}

	return ctx.JSON(http.StatusOK, result)
}
