package controller

import (
	"net/http"

	"github.com/vibast-solutions/ms-go-identity/app/middleware"
	"github.com/vibast-solutions/ms-go-identity/app/service"
	"github.com/vibast-solutions/ms-go-identity/app/types"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type AccountController struct {
	accounts service.AccountService
}

func NewAccountController(accounts service.AccountService) *AccountController {
	return &AccountController{accounts: accounts}
}

func (c *AccountController) Register(ctx echo.Context) error {
	req, err := types.NewRegisterRequestFromContext(ctx)
	if err != nil {
		return badRequestBody(ctx, err, "register")
	}

	entry := logrus.WithField("email", req.Email)
	entry.Info("Register request received")

	result, err := c.accounts.Register(ctx.Request().Context(), req)
	if err != nil {
		return renderError(ctx, err, entry)
	}

	entry.Info("Account registered")
	return ctx.JSON(http.StatusCreated, result)
}

func (c *AccountController) Login(ctx echo.Context) error {
	req, err := types.NewLoginRequestFromContext(ctx)
	if err != nil {
		return badRequestBody(ctx, err, "login")
	}

	entry := logrus.WithField("email", req.Email)
	entry.Info("Login request received")

	result, err := c.accounts.Login(ctx.Request().Context(), req)
	if err != nil {
		return renderError(ctx, err, entry)
	}

	entry.Info("Login successful")
	return ctx.JSON(http.StatusOK, result)
}

func (c *AccountController) ChangePassword(ctx echo.Context) error {
	accountID, err := middleware.AccountID(ctx)
	if err != nil {
		return renderError(ctx, err, logrus.NewEntry(logrus.StandardLogger()))
	}

	req, err := types.NewChangePasswordRequestFromContext(ctx)
	if err != nil {
		return badRequestBody(ctx, err, "change password")
	}

	entry := logrus.WithField("account_id", accountID)
	if err = c.accounts.ChangePassword(ctx.Request().Context(), accountID, req); err != nil {
		return renderError(ctx, err, entry)
	}

	entry.Info("Password changed")
	return ctx.JSON(http.StatusOK, types.MessageResponse{Message: service.MessagePasswordChanged})
}
