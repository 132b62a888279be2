package controller

import (
	"net/http"

	"github.com/vibast-solutions/ms-go-identity/app/middleware"
	"github.com/vibast-solutions/ms-go-identity/app/service"
	"github.com/vibast-solutions/ms-go-identity/app/types"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type ProfileController struct {
	profiles service.ProfileService
}

func NewProfileController(profiles service.ProfileService) *ProfileController {
	return &ProfileController{profiles: profiles}
}

func (c *ProfileController) GetProfile(ctx echo.Context) error {
	accountID, err := middleware.AccountID(ctx)
	if err != nil {
		return renderError(ctx, err, logrus.NewEntry(logrus.StandardLogger()))
	}

	profile, err := c.profiles.GetProfile(ctx.Request().Context(), accountID)
	if err != nil {
		return renderError(ctx, err, logrus.WithField("account_id", accountID))
	}

	return ctx.JSON(http.StatusOK, profile)
}

func (c *ProfileController) UpdateProfile(ctx echo.Context) error {
	accountID, err := middleware.AccountID(ctx)
	if err != nil {
		return renderError(ctx, err, logrus.NewEntry(logrus.StandardLogger()))
	}

	req, err := types.NewUpdateProfileRequestFromContext(ctx)
	if err != nil {
		return badRequestBody(ctx, err, "update profile")
	}

	entry := logrus.WithField("account_id", accountID)
	profile, err := c.profiles.UpdateProfile(ctx.Request().Context(), accountID, req)
	if err != nil {
		return renderError(ctx, err, entry)
	}

	entry.Info("Profile updated")
	return ctx.JSON(http.StatusOK, profile)
}

func (c *ProfileController) Search(ctx echo.Context) error {
	query := ctx.QueryParam("q")

	profiles, err := c.profiles.Search(ctx.Request().Context(), query)
	if err != nil {
		return renderError(ctx, err, logrus.WithField("query", query))
	}

	return ctx.JSON(http.StatusOK, profiles)
}
