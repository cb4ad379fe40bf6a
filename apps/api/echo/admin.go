package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/authz"
	"github.com/trezcool/alumni/core/dashboard"
	"github.com/trezcool/alumni/core/user"
)

type adminApi struct {
	userSvc      user.ServiceInterface
	dashboardSvc dashboard.ServiceInterface
	messages     core.Localizer
}

func registerAdminAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := adminApi{
		userSvc:      deps.UserSvc,
		dashboardSvc: deps.DashboardSvc,
		messages:     deps.Messages,
	}

	g.GET("/dashboard", api.memberDashboard, jwt)

	ag := g.Group("/admin", jwt)
	ag.POST("/reset-password", api.resetPassword)
	ag.GET("/stats", api.stats, adminMiddleware(api.userSvc))
}

// resetPassword lets a superadmin overwrite the password of any user.
// The role is checked before the body is even read.
func (api *adminApi) resetPassword(ctx echo.Context) error {
	caller, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	if !authz.CanResetCredentials(caller) {
		return user.ErrResetForbidden
	}

	var data user.AdminPasswordReset
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = api.userSvc.AdminResetPassword(ctx.Request().Context(), caller, data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, actionResponse(ctx, api.messages, "password.reset_done", nil))
}

func (api *adminApi) stats(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	stats, err := api.dashboardSvc.Admin(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "computing admin stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *adminApi) memberDashboard(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	data, err := api.dashboardSvc.Member(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "loading dashboard")
	}
	return ctx.JSON(http.StatusOK, data)
}
