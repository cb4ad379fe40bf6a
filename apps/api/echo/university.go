package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/authz"
	"github.com/trezcool/alumni/core/university"
	"github.com/trezcool/alumni/core/user"
)

type universityApi struct {
	svc      university.ServiceInterface
	userSvc  user.ServiceInterface
	validate *validator.Validate
	messages core.Localizer
}

func registerUniversityAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := universityApi{
		svc:      deps.UniversitySvc,
		userSvc:  deps.UserSvc,
		validate: deps.Validate,
		messages: deps.Messages,
	}

	ug := g.Group("/universities")
	ag := ug.Group("", jwt)
	ag.GET("/all", api.list)
	ag.POST("", api.create)
	ag.PUT("/:id", api.update)
	ag.DELETE("/:id", api.destroy)
	ag.POST("/:id/restore", api.restore)

	// un-authed (registration form); must come after the authed group's catch-all route
	ug.GET("", api.listActive)
}

func universityID(ctx echo.Context) (int, error) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil || id < 1 {
		return 0, university.ErrNotFound
	}
	return id, nil
}

func (api *universityApi) listActive(ctx echo.Context) error {
	universities, err := api.svc.ListActive(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing universities")
	}
	if universities == nil {
		universities = []university.University{}
	}
	return ctx.JSON(http.StatusOK, universities)
}

func (api *universityApi) list(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	universities, err := api.svc.List(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "listing universities")
	}
	if universities == nil {
		universities = []university.University{}
	}
	return ctx.JSON(http.StatusOK, universities)
}

func (api *universityApi) create(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	if err = authz.Require(actor, authz.CanManageMasterData); err != nil {
		return err
	}
	var data university.NewUniversity
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	u, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating university")
	}
	return ctx.JSON(http.StatusCreated, actionResponse(ctx, api.messages, "university.created", u))
}

func (api *universityApi) update(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	id, err := universityID(ctx)
	if err != nil {
		return err
	}
	if err = authz.Require(actor, authz.CanManageMasterData); err != nil {
		return err
	}
	var data university.UpdateUniversity
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	u, err := api.svc.Update(ctx.Request().Context(), actor, id, data)
	if err != nil {
		return errors.Wrap(err, "updating university")
	}
	return ctx.JSON(http.StatusOK, actionResponse(ctx, api.messages, "university.updated", u))
}

func (api *universityApi) destroy(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	id, err := universityID(ctx)
	if err != nil {
		return err
	}

	if err = api.svc.Delete(ctx.Request().Context(), actor, id); err != nil {
		return errors.Wrap(err, "deleting university")
	}
	return ctx.JSON(http.StatusOK, actionResponse(ctx, api.messages, "university.deleted", nil))
}

func (api *universityApi) restore(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	id, err := universityID(ctx)
	if err != nil {
		return err
	}

	u, err := api.svc.Restore(ctx.Request().Context(), actor, id)
	if err != nil {
		return errors.Wrap(err, "restoring university")
	}
	return ctx.JSON(http.StatusOK, actionResponse(ctx, api.messages, "university.restored", u))
}
