package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/event"
	"github.com/trezcool/alumni/core/profile"
	"github.com/trezcool/alumni/core/user"
)

const avatarField = "avatar"

type profileApi struct {
	svc      profile.ServiceInterface
	eventSvc event.ServiceInterface
	userSvc  user.ServiceInterface
	messages core.Localizer
	validate *validator.Validate
}

func registerProfileAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := profileApi{
		svc:      deps.ProfileSvc,
		eventSvc: deps.EventSvc,
		userSvc:  deps.UserSvc,
		messages: deps.Messages,
		validate: deps.Validate,
	}

	pg := g.Group("/profiles", jwt)
	pg.GET("", api.query)
	pg.GET("/counts", api.counts)

	// `:id` is the ID of the user owning the profile
	pg.GET("/:id", api.retrieve)
	pg.PUT("/:id", api.update)
	pg.PUT("/:id/avatar", api.setAvatar)
	pg.POST("/:id/approve", api.approve)
	pg.POST("/:id/reject", api.reject)
	pg.GET("/:id/participations", api.participations)
	pg.GET("/:id/attendance", api.attendance)
}

func (api *profileApi) query(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	filter := new(profile.QueryFilter)
	ordering, page, err := bindListQuery(ctx, filter)
	if err != nil {
		return err
	}
	filter.Clean()

	profiles, count, err := api.svc.Query(ctx.Request().Context(), actor, filter, ordering.Orderings, page)
	if err != nil {
		return errors.Wrap(err, "querying profiles")
	}
	if profiles == nil {
		profiles = []profile.Profile{}
	}
	return ctx.JSON(http.StatusOK, PageResponse{Count: count, Page: page.Page, PageSize: page.PageSize, Results: profiles})
}

func (api *profileApi) counts(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	counts, err := api.svc.CountByStatus(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "counting profiles")
	}
	return ctx.JSON(http.StatusOK, counts)
}

func (api *profileApi) retrieve(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	p, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting profile")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *profileApi) update(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	var data profile.UpdateProfile
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	p, err := api.svc.Update(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating profile")
	}
	return ctx.JSON(http.StatusOK, actionResponse(ctx, api.messages, "profile.updated", p))
}

func (api *profileApi) setAvatar(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	fh, err := ctx.FormFile(avatarField)
	if err != nil {
		return core.NewValidationError(errInvalidRequest, core.FieldError{Field: avatarField, Error: "this field is required"})
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening avatar")
	}
	defer func() { _ = f.Close() }()

	p, err := api.svc.SetAvatar(ctx.Request().Context(), actor, ctx.Param("id"), profile.Avatar{
		Content:     f,
		Size:        fh.Size,
		ContentType: fh.Header.Get(echo.HeaderContentType),
	})
	if err != nil {
		return errors.Wrap(err, "setting avatar")
	}
	return ctx.JSON(http.StatusOK, actionResponse(ctx, api.messages, "profile.avatar_updated", p))
}

func (api *profileApi) approve(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	p, err := api.svc.Approve(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "approving profile")
	}
	return ctx.JSON(http.StatusOK, actionResponse(ctx, api.messages, "profile.approved", p))
}

func (api *profileApi) reject(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	var data RejectRequest
	if err = bindBody(ctx, &data); err != nil {
		return err
	}

	p, err := api.svc.Reject(ctx.Request().Context(), actor, ctx.Param("id"), data.Reason)
	if err != nil {
		return errors.Wrap(err, "rejecting profile")
	}
	return ctx.JSON(http.StatusOK, actionResponse(ctx, api.messages, "profile.rejected", p))
}

func (api *profileApi) participations(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	participations, err := api.eventSvc.Participations(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing participations")
	}
	if participations == nil {
		participations = []event.Participation{}
	}
	return ctx.JSON(http.StatusOK, participations)
}

func (api *profileApi) attendance(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	att, err := api.eventSvc.MemberAttendance(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "computing attendance")
	}
	return ctx.JSON(http.StatusOK, att)
}

type RejectRequest struct {
	Reason string `json:"reason"`
}
