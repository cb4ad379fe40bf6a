package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/authz"
	"github.com/trezcool/alumni/core/event"
	"github.com/trezcool/alumni/core/user"
)

type eventApi struct {
	svc      event.ServiceInterface
	userSvc  user.ServiceInterface
	messages core.Localizer
	validate *validator.Validate
}

func registerEventAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := eventApi{
		svc:      deps.EventSvc,
		userSvc:  deps.UserSvc,
		messages: deps.Messages,
		validate: deps.Validate,
	}
	manager := roleMiddleware(api.userSvc, authz.CanManageEvents)

	eg := g.Group("/events", jwt)
	eg.GET("", api.query)
	eg.POST("", api.create, manager)
	eg.DELETE("", api.destroyMultiple, manager)
	eg.GET("/counts", api.counts, manager)

	eg.GET("/:id", api.retrieve)
	eg.PUT("/:id", api.update, manager)
	eg.DELETE("/:id", api.destroy, manager)

	eg.POST("/:id/register", api.register)
	eg.DELETE("/:id/register", api.cancelRegistration)
	eg.POST("/:id/check-in", api.checkIn)

	eg.GET("/:id/participants", api.participants, manager)
	eg.PUT("/:id/participants/:pid", api.setParticipantStatus, manager)
	eg.GET("/:id/attendance", api.attendance, manager)
}

func (api *eventApi) query(ctx echo.Context) error {
	filter := new(event.QueryFilter)
	ordering, page, err := bindListQuery(ctx, filter)
	if err != nil {
		return err
	}

	events, count, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings, page)
	if err != nil {
		return errors.Wrap(err, "querying events")
	}
	if events == nil {
		events = []event.Event{}
	}
	return ctx.JSON(http.StatusOK, PageResponse{Count: count, Page: page.Page, PageSize: page.PageSize, Results: events})
}

func (api *eventApi) counts(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	counts, err := api.svc.CountByStatus(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "counting events")
	}
	return ctx.JSON(http.StatusOK, counts)
}

func (api *eventApi) create(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	var data event.NewEvent
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	evt, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating event")
	}
	return ctx.JSON(http.StatusCreated, actionResponse(ctx, api.messages, "event.created", evt))
}

func (api *eventApi) retrieve(ctx echo.Context) error {
	evt, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding event by ID")
	}
	return ctx.JSON(http.StatusOK, evt)
}

func (api *eventApi) update(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	evt, err := api.svc.GetByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding event by ID")
	}

	var data event.UpdateEvent
	if err = bindBody(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(evt, api.validate); err != nil {
		return err
	}

	evt, err = api.svc.Update(reqCtx, actor, evt, data)
	if err != nil {
		return errors.Wrap(err, "updating event")
	}
	return ctx.JSON(http.StatusOK, actionResponse(ctx, api.messages, "event.updated", evt))
}

func (api *eventApi) destroy(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	if _, err = api.svc.GetByID(reqCtx, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "finding event by ID")
	}
	if err = api.svc.Delete(reqCtx, actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting event")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *eventApi) destroyMultiple(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	var query DestroyMultipleRequest
	if err = ctx.Bind(&query); err != nil {
		return errors.Wrap(errInvalidRequest, err.Error())
	}
	if err = api.svc.Delete(ctx.Request().Context(), actor, query.IDs...); err != nil {
		return errors.Wrap(err, "deleting events")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *eventApi) register(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	p, err := api.svc.Register(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "registering for event")
	}

	msgKey := "registration.success"
	if p.Status == event.ParticipantWaitingList {
		msgKey = "registration.waiting_list"
	}
	return ctx.JSON(http.StatusCreated, actionResponse(ctx, api.messages, msgKey, p))
}

func (api *eventApi) cancelRegistration(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	p, err := api.svc.CancelRegistration(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling registration")
	}
	return ctx.JSON(http.StatusOK, actionResponse(ctx, api.messages, "registration.cancelled", p))
}

// checkIn is the self check-in of the authenticated member. Checking in twice succeeds with
// alreadyCheckedIn set and the original time.
func (api *eventApi) checkIn(ctx echo.Context) error {
	actor, err := contextSubject(ctx, api.userSvc)
	if err != nil {
		return err
	}
	res, err := api.svc.SelfCheckIn(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "checking in")
	}

	msgKey := "checkin.success"
	if res.AlreadyCheckedIn {
		msgKey = "checkin.already"
	}
	return ctx.JSON(http.StatusOK, CheckInResponse{
		Success:          true,
		Message:          api.messages.T(requestLocale(ctx), msgKey, nil),
		AlreadyCheckedIn: res.AlreadyCheckedIn,
		CheckedInAt:      res.CheckedInAt,
	})
}

func (api *eventApi) participants(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	var query ParticipantsQuery
	if err = ctx.Bind(&query); err != nil {
		return errors.Wrap(errInvalidRequest, err.Error())
	}

	participants, err := api.svc.Participants(ctx.Request().Context(), actor, ctx.Param("id"), query.Statuses...)
	if err != nil {
		return errors.Wrap(err, "listing participants")
	}
	if participants == nil {
		participants = []event.Participant{}
	}
	return ctx.JSON(http.StatusOK, participants)
}

func (api *eventApi) setParticipantStatus(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	var data ParticipantStatusRequest
	if err = bindBody(ctx, &data); err != nil {
		return err
	}

	p, err := api.svc.SetParticipantStatus(ctx.Request().Context(), actor, ctx.Param("id"), ctx.Param("pid"), data.Status, data.Note)
	if err != nil {
		return errors.Wrap(err, "setting participant status")
	}
	return ctx.JSON(http.StatusOK, actionResponse(ctx, api.messages, "participant.updated", p))
}

func (api *eventApi) attendance(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	att, err := api.svc.EventAttendance(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "computing attendance")
	}
	return ctx.JSON(http.StatusOK, att)
}

type (
	CheckInResponse struct {
		Success          bool      `json:"success"`
		Message          string    `json:"message"`
		AlreadyCheckedIn bool      `json:"alreadyCheckedIn"`
		CheckedInAt      time.Time `json:"checkedInAt"`
	}

	ParticipantsQuery struct {
		Statuses []string `query:"status"`
	}

	ParticipantStatusRequest struct {
		Status string `json:"status"`
		Note   string `json:"note"`
	}
)
