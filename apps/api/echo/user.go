package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/authz"
	"github.com/trezcool/alumni/core/profile"
	"github.com/trezcool/alumni/core/user"
)

const contextObjectKey = "object"

var (
	errUsrNotFoundInCtx  = errors.New("user object not found in echo.Context")
	errNoPermsToSetRole  = "not enough rights to set this role"
	errNoPermsToSetField = "only an administrator can change this field"
)

type userApi struct {
	conf       *core.Config
	svc        user.ServiceInterface
	profileSvc profile.ServiceInterface
	messages   core.Localizer
	validate   *validator.Validate
	translator ut.Translator
	logger     core.Logger
}

func newUserApi(deps ServerDeps) *userApi {
	return &userApi{
		conf:       deps.Conf,
		svc:        deps.UserSvc,
		profileSvc: deps.ProfileSvc,
		messages:   deps.Messages,
		validate:   deps.Validate,
		translator: deps.Translator,
		logger:     deps.Logger,
	}
}

func registerAuthAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := newUserApi(deps)

	ag := g.Group("/auth")

	// un-authed endpoints
	// TODO: rate limit `/login`, `/password-reset` & `/password-reset-confirm`
	ag.POST("/login", api.login)
	ag.POST("/register", api.register)
	ag.POST("/password-reset", api.resetPassword)
	ag.POST("/password-reset-confirm", api.confirmPasswordReset)

	// authed endpoints
	ag.POST("/token-refresh", api.refreshToken, jwt)
	ag.GET("/me", api.me, jwt)
}

func registerUserAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := newUserApi(deps)

	ug := g.Group("/users", jwt)
	ug.POST("", api.create, adminMiddleware(api.svc))
	ug.GET("", api.query, adminMiddleware(api.svc))
	ug.DELETE("", api.destroyMultiple, adminMiddleware(api.svc))
	ug.GET("/roles", api.queryRoles, adminMiddleware(api.svc))

	// detail endpoints
	dg := ug.Group("/:id", ctxUserOrAdminMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy, adminMiddleware(api.svc))
}

// Handlers

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := authenticate(ctx.Request().Context(), api.conf, data.Email, data.Password, api.svc)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	token, err := GenerateToken(api.conf, claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

// register creates a member account along with its Pending profile.
func (api *userApi) register(ctx echo.Context) error {
	var data RegisterRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	data.Role = user.RoleMember // self-registered accounts are always members

	reqCtx := ctx.Request().Context()
	if err := data.NewUser.Validate(reqCtx, api.validate, api.svc); err != nil {
		return err
	}
	np := data.profile()
	if err := np.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Create(reqCtx, data.NewUser)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	p, err := api.profileSvc.Create(reqCtx, usr, np)
	if err != nil {
		if dErr := api.svc.Delete(reqCtx, usr.ID); dErr != nil {
			api.logger.Error("rolling back registration of "+usr.ID, dErr, usr)
		}
		return errors.Wrap(err, "creating profile")
	}
	return ctx.JSON(http.StatusCreated, actionResponse(ctx, api.messages, "account.registered", RegisterResponse{User: usr, Profile: p}))
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email); !(err == nil || errors.Is(err, user.ErrNotFound)) {
		// do not return errors to attackers
		api.logger.Error("requesting password reset", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, actionResponse(ctx, api.messages, "password.reset_requested", nil))
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, actionResponse(ctx, api.messages, "password.reset_confirmed", nil))
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.conf, api.svc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	if err := data.Validate(reqCtx, api.validate, api.svc); err != nil {
		return err
	}

	// ctxUser cannot set a role > their own
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return err
	}
	if user.RolePriority(data.Role) > user.RolePriority(ctxUsr.Role) {
		return core.NewValidationError(nil, core.FieldError{Field: "role", Error: errNoPermsToSetRole})
	}

	usr, err := api.svc.Create(reqCtx, data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) query(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	ordering, page, err := bindListQuery(ctx, filter)
	if err != nil {
		return err
	}
	filter.Clean()

	users, count, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings, page)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, PageResponse{Count: count, Page: page.Page, PageSize: page.PageSize, Results: users})
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) update(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	var data user.UpdateUser
	if err := bindBody(ctx, &data); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return err
	}
	if !authz.CanManageMembers(ctxUsr) {
		// `IsActive`, `Role` and `Email` can only be changed by admin
		for fld, set := range map[string]bool{"is_active": data.IsActive != nil, "role": data.Role != "", "email": data.Email != ""} {
			if set {
				return core.NewValidationError(core.ErrForbidden, core.FieldError{Field: fld, Error: errNoPermsToSetField})
			}
		}
	}

	reqCtx := ctx.Request().Context()
	if err = data.Validate(reqCtx, usr, api.validate, api.svc); err != nil {
		return err
	}

	// ctxUser cannot set a role > their own
	if data.Role != "" && user.RolePriority(data.Role) > user.RolePriority(ctxUsr.Role) {
		return core.NewValidationError(nil, core.FieldError{Field: "role", Error: errNoPermsToSetRole})
	}

	usr, err = api.svc.Update(reqCtx, usr, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) destroy(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return err
	}
	if err = checkDeletable(ctxUsr, usr); err != nil {
		return err
	}

	if err := api.svc.Delete(ctx.Request().Context(), usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(errInvalidRequest, err.Error())
	}
	if len(query.IDs) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}

	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	for _, id := range query.IDs {
		usr, err := api.svc.GetByID(reqCtx, id)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				continue
			}
			return errors.Wrap(err, "finding user by ID")
		}
		if err = checkDeletable(ctxUsr, usr); err != nil {
			return err
		}
	}

	if err := api.svc.Delete(reqCtx, query.IDs...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// checkDeletable forbids self deletion and the deletion of users with a higher role.
func checkDeletable(ctxUsr, usr user.User) error {
	if usr.ID == ctxUsr.ID || user.RolePriority(usr.Role) > user.RolePriority(ctxUsr.Role) {
		return core.ErrForbidden
	}
	return nil
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

// ctxUserOrAdminMiddleware loads the user of the `:id` path param, which only that user or an
// admin may access. Anybody else gets a 404.
func ctxUserOrAdminMiddleware(svc user.ServiceInterface) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, svc)
			if err != nil {
				return err
			}

			if authz.CanViewProfile(ctxUsr, ctx.Param("id")) {
				if usr, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id")); err == nil {
					ctx.Set(contextObjectKey, usr)
					return next(ctx)
				} else if !errors.Is(err, user.ErrNotFound) {
					return errors.Wrap(err, "finding user by ID")
				}
			}
			return user.ErrNotFound
		}
	}
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	RegisterRequest struct {
		user.NewUser
		Phone          string `json:"phone"`
		UniversityID   int    `json:"university_id"`
		EntryYear      int    `json:"entry_year"`
		GraduationYear int    `json:"graduation_year"`
	}

	RegisterResponse struct {
		User    user.User       `json:"user"`
		Profile profile.Profile `json:"profile"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

func (rr RegisterRequest) profile() profile.NewProfile {
	return profile.NewProfile{
		FullName:       rr.Name,
		Phone:          rr.Phone,
		UniversityID:   rr.UniversityID,
		EntryYear:      rr.EntryYear,
		GraduationYear: rr.GraduationYear,
	}
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
