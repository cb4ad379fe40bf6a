package echoapi

import (
	"fmt"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/user"
)

const headerAcceptLanguage = "Accept-Language"

var (
	errAuthenticationFailed = core.NewAppError(core.KindValidation, "auth.failed", "authentication failed")
	errAccountDeactivated   = core.NewAppError(core.KindForbidden, "auth.deactivated", "account deactivated")
	errRefreshExpired       = core.NewAppError(core.KindForbidden, "auth.refresh_expired", "refresh has expired")
	errInvalidRequest       = core.NewAppError(core.KindValidation, "request.invalid", "invalid request")

	kindStatuses = map[core.ErrorKind]int{
		core.KindValidation:      http.StatusBadRequest,
		core.KindUnauthenticated: http.StatusUnauthorized,
		core.KindForbidden:       http.StatusForbidden,
		core.KindNotFound:        http.StatusNotFound,
		core.KindConflict:        http.StatusConflict,
		core.KindSystem:          http.StatusInternalServerError,
	}
)

type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
	Detail string            `json:"detail,omitempty"` // debug only
}

func requestLocale(ctx echo.Context) string {
	return ctx.Request().Header.Get(headerAcceptLanguage)
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// Domain errors are rendered in the language of the request.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, messages core.Localizer, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		locale := requestLocale(ctx)
		localize := func(appErr *core.AppError) string {
			return messages.T(locale, appErr.Key, appErr.Data)
		}

		var (
			code int
			resp ErrorResponse
		)

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing || origErr.Code == http.StatusUnauthorized {
				code = http.StatusUnauthorized
				resp.Error = localize(core.ErrUnauthenticated)
				break
			}
			if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
				origErr = herr
			}
			code = origErr.Code
			resp.Error = fmt.Sprint(origErr.Message)
		case validator.ValidationErrors:
			resp.Fields = make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				resp.Fields[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			resp.Error = localize(errInvalidRequest)
		case *core.ValidationError:
			if appErr, ok := errors.Cause(origErr.Err).(*core.AppError); ok {
				resp.Error = localize(appErr)
			} else {
				resp.Error = localize(errInvalidRequest)
			}
			if origErr.Fields != nil {
				resp.Fields = make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					resp.Fields[fErr.Field] = fErr.Error
				}
			}
			code = http.StatusBadRequest
		case *core.AppError:
			if origErr.Kind != core.KindSystem {
				code = kindStatuses[origErr.Kind]
				resp.Error = localize(origErr)
				break
			}
			code = http.StatusInternalServerError
			resp.Error = localize(origErr)
			logServerError(ctx, logger, err)
		default: // any other error is a server error
			code = http.StatusInternalServerError
			resp.Error = localize(core.ErrSystem)
			logServerError(ctx, logger, err)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if code == http.StatusInternalServerError && ctx.Echo().Debug {
			resp.Detail = err.Error()
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, resp)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

func logServerError(ctx echo.Context, logger core.Logger, err error) {
	msg := http.StatusText(http.StatusInternalServerError)
	var usr user.User
	if claims, cErr := getContextClaims(ctx); cErr == nil {
		usr.ID = claims.Subject
		usr.Name = claims.Name
		usr.Email = claims.Email
	}
	logger.Error(fmt.Sprintf("%s %s: %s", ctx.Request().Method, ctx.Path(), msg), errors.Wrap(err, msg), usr)
}
