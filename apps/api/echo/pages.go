package echoapi

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/authz"
	"github.com/trezcool/alumni/core/dashboard"
	"github.com/trezcool/alumni/core/university"
	"github.com/trezcool/alumni/core/user"
	appfs "github.com/trezcool/alumni/fs"
)

const (
	PathLogin  = "/login"
	PathLogout = "/logout"

	headerCache       = "X-Page-Cache"
	webTemplatesDir   = "assets/templates/web"
	sharedPageVariant = "shared"
)

// guardArea tells the session guard who may see a page.
type guardArea int

const (
	areaAuth   guardArea = iota // anonymous only: login, register
	areaMember                  // any signed in user
	areaAdmin                   // admins only
)

type (
	pagesApp struct {
		ServerDeps
		templates map[string]*template.Template
	}

	pageData struct {
		User         user.User
		Dashboard    dashboard.Member
		Stats        dashboard.AdminStats
		Universities []university.University
		Email        string
		Next         string
		Error        string
	}

	pageRenderer func(ctx echo.Context) ([]byte, error)
)

func registerPages(e *echo.Echo, deps ServerDeps) {
	p := &pagesApp{ServerDeps: deps}
	p.parseTemplates()

	e.GET("/", p.home, p.guard(areaMember))
	e.GET(PathLogin, p.loginPage, p.guard(areaAuth))
	e.POST(PathLogin, p.login, p.guard(areaAuth))
	e.POST(PathLogout, p.logout)

	e.GET(core.PathRegister, p.cached(p.renderRegister, sharedVariant), p.guard(areaAuth))
	e.GET(core.PathDashboard, p.cached(p.renderDashboard, userVariant), p.guard(areaMember))
	e.GET(core.PathAdmin, p.cached(p.renderAdmin, sharedVariant), p.guard(areaAdmin))
	e.GET(core.PathAdminMasterData, p.cached(p.renderMasterData, sharedVariant), p.guard(areaAdmin))
}

// parseTemplates parses every page of the web templates dir inside the `_base` layout.
func (p *pagesApp) parseTemplates() {
	p.templates = make(map[string]*template.Template)
	base := path.Join(webTemplatesDir, "_base.gohtml")

	fps, err := fs.Glob(appfs.FS, path.Join(webTemplatesDir, "*.gohtml"))
	if err != nil {
		p.Logger.Error(fmt.Sprintf("listing web templates: %v", err), err)
	}
	for _, fp := range fps {
		fname := path.Base(fp)
		if strings.HasPrefix(fname, "_") {
			continue
		}
		tmpl, err := template.ParseFS(appfs.FS, base, fp)
		if err != nil {
			p.Logger.Error(fmt.Sprintf("parsing web template %s: %v", fname, err), err)
			continue
		}
		p.templates[strings.TrimSuffix(fname, ".gohtml")] = tmpl.Option("missingkey=error")
	}
}

func (p *pagesApp) render(name string, data pageData) ([]byte, error) {
	tmpl, ok := p.templates[name]
	if !ok {
		return nil, errors.Errorf("web template %q not found", name)
	}
	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, data); err != nil {
		return nil, errors.Wrapf(err, "rendering %s", name)
	}
	return buff.Bytes(), nil
}

// Session

// sessionUser resolves the active user of the session cookie.
func (p *pagesApp) sessionUser(ctx echo.Context) (user.User, bool) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, true
	}
	cookie, err := ctx.Cookie(p.Conf.Server.SessionCookie)
	if err != nil || cookie.Value == "" {
		return user.User{}, false
	}
	claims, err := parseToken(p.Conf, cookie.Value)
	if err != nil {
		return user.User{}, false
	}
	usr, err := p.UserSvc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			p.Logger.Error(fmt.Sprintf("loading session user %s: %v", claims.Subject, err), err)
		}
		return user.User{}, false
	}
	if !usr.IsActive {
		return user.User{}, false
	}
	ctx.Set(contextUserKey, usr)
	return usr, true
}

func homePath(s authz.Subject) string {
	if authz.CanAccessAdmin(s) {
		return core.PathAdmin
	}
	return core.PathDashboard
}

func loginURL(next string) string {
	return PathLogin + "?" + url.Values{"next": {next}}.Encode()
}

// safeNext only follows local redirects.
func safeNext(next string) (string, bool) {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "", false
	}
	return next, true
}

// guard redirects signed in users away from the auth pages, anonymous users to the login page
// and non admins away from the admin area.
func (p *pagesApp) guard(area guardArea) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, ok := p.sessionUser(ctx)
			switch {
			case area == areaAuth && ok:
				return ctx.Redirect(http.StatusFound, homePath(usr))
			case area != areaAuth && !ok:
				return ctx.Redirect(http.StatusFound, loginURL(ctx.Request().URL.RequestURI()))
			case area == areaAdmin && !authz.CanAccessAdmin(usr):
				return ctx.Redirect(http.StatusFound, core.PathDashboard)
			}
			return next(ctx)
		}
	}
}

func (p *pagesApp) setSessionCookie(ctx echo.Context, token string, expires time.Time) {
	ctx.SetCookie(&http.Cookie{
		Name:     p.Conf.Server.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   !(p.Conf.Debug || p.Conf.TestMode),
		SameSite: http.SameSiteLaxMode,
	})
}

// Caching

func sharedVariant(echo.Context) string { return sharedPageVariant }

func userVariant(ctx echo.Context) string {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr.ID
	}
	return ""
}

// cached serves the page from the page cache, rendering and storing it on a miss.
// Pages are keyed by route path so that revalidating a path drops all of its variants.
func (p *pagesApp) cached(render pageRenderer, variant func(echo.Context) string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		reqCtx := ctx.Request().Context()
		route, v := ctx.Path(), variant(ctx)

		page, ok, err := p.Pages.Get(reqCtx, route, v)
		if err != nil {
			p.Logger.Warn(fmt.Sprintf("reading cached page %s: %v", route, err), err)
		} else if ok {
			ctx.Response().Header().Set(headerCache, "HIT")
			return ctx.HTMLBlob(http.StatusOK, page)
		}

		if page, err = render(ctx); err != nil {
			return err
		}
		if err = p.Pages.Set(reqCtx, route, v, page); err != nil {
			p.Logger.Warn(fmt.Sprintf("caching page %s: %v", route, err), err)
		}
		ctx.Response().Header().Set(headerCache, "MISS")
		return ctx.HTMLBlob(http.StatusOK, page)
	}
}

// Handlers

func (p *pagesApp) home(ctx echo.Context) error {
	usr, _ := p.sessionUser(ctx)
	return ctx.Redirect(http.StatusFound, homePath(usr))
}

func (p *pagesApp) loginPage(ctx echo.Context) error {
	next, _ := safeNext(ctx.QueryParam("next"))
	page, err := p.render("login", pageData{Next: next})
	if err != nil {
		return err
	}
	return ctx.HTMLBlob(http.StatusOK, page)
}

func (p *pagesApp) login(ctx echo.Context) error {
	email := core.CleanString(ctx.FormValue("email"), true /* lower */)
	next, hasNext := safeNext(ctx.FormValue("next"))

	claims, err := authenticate(ctx.Request().Context(), p.Conf, email, ctx.FormValue("password"), p.UserSvc)
	if err != nil {
		appErr, ok := errors.Cause(err).(*core.AppError)
		if !ok || appErr.Kind == core.KindSystem {
			return errors.Wrap(err, "authenticating")
		}
		page, rErr := p.render("login", pageData{
			Email: email,
			Next:  next,
			Error: p.Messages.T(requestLocale(ctx), appErr.Key, appErr.Data),
		})
		if rErr != nil {
			return rErr
		}
		return ctx.HTMLBlob(http.StatusUnauthorized, page)
	}

	token, err := GenerateToken(p.Conf, claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	p.setSessionCookie(ctx, token, time.Unix(claims.ExpiresAt, 0))

	if !hasNext {
		// authenticate only issues claims to active accounts
		next = homePath(user.User{ID: claims.Subject, Role: claims.Role, IsActive: true})
	}
	return ctx.Redirect(http.StatusSeeOther, next)
}

func (p *pagesApp) logout(ctx echo.Context) error {
	ctx.SetCookie(&http.Cookie{
		Name:     p.Conf.Server.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	return ctx.Redirect(http.StatusSeeOther, PathLogin)
}

func (p *pagesApp) renderRegister(ctx echo.Context) ([]byte, error) {
	universities, err := p.UniversitySvc.ListActive(ctx.Request().Context())
	if err != nil {
		return nil, errors.Wrap(err, "listing universities")
	}
	return p.render("register", pageData{Universities: universities})
}

func (p *pagesApp) renderDashboard(ctx echo.Context) ([]byte, error) {
	usr, _ := p.sessionUser(ctx)
	data, err := p.DashboardSvc.Member(ctx.Request().Context(), usr)
	if err != nil {
		return nil, errors.Wrap(err, "loading dashboard")
	}
	return p.render("dashboard", pageData{User: usr, Dashboard: data})
}

func (p *pagesApp) renderAdmin(ctx echo.Context) ([]byte, error) {
	usr, _ := p.sessionUser(ctx)
	stats, err := p.DashboardSvc.Admin(ctx.Request().Context(), usr)
	if err != nil {
		return nil, errors.Wrap(err, "computing admin stats")
	}
	return p.render("admin", pageData{User: usr, Stats: stats})
}

func (p *pagesApp) renderMasterData(ctx echo.Context) ([]byte, error) {
	usr, _ := p.sessionUser(ctx)
	universities, err := p.UniversitySvc.List(ctx.Request().Context(), usr)
	if err != nil {
		return nil, errors.Wrap(err, "listing universities")
	}
	return p.render("master_data", pageData{User: usr, Universities: universities})
}
