package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/dashboard"
	"github.com/trezcool/alumni/core/event"
	"github.com/trezcool/alumni/core/profile"
	"github.com/trezcool/alumni/core/university"
	"github.com/trezcool/alumni/core/user"
)

type (
	ServerDeps struct {
		Conf          *core.Config
		Logger        core.Logger
		Validate      *validator.Validate
		Translator    ut.Translator
		Messages      core.Localizer
		Pages         core.PageCache
		UserSvc       user.ServiceInterface
		ProfileSvc    profile.ServiceInterface
		EventSvc      event.ServiceInterface
		UniversitySvc university.ServiceInterface
		DashboardSvc  dashboard.ServiceInterface
	}

	Server interface {
		http.Handler
		Start()
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(ctx context.Context) error
		Close() error
	}

	server struct {
		ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	s := &server{
		ServerDeps: deps,
		app:        echo.New(),
		errors:     make(chan error, 1),
		shutdown:   make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.Conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.Conf.Debug || s.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(metricsMiddleware)

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.Logger, s.Messages, s.Translator, s.signalShutdown)
	s.app.Debug = s.Conf.Debug
	s.app.HideBanner = true

	s.app.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	registerPages(s.app, s.ServerDeps)

	g := s.app.Group("/api")
	jwt := middleware.JWTWithConfig(newJWTConfig(s.Conf))

	registerAuthAPI(g, jwt, s.ServerDeps)
	registerUserAPI(g, jwt, s.ServerDeps)
	registerAdminAPI(g, jwt, s.ServerDeps)
	registerProfileAPI(g, jwt, s.ServerDeps)
	registerEventAPI(g, jwt, s.ServerDeps)
	registerUniversityAPI(g, jwt, s.ServerDeps)
}

// Start serves until the server is shut down; listening errors are sent to Errors().
func (s *server) Start() {
	s.Logger.Info("API listening on " + s.Conf.Server.Host)
	if err := s.app.Start(s.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Errors() <-chan error {
	return s.errors
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already shutting down
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	signal.Stop(s.shutdown)
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}
