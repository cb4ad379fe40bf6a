package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	echoapi "github.com/trezcool/alumni/apps/api/echo"
	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/dashboard"
	"github.com/trezcool/alumni/core/event"
	"github.com/trezcool/alumni/core/profile"
	"github.com/trezcool/alumni/core/university"
	"github.com/trezcool/alumni/core/user"
	"github.com/trezcool/alumni/services/broker"
	cachesvc "github.com/trezcool/alumni/services/cache"
	emailsvc "github.com/trezcool/alumni/services/email"
	i18nsvc "github.com/trezcool/alumni/services/i18n"
	logsvc "github.com/trezcool/alumni/services/logger"
	"github.com/trezcool/alumni/storage/database"
	inmemdb "github.com/trezcool/alumni/storage/database/inmem"
	sqlxrepos "github.com/trezcool/alumni/storage/database/sqlx"
	"github.com/trezcool/alumni/storage/objects"
)

// TODO:
// - rate limit the un-authed auth endpoints
// - CSRF tokens on the web forms
func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	ctx := context.Background()

	// set up repositories
	repos, closeDB, err := setUpRepos(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = closeDB(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// set up adapters
	pages, closePages, err := setUpPageCache(ctx, conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up page cache: %v", err), err)
	}
	defer func() { _ = closePages() }()

	publisher, err := broker.NewAMQPPublisher(conf.AMQP, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up publisher: %v", err), err)
	}
	defer func() {
		if err = publisher.Close(); err != nil {
			logger.Error(fmt.Sprintf("closing publisher: %v", err), err)
		}
	}()

	var objStore core.ObjectStore
	if conf.Storage.Endpoint != "" {
		store, err := objects.NewMinioStore(ctx, conf.Storage)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up object storage: %v", err), err)
		}
		objStore = store
	} else {
		logger.Warn("storage endpoint is empty, avatar uploads are disabled")
	}

	mailSvc := emailsvc.NewService(conf, logger)
	messages := i18nsvc.NewTranslator(conf.DefaultLocale, logger)

	// set up services
	usrSvc := user.NewService(repos.users, mailSvc, pages, conf, logger)
	profileSvc := profile.NewService(profile.Deps{
		Repo:         repos.profiles,
		Universities: repos.universities,
		Users:        repos.users,
		MailSvc:      mailSvc,
		Objects:      objStore,
		Publisher:    publisher,
		Pages:        pages,
		Logger:       logger,
	})
	eventSvc := event.NewService(repos.events, publisher, pages, logger)
	universitySvc := university.NewService(repos.universities, pages, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	user.LoadCommonPasswords(logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("db_engine").Set(conf.Database.Engine)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:          conf,
			Logger:        logger,
			Validate:      validate,
			Translator:    translator,
			Messages:      messages,
			Pages:         pages,
			UserSvc:       usrSvc,
			ProfileSvc:    profileSvc,
			EventSvc:      eventSvc,
			UniversitySvc: universitySvc,
			DashboardSvc:  dashboard.NewService(profileSvc, eventSvc),
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		shutdownCtx, cancel := context.WithTimeout(ctx, conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(shutdownCtx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

type repositories struct {
	users        user.Repository
	universities university.Repository
	profiles     profile.Repository
	events       event.Repository
}

// setUpRepos opens the configured database engine: postgres (default) or inmem.
func setUpRepos(ctx context.Context, conf *core.Config) (repositories, func() error, error) {
	switch conf.Database.Engine {
	case "inmem":
		db, err := inmemdb.Open()
		if err != nil {
			return repositories{}, nil, err
		}
		return repositories{
			users:        inmemdb.NewUserRepository(db),
			universities: inmemdb.NewUniversityRepository(db),
			profiles:     inmemdb.NewProfileRepository(db),
			events:       inmemdb.NewEventRepository(db),
		}, func() error { return nil }, nil

	case "", "postgres":
		db, err := database.Setup(ctx, conf)
		if err != nil {
			return repositories{}, nil, err
		}
		return repositories{
			users:        sqlxrepos.NewUserRepository(db),
			universities: sqlxrepos.NewUniversityRepository(db),
			profiles:     sqlxrepos.NewProfileRepository(db),
			events:       sqlxrepos.NewEventRepository(db),
		}, db.Close, nil
	}
	return repositories{}, nil, errors.Errorf("unknown database engine %q", conf.Database.Engine)
}

// setUpPageCache uses redis when an address is configured, else an in-process cache.
func setUpPageCache(ctx context.Context, conf *core.Config, logger core.Logger) (core.PageCache, func() error, error) {
	if conf.Redis.Addr == "" {
		logger.Warn("redis address is empty, using the in-process page cache")
		return cachesvc.NewMemoryCache(conf.Redis.PageTTL), func() error { return nil }, nil
	}
	cache, err := cachesvc.NewRedisCache(ctx, conf.Redis)
	if err != nil {
		return nil, nil, err
	}
	return cache, cache.Close, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
