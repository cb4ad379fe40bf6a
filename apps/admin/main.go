package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/event"
	"github.com/trezcool/alumni/core/user"
	"github.com/trezcool/alumni/services/broker"
	cachesvc "github.com/trezcool/alumni/services/cache"
	emailsvc "github.com/trezcool/alumni/services/email"
	logsvc "github.com/trezcool/alumni/services/logger"
	"github.com/trezcool/alumni/services/notify"
	"github.com/trezcool/alumni/storage/database"
	inmemdb "github.com/trezcool/alumni/storage/database/inmem"
	sqlxrepos "github.com/trezcool/alumni/storage/database/sqlx"
)

func main() {
	os.Exit(run())
}

func run() int {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)
	ctx := context.Background()

	cli := commandLine{validate: validator.New(), out: os.Stdout}

	// set up DB & repos
	var (
		usrRepo   user.Repository
		eventRepo event.Repository
	)
	if conf.Database.Engine == "inmem" {
		db, err := inmemdb.Open()
		if err != nil {
			logger.Error(fmt.Sprintf("opening database: %v", err), err)
			return 1
		}
		usrRepo, eventRepo = inmemdb.NewUserRepository(db), inmemdb.NewEventRepository(db)
	} else {
		db, err := database.Setup(ctx, conf)
		if err != nil {
			logger.Error(fmt.Sprintf("setting up database: %v", err), err)
			return 1
		}
		defer func() { _ = db.Close() }()
		cli.db = db
		usrRepo, eventRepo = sqlxrepos.NewUserRepository(db), sqlxrepos.NewEventRepository(db)
	}

	// mutations made here must refresh the pages cached by the API
	var pages core.Revalidator = core.NopRevalidator{}
	if conf.Redis.Addr != "" {
		cache, err := cachesvc.NewRedisCache(ctx, conf.Redis)
		if err != nil {
			logger.Error(fmt.Sprintf("setting up page cache: %v", err), err)
			return 1
		}
		defer func() { _ = cache.Close() }()
		pages = cache
	}

	publisher, err := broker.NewAMQPPublisher(conf.AMQP, logger)
	if err != nil {
		logger.Error(fmt.Sprintf("setting up publisher: %v", err), err)
		return 1
	}
	defer func() { _ = publisher.Close() }()

	cli.usrRepo = usrRepo
	cli.usrSvc = user.NewService(usrRepo, emailsvc.NewConsoleService(conf, logger), pages, conf, logger)
	cli.eventSvc = event.NewService(eventRepo, publisher, pages, logger)
	cli.notifier = notify.NewQueue(printNotification(cli.out), 8)
	defer cli.notifier.Close()

	if err = cli.run(os.Args); err != nil {
		if err != errHelp {
			fmt.Fprintf(cli.out, "\nerror: %s\n", err)
		}
		return 1
	}
	return 0
}
