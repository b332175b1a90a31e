package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskboard/internal/auth"
	"taskboard/internal/bot"
	"taskboard/internal/config"
	"taskboard/internal/docstore"
	"taskboard/internal/repository"
	"taskboard/internal/service"
	"taskboard/internal/taskview"
	"taskboard/internal/tui"
)

func main() {
	configPath := flag.String("config", "", "path to a taskboard.{toml,yaml,json} config file")
	frontend := flag.String("frontend", "", "override the configured frontend (tui or telegram)")
	flag.Parse()

	if *frontend != "" {
		os.Setenv("TASKBOARD_FRONTEND", *frontend)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	var feed docstore.Feed
	if cfg.NATSURL != "" {
		natsFeed, err := docstore.NewNATSFeed(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			log.Fatalf("nats: %v", err)
		}
		defer natsFeed.Close()
		feed = natsFeed
		log.Printf("[info] change feed via nats %s", cfg.NATSURL)
	}

	userRepo := repository.NewUserRepository(db)
	store := docstore.New(repository.NewDocumentRepository(db), feed, cfg.AppID)

	var tokens *auth.TokenManager
	if cfg.JWTSecret != "" {
		tokens = auth.NewTokenManager(auth.TokenConfig{SecretKey: cfg.JWTSecret, TTL: cfg.TokenTTL})
	}
	authSvc := auth.NewService(userRepo, auth.NewPasswordHasher(cfg.BcryptCost), tokens)
	clientOpts := auth.ClientOptions{AnonymousFallback: cfg.GuestFallback, FallbackDelay: cfg.FallbackDelay}

	query, err := defaultQuery(cfg)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	switch cfg.Frontend {
	case config.FrontendTelegram:
		runBot(ctx, cfg, bot.Deps{
			Auth:          authSvc,
			Store:         store,
			Users:         userRepo,
			Digest:        service.NewDigestService(store),
			ClientOptions: clientOpts,
			DefaultQuery:  query,
		})
	default:
		runTUI(ctx, cfg, authSvc, store, clientOpts, query)
	}
}

func runBot(ctx context.Context, cfg config.Config, deps bot.Deps) {
	telegramBot, err := bot.New(cfg.TelegramToken, deps)
	if err != nil {
		log.Fatalf("bot: %v", err)
	}
	defer telegramBot.Close()

	scheduler := service.NewSchedulerService(time.Local)
	switch {
	case cfg.DigestAt != "":
		if _, err := scheduler.ScheduleDaily("digest", cfg.DigestAt, telegramBot.SendDigests); err != nil {
			log.Fatalf("schedule digest: %v", err)
		}
	case cfg.DigestInterval > 0:
		if _, err := scheduler.ScheduleInterval("digest", cfg.DigestInterval, telegramBot.SendDigests); err != nil {
			log.Fatalf("schedule digest: %v", err)
		}
	}
	if scheduler.Entries() > 0 {
		scheduler.Start()
		defer scheduler.Stop()
	}

	log.Println("[info] taskboard bot started")
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("bot stopped with error: %v", err)
	}
	log.Println("[info] shutdown complete")
}

func runTUI(ctx context.Context, cfg config.Config, authSvc *auth.Service, store *docstore.Store, opts auth.ClientOptions, query taskview.Query) {
	client := auth.NewClient(authSvc, opts)
	defer client.Close()

	env := service.Env{Auth: client, Store: store, Now: time.Now}
	ctrl := service.NewSessionController(env)
	ctrl.Start()
	defer ctrl.Close()

	// The terminal owns stdout while the program runs.
	if f, err := os.OpenFile("taskboard.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600); err == nil {
		log.SetOutput(f)
		defer f.Close()
	}

	err := tui.Run(ctx, tui.Deps{
		Auth:          client,
		Ctrl:          ctrl,
		Tasks:         service.NewTaskService(env),
		Query:         query,
		InitialToken:  cfg.InitialToken,
		GuestFallback: opts.AnonymousFallback,
		Now:           time.Now,
	})
	if err != nil {
		log.Printf("tui: %v", err)
	}
}

func defaultQuery(cfg config.Config) (taskview.Query, error) {
	query := taskview.DefaultQuery()
	key, err := taskview.ParseSortKey(cfg.DefaultSort)
	if err != nil {
		return query, err
	}
	dir, err := taskview.ParseDirection(cfg.DefaultDirection)
	if err != nil {
		return query, err
	}
	query.SortKey, query.Direction = key, dir
	return query, nil
}
