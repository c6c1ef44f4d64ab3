package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"redux-portal/internal/config"
	"redux-portal/internal/database"
	"redux-portal/internal/domain"
	httpapi "redux-portal/internal/http"
	applog "redux-portal/internal/logger"
	"redux-portal/internal/notify"
	"redux-portal/internal/oidcflow"
	"redux-portal/internal/otp"
	"redux-portal/internal/ratelimit"
	"redux-portal/internal/repository"
	"redux-portal/internal/service"
	"redux-portal/internal/session"
	"redux-portal/internal/store"
	"redux-portal/internal/unifi"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger, err := applog.NewLogger(cfg.Log.Level, cfg.Log.Format, "redux-portal")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	kv := store.NewRedisKV(redisClient)

	var db *sql.DB
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(&cfg.Database); err == nil {
			db = d
			logger.Info("database connected")
		} else {
			logger.Warn("database enabled but connection failed, falling back to memory repos", zap.Error(err))
		}
	}

	var (
		sitesRepo      repository.SitesRepo
		sessionsRepo   repository.SessionsRepo
		vouchersRepo   repository.VouchersRepo
		identitiesRepo repository.IdentitiesRepo
		eventsRepo     repository.AuthEventsRepo
		oidcRepo       repository.OidcRepo
	)
	if db != nil {
		sitesRepo = repository.NewPostgresSitesRepo(db)
		sessionsRepo = repository.NewPostgresSessionsRepo(db)
		vouchersRepo = repository.NewPostgresVouchersRepo(db)
		identitiesRepo = repository.NewPostgresIdentitiesRepo(db)
		eventsRepo = repository.NewPostgresAuthEventsRepo(db)
		oidcRepo = repository.NewPostgresOidcRepo(db)
	} else {
		sitesRepo = repository.NewMemorySitesRepo()
		sessionsRepo = repository.NewMemorySessionsRepo()
		vouchersRepo = repository.NewMemoryVouchersRepo()
		identitiesRepo = repository.NewMemoryIdentitiesRepo()
		eventsRepo = repository.NewMemoryAuthEventsRepo()
		oidcRepo = repository.NewMemoryOidcRepo()
	}

	sessions := session.NewStore(kv, sessionsRepo, cfg.SessionTTL, logger)
	limiter := ratelimit.NewLimiter(kv, logger)
	otpEngine := otp.NewEngine(kv, cfg.SecretKey, cfg.OtpTTL, cfg.OtpMaxAttempts, logger)

	var sender notify.Sender
	if cfg.SMTP.Addr != "" {
		sender = notify.NewSMTPSender(cfg.SMTP.Addr, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.Host)
	} else {
		logger.Info("SMTP_ADDR not set, logging outbound mail instead")
		sender = &notify.LogSender{Logger: logger}
	}
	mailer := notify.NewDispatcher(sender, cfg.MailBufferSize, logger)

	// Each site names the env var carrying its controller API key; the
	// factory resolves it per request so keys rotate without restarts.
	controllers := service.ControllerFactory(func(site *domain.Site) service.Controller {
		return unifi.NewClient(
			site.UnifiBaseURL,
			os.Getenv(site.UnifiAPIKeyRef),
			site.UnifiSiteID,
			unifi.Options{
				Timeout:      cfg.Unifi.Timeout,
				FindAttempts: cfg.Unifi.FindAttempts,
				FindBackoff:  cfg.Unifi.FindBackoff,
			},
			logger,
		)
	})

	authorizer := service.NewAuthorizer(sessions, eventsRepo, controllers, cfg.BaseURL, logger)

	guestSvc := service.NewGuestService(
		sitesRepo, sessions, sessionsRepo, vouchersRepo, identitiesRepo, oidcRepo,
		limiter, otpEngine, mailer, authorizer,
		service.RateLimits{
			Window:          cfg.RateWindow,
			VoucherPerIP:    cfg.VoucherPerIP,
			VoucherPerMAC:   cfg.VoucherPerMAC,
			OtpStartPerIP:   cfg.OtpStartPerIP,
			OtpStartPerMAC:  cfg.OtpStartPerMAC,
			OtpVerifyPerIP:  cfg.OtpVerifyPerIP,
			OtpVerifyPerMAC: cfg.OtpVerifyPerMAC,
		},
		logger,
	)

	states := oidcflow.NewStateStore(kv, cfg.OidcStateTTL)
	exchanger := oidcflow.NewProviderExchanger(logger)
	oidcSvc := service.NewOidcService(
		sitesRepo, sessionsRepo, oidcRepo, identitiesRepo, eventsRepo,
		states, exchanger, authorizer, cfg.BaseURL, logger,
	)

	router := httpapi.NewRouter(logger)
	router.RegisterHealthRoutes(httpapi.NewHealthHandler(db, redisClient, logger))
	router.RegisterGuestRoutes(httpapi.NewGuestHandler(guestSvc, logger))
	router.RegisterOidcRoutes(httpapi.NewOidcHandler(oidcSvc, logger))

	srv := service.NewServer(cfg.HTTP.Addr, router, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
	case err := <-errCh:
		logger.Error("server exited", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	mailer.Close()
	_ = redisClient.Close()
	if db != nil {
		_ = db.Close()
	}
}
