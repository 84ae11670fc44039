package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"parkwise/internal/api"
	"parkwise/internal/auth"
	"parkwise/internal/availability"
	"parkwise/internal/booking"
	"parkwise/internal/config"
	"parkwise/internal/logger"
	"parkwise/internal/push"
	"parkwise/internal/repository"
	"parkwise/internal/service"
)

const serviceName = "parkwise-edge"

func main() {
	cfg := config.Load(serviceName)
	log := cfg.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := repository.NewBackendClient(cfg.APIURL, cfg.BackendTimeout, log)
	lots := repository.NewLotRepository(client)
	pricing := repository.NewPricingRepository(client)
	bookings := repository.NewBookingRepository(client)
	users := repository.NewUserRepository(client)

	sessionRepo, closeDB := openSessionStore(ctx, cfg, log)
	defer closeDB()
	sessions := auth.NewManager(sessionRepo, users, cfg.SessionTTL, log)

	transport, err := newTransport(cfg, log)
	if err != nil {
		log.Fatal("Failed to create push transport", "transport", cfg.PushTransport, "error", err)
	}
	hub := push.NewHub(transport, log)
	go hub.Run(ctx)

	var mailer service.Mailer
	if m := service.NewSendgridMailer(cfg.SendgridAPIKey, cfg.SendgridFrom, cfg.SendgridFromName, log); m != nil {
		mailer = m
	}
	var texter service.Texter
	if t := service.NewTwilioTexter(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, log); t != nil {
		texter = t
	}
	sender := service.NewSenderService(mailer, texter, cfg.Location, log)

	pages := service.NewPageService(
		func(lotID string) availability.Subscription { return hub.Subscribe(lotID) },
		lots, pricing, bookings, sender, formOptions(cfg), log,
	)
	sessions.OnClose(func(s *auth.Session) {
		if n := pages.CloseForSession(s); n > 0 {
			log.Info("closed pages for ended session", "count", n)
		}
	})

	jobs := service.NewJobService(pages, sessions, cfg.PageIdleTimeout, log)
	c := cron.New()
	if err := jobs.Schedule(c, cfg.SweepSchedule, cfg.SessionPurgeSchedule); err != nil {
		log.Fatal("Failed to schedule jobs", "error", err)
	}
	c.Start()

	router := api.NewRouter(api.RouterDeps{
		Sessions:       sessions,
		SessionService: service.NewSessionService(users, sessions, cfg.DefaultLanguage, log),
		Pages:          pages,
		Bookings:       service.NewBookingService(bookings, log),
		Push:           hub,
		AllowedOrigins: cfg.AllowedOrigins,
		SecureCookie:   cfg.SecureCookies,
		Log:            log,
	})

	var h http.Handler = router
	if len(cfg.AllowedOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(cfg.AllowedOrigins),
			handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization", auth.SessionHeader}),
			handlers.AllowCredentials(),
		)(h)
	}
	h = handlers.CombinedLoggingHandler(os.Stdout, h)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		log.Info("Server running", "port", cfg.Port, "push_transport", cfg.PushTransport)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", "error", err)
	}
	<-c.Stop().Done()
	pages.CloseAll()
	log.Info("Server stopped")
}

// openSessionStore uses Postgres when DATABASE_URL is set and keeps sessions
// in memory otherwise.
func openSessionStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (repository.SessionRepository, func()) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, sessions are kept in memory")
		return repository.NewMemorySessionRepository(), func() {}
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to open DB", "error", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatal("Failed to connect to DB", "error", err)
	}
	if err := repository.EnsureSchema(pingCtx, db); err != nil {
		log.Fatal("Failed to prepare session schema", "error", err)
	}
	return repository.NewSessionRepository(db), func() { _ = db.Close() }
}

func newTransport(cfg *config.Config, log *logger.Logger) (push.Transport, error) {
	if cfg.PushTransport == config.PushTransportKafka {
		return push.NewKafkaTransport(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, cfg.ReconnectDelay, log)
	}
	return push.NewWebsocketTransport(cfg.SocketURL, cfg.ReconnectDelay, log), nil
}

func formOptions(cfg *config.Config) booking.Options {
	opts := booking.DefaultOptions()
	opts.Rules.MinDuration = cfg.MinBookingDuration
	opts.Rules.PastGrace = cfg.PastStartGrace
	opts.ServiceFee = cfg.ServiceFee
	opts.Debounce = cfg.PriceDebounce
	opts.RedirectDelay = cfg.RedirectDelay
	opts.RedirectTarget = cfg.RedirectTarget
	opts.Language = cfg.DefaultLanguage
	opts.Location = cfg.Location
	return opts
}
