package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/stayflow/guestgate/internal/domain"
	"github.com/stayflow/guestgate/internal/http/handlers"
	"github.com/stayflow/guestgate/internal/lockgateway"
	"github.com/stayflow/guestgate/internal/platform/mailer"
	"github.com/stayflow/guestgate/internal/ratelimit"
	"github.com/stayflow/guestgate/internal/repo/postgres"
	"github.com/stayflow/guestgate/internal/service"
	"github.com/stayflow/guestgate/pkg/config"
	"github.com/stayflow/guestgate/pkg/database"
	"github.com/stayflow/guestgate/pkg/events"
	"github.com/stayflow/guestgate/pkg/logger"
	mw "github.com/stayflow/guestgate/pkg/middleware"
)

func main() {
	godotenv.Load()
	cfg := config.Load()

	location, err := time.LoadLocation(cfg.Property.Timezone)
	if err != nil {
		logger.Error("Invalid property timezone", "timezone", cfg.Property.Timezone, "error", err)
		os.Exit(1)
	}

	roles, err := domain.NewRoleMap(cfg.LockAPI.PortalRoleName, cfg.LockAPI.UnitRoleName)
	if err != nil {
		logger.Error("Invalid door role configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database.URL, database.Options{
		MinConns:    cfg.Database.MinConns,
		MaxConns:    cfg.Database.MaxConns,
		MaxLifetime: cfg.Database.MaxLifetime,
	})
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	limiter := buildLimiter(cfg)

	// Repositories
	reservationRepo := postgres.NewReservationRepository(pool)
	guestRepo := postgres.NewGuestRepository(pool)
	auditRepo := postgres.NewAuditRepository(pool)
	lockConfigRepo := postgres.NewLockConfigRepository(pool)
	verifyRepo := postgres.NewVerifyRepository(pool)

	// Vendor client
	gateway := lockgateway.NewClient(lockgateway.Config{
		BaseURL:        cfg.LockAPI.BaseURL,
		Username:       cfg.LockAPI.Username,
		Password:       cfg.LockAPI.Password,
		Timeout:        cfg.LockAPI.Timeout,
		RequestsPerSec: cfg.LockAPI.RequestsPerSec,
		Burst:          cfg.LockAPI.Burst,
	})

	// Services
	eligibility := service.NewEligibilityService(reservationRepo, guestRepo, location,
		cfg.Property.DefaultCheckIn, cfg.Property.DefaultCheckOut)
	directory := service.NewDirectoryService(lockConfigRepo, roles)
	unlockSvc := service.NewUnlockService(limiter, eligibility, directory, gateway,
		auditRepo, reservationRepo, eventBus)
	accessSvc := service.NewAccessService(verifyRepo, guestRepo, buildMailer(cfg), eventBus, cfg)

	h := handlers.New(accessSvc, unlockSvc, limiter, cfg)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("guestgate"))
	r.Use(mw.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(mw.Health)
	r.Mount("/v1", h.Routes())

	// Expired access codes pile up otherwise.
	go purgeExpiredCodes(ctx, verifyRepo)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down guestgate service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Guestgate shutdown error", "error", err)
		}
	}()

	logger.Info("Starting guestgate service", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Guestgate service error", "error", err)
		os.Exit(1)
	}
}

// buildLimiter prefers Redis so budgets hold across instances, falling back
// to the in-process limiter when Redis is not configured.
func buildLimiter(cfg *config.Config) ratelimit.Limiter {
	budgets := map[string]ratelimit.Budget{
		ratelimit.ActionUnlock:        {Requests: cfg.RateLimit.UnlockRequests, Window: cfg.RateLimit.UnlockWindow},
		ratelimit.ActionAccessRequest: {Requests: cfg.RateLimit.AccessRequests, Window: cfg.RateLimit.AccessWindow},
	}

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Error("Invalid Redis URL, using in-memory rate limiter", "error", err)
		} else {
			if cfg.Redis.Password != "" {
				opts.Password = cfg.Redis.Password
			}
			opts.DB = cfg.Redis.DB
			return ratelimit.NewRedisLimiter(redis.NewClient(opts), budgets)
		}
	}

	mem := ratelimit.NewMemoryLimiter(budgets)
	mem.StartJanitor(context.Background(), 5*time.Minute)
	return mem
}

func buildMailer(cfg *config.Config) mailer.Service {
	if cfg.Email.DevMode || cfg.Email.MailerSendKey == "" {
		logger.Info("Email dev mode enabled, access codes will be logged")
		return mailer.NewDevMailer()
	}
	return mailer.NewMailer(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.FromEmail)
}

func purgeExpiredCodes(ctx context.Context, verify postgres.VerifyRepository) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := verify.DeleteExpired(ctx)
			if err != nil {
				logger.Error("Failed to purge expired access codes", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("Purged expired access codes", "count", n)
			}
		}
	}
}
