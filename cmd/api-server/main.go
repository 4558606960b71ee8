package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/school-visit-booking/internal/api"
	"github.com/hackgods/school-visit-booking/internal/appointment"
	"github.com/hackgods/school-visit-booking/internal/config"
	"github.com/hackgods/school-visit-booking/internal/db"
	"github.com/hackgods/school-visit-booking/internal/feedback"
	"github.com/hackgods/school-visit-booking/internal/identity"
	"github.com/hackgods/school-visit-booking/internal/mail"
	"github.com/hackgods/school-visit-booking/internal/notification"
	redisclient "github.com/hackgods/school-visit-booking/internal/redis"
	"github.com/hackgods/school-visit-booking/internal/school"
)

var version = "dev"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s", cfg.Env, cfg.HTTPPort)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	migrateCtx, cancelMigrate := context.WithTimeout(rootCtx, 30*time.Second)
	err = db.Migrate(migrateCtx, pgPool)
	cancelMigrate()
	if err != nil {
		log.Fatalf("migration error: %v", err)
	}

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	sender := mail.NewSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	})

	dispatcher := notification.NewDispatcher(notification.NewPgRepository(pgPool), sender, cfg.ContactRecipient)
	users := identity.NewService(
		identity.NewPgRepository(pgPool),
		identity.NewIssuer(cfg.JWTSecret, cfg.TokenTTL),
		dispatcher,
		cfg.OTPTTL,
	)
	schools := school.NewService(school.NewPgRepository(pgPool))
	appointments := appointment.NewService(
		appointment.NewPgRepository(pgPool),
		dispatcher,
		schools,
		redisclient.NewRedisLocker(rdb, cfg.LockTTL),
	)
	reviews := feedback.NewService(feedback.NewPgRepository(pgPool))

	if err := bootstrap(rootCtx, cfg, schools, users); err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}

	limiter := api.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateBurst)
	defer limiter.Stop()

	router := api.NewRouter(api.RouterConfig{
		Identity:      users,
		Appointments:  appointments,
		Notifications: dispatcher,
		Schools:       schools,
		Feedback:      reviews,
		Postgres:      pgPool,
		Redis:         api.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		Limiter:       limiter,
		CORSOrigin:    cfg.CORSOrigin,
		Env:           cfg.Env,
		Version:       version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("http server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-rootCtx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Printf("http server error: %v", err)
		}
	}

	log.Println("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

// bootstrap loads the default schools into an empty table and makes sure an
// admin account exists.
func bootstrap(ctx context.Context, cfg config.Config, schools *school.Service, users *identity.Service) error {
	n, err := schools.SeedIfEmpty(ctx, school.Defaults)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Printf("seeded %d schools", n)
	}

	created, err := users.EnsureRole(ctx, identity.RegisterInput{
		Email:    cfg.AdminEmail,
		Role:     string(identity.RoleAdmin),
		Name:     "Admin",
		Password: cfg.AdminPassword,
	})
	if err != nil {
		return err
	}
	if created {
		log.Printf("seeded admin account email=%s", cfg.AdminEmail)
	}
	return nil
}
