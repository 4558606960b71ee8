package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hackgods/school-visit-booking/internal/appointment"
	"github.com/hackgods/school-visit-booking/internal/config"
	"github.com/hackgods/school-visit-booking/internal/db"
	"github.com/hackgods/school-visit-booking/internal/mail"
	"github.com/hackgods/school-visit-booking/internal/notification"
	redisclient "github.com/hackgods/school-visit-booking/internal/redis"
	"github.com/hackgods/school-visit-booking/internal/school"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("completion-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running completion worker in env=%s interval=%s", cfg.Env, cfg.WorkerInterval)

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
	svc := appointment.NewService(
		appointment.NewPgRepository(pgPool),
		notification.NewDispatcher(notification.NewPgRepository(pgPool), sender, cfg.ContactRecipient),
		school.NewService(school.NewPgRepository(pgPool)),
		redisclient.NewRedisLocker(rdb, cfg.LockTTL),
	)

	// Run once at startup
	runOnce(rootCtx, svc)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	schedule := "@every " + cfg.WorkerInterval.String()
	if _, err := c.AddFunc(schedule, func() { runOnce(rootCtx, svc) }); err != nil {
		log.Fatalf("schedule completion run: %v", err)
	}
	c.Start()
	log.Printf("completion worker scheduled schedule=%q", schedule)

	<-rootCtx.Done()
	log.Println("shutdown signal received, stopping completion worker")
	<-c.Stop().Done()
}

func runOnce(ctx context.Context, svc *appointment.Service) {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.CompletePastAppointments(runCtx)
	if err != nil {
		log.Printf("completion run error: %v", err)
		return
	}
	log.Printf("completion run complete completed=%d duration=%s", n, time.Since(start))
}
