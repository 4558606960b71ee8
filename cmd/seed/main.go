package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/hackgods/school-visit-booking/internal/config"
	"github.com/hackgods/school-visit-booking/internal/db"
	"github.com/hackgods/school-visit-booking/internal/identity"
	"github.com/hackgods/school-visit-booking/internal/mail"
	"github.com/hackgods/school-visit-booking/internal/notification"
	"github.com/hackgods/school-visit-booking/internal/school"
)

const (
	seedPassword = "abcd1234"
	fakeVisitors = 200
	fakeGuides   = 20
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	schools := school.NewService(school.NewPgRepository(pool))
	dispatcher := notification.NewDispatcher(notification.NewPgRepository(pool), mail.LogSender{}, cfg.ContactRecipient)
	users := identity.NewService(
		identity.NewPgRepository(pool),
		identity.NewIssuer(cfg.JWTSecret, cfg.TokenTTL),
		dispatcher,
		cfg.OTPTTL,
	)

	if n, err := schools.SeedIfEmpty(ctx, school.Defaults); err != nil {
		log.Fatalf("seed schools: %v", err)
	} else if n > 0 {
		log.Printf("seeded %d schools", n)
	}

	list, err := schools.List(ctx)
	if err != nil {
		log.Fatalf("list schools: %v", err)
	}
	if len(list) == 0 {
		log.Fatal("no schools to attach visitors to")
	}

	if err := seedFixedUsers(ctx, cfg, users, list[0]); err != nil {
		log.Fatalf("seed fixed users: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedFakeUsers(ctx, users, identity.RoleVisitor, fakeVisitors, list); err != nil {
		log.Fatalf("seed visitors: %v", err)
	}
	if err := seedFakeUsers(ctx, users, identity.RoleGuide, fakeGuides, nil); err != nil {
		log.Fatalf("seed guides: %v", err)
	}

	log.Println("seed complete")
}

// seedFixedUsers creates the well-known accounts, each only when its role has
// nobody yet.
func seedFixedUsers(ctx context.Context, cfg config.Config, users *identity.Service, home school.School) error {
	fixed := []identity.RegisterInput{
		{Email: cfg.AdminEmail, Role: string(identity.RoleAdmin), Name: "Admin", Password: cfg.AdminPassword},
		{Email: "visitor@example.com", Role: string(identity.RoleVisitor), Name: "Visitor", SchoolID: &home.ID, Password: seedPassword},
		{Email: "guide@example.com", Role: string(identity.RoleGuide), Name: "Guide", Password: seedPassword},
	}
	for _, in := range fixed {
		created, err := users.EnsureRole(ctx, in)
		if err != nil {
			return err
		}
		if created {
			log.Printf("created %s account email=%s", in.Role, in.Email)
		}
	}
	return nil
}

// seedFakeUsers adds count users with role. Visitors get a random school from
// schools. Emails gofakeit repeats are skipped.
func seedFakeUsers(ctx context.Context, users *identity.Service, role identity.Role, count int, schools []school.School) error {
	log.Printf("seeding %d %ss", count, role)

	created := 0
	for i := 0; i < count; i++ {
		in := identity.RegisterInput{
			Email:    gofakeit.Email(),
			Role:     string(role),
			Name:     gofakeit.Name(),
			Password: seedPassword,
		}
		if len(schools) > 0 {
			id := schools[gofakeit.Number(0, len(schools)-1)].ID
			in.SchoolID = &id
		}

		if _, err := users.Provision(ctx, in); err != nil {
			if errors.Is(err, identity.ErrDuplicateEmail) {
				continue
			}
			return err
		}
		created++
	}

	log.Printf("%ss seeded: %d/%d", role, created, count)
	return nil
}
