package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/verding/verding/internal/auth"
	"github.com/verding/verding/internal/config"
	"github.com/verding/verding/internal/database"
	"github.com/verding/verding/internal/handler"
	"github.com/verding/verding/internal/queue"
	"github.com/verding/verding/internal/rbac"
	"github.com/verding/verding/internal/repository"
	"github.com/verding/verding/internal/router"
	"github.com/verding/verding/internal/service"
)

// cleanupInterval drives the background sweep of overdue invitations.
// Lazy expiry already covers tokens that get presented; the sweep keeps
// listings honest for the ones that never do.
const cleanupInterval = time.Hour

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	// The permission matrix is hand-maintained; refuse to serve with holes
	// in it.
	if err := rbac.ValidateConfiguration(); err != nil {
		log.Fatal(err)
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret,
		time.Duration(cfg.AccessTTLMin)*time.Minute,
		time.Duration(cfg.RefreshTTLDays)*24*time.Hour)
	if err != nil {
		log.Fatal(err)
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBSSLMode)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable; rate limiting and session persistence disabled")
	}

	userRepo := repository.NewUserRepo(db)
	profileRepo := repository.NewProfileRepo(db)
	propertyRepo := repository.NewPropertyRepo(db)
	accessRepo := repository.NewAccessRepo(db)
	invitationRepo := repository.NewInvitationRepo(db)
	sessionRepo := repository.NewSessionRepo(rdb)

	brokerURL := os.Getenv("RABBITMQ_URL")
	if brokerURL == "" {
		brokerURL = os.Getenv("AMQP_URL")
	}
	events := queue.NewPublisher(brokerURL)

	identity := service.NewIdentityService(userRepo, profileRepo, accessRepo, sessionRepo)
	invitations := service.NewInvitationService(invitationRepo, userRepo, profileRepo, accessRepo, events, cfg.BcryptCost)
	invitations.DefaultTTL = time.Duration(cfg.InviteTTLHours) * time.Hour
	properties := service.NewPropertyService(propertyRepo, accessRepo, sessionRepo, events)

	go func() {
		if err := queue.StartNotificationConsumer(brokerURL); err != nil {
			log.Printf("notification consumer stopped: %v", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if n, err := invitations.CleanupExpired(ctx); err != nil {
				log.Printf("invitation cleanup: %v", err)
			} else if n > 0 {
				log.Printf("invitation cleanup: expired %d invitations", n)
			}
			cancel()
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	router.Register(e, router.Deps{
		Tokens:        tokens,
		Identity:      identity,
		Auth:          handler.NewAuthHandler(userRepo, profileRepo, identity, tokens, cfg.BcryptCost),
		Invitations:   handler.NewInvitationHandler(invitations, identity, tokens),
		Properties:    handler.NewPropertyHandler(properties),
		Roles:         handler.NewRoleHandler(),
		PropertyOwner: accessRepo.OwnerID,
		RateLimit:     config.LoadRateLimitConfig(),
		Redis:         rdb,
	})

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
