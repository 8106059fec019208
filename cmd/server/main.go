package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/heritago/backend/internal/config"
	"github.com/heritago/backend/internal/database"
	"github.com/heritago/backend/internal/handlers"
	"github.com/heritago/backend/internal/middleware"
	"github.com/heritago/backend/internal/services"
	"github.com/heritago/backend/pkg/cron"
	"github.com/heritago/backend/pkg/logger"
	"github.com/heritago/backend/pkg/utils"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	var sender services.Sender
	if cfg.SMTP.Host != "" {
		sender = services.NewSMTPSender(cfg.SMTP)
	} else {
		logger.Warn("smtp_not_configured", map[string]interface{}{
			"mode": "log-only notifications",
		})
		sender = services.LogSender{}
	}
	notifier := services.NewQueuedNotifier(sender)

	authzService := services.NewAuthzService(db)
	familyService := services.NewFamilyService(db, authzService, notifier)
	invitationService := services.NewInvitationService(db, authzService, notifier, cfg.Invites.RequireFamilyAdmin)
	publicationService := services.NewPublicationService(db, authzService, notifier)

	authHandler := handlers.NewAuthHandler(db, invitationService)
	familiesHandler := handlers.NewFamiliesHandler(db, familyService, authzService)
	invitationsHandler := handlers.NewInvitationsHandler(db, invitationService, authzService)
	contentsHandler := handlers.NewContentsHandler(db, authzService)
	publicationsHandler := handlers.NewPublicationsHandler(db, publicationService, authzService)

	authMiddleware := middleware.NewAuthMiddleware(db)

	sweeper := cron.Start(cfg.Invites.SweepSchedule, invitationService)

	app := fiber.New(fiber.Config{BodyLimit: 10 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)

	familyRoutes := api.Group("/families", authMiddleware.RequireAuth)
	familyRoutes.Post("/", familiesHandler.Create)
	familyRoutes.Get("/", familiesHandler.List)
	familyRoutes.Get("/:id", familiesHandler.Get)
	familyRoutes.Post("/:id/members", familiesHandler.AddMember)
	familyRoutes.Put("/:id/members/:memberId", familiesHandler.ChangeRole)
	familyRoutes.Post("/:id/invitations", invitationsHandler.Create)
	familyRoutes.Get("/:id/invitations", invitationsHandler.ListForFamily)
	familyRoutes.Get("/:id/contents", contentsHandler.ListForFamily)
	familyRoutes.Get("/:id/publication-requests", publicationsHandler.ListForFamily)

	api.Get("/invitations/validate", invitationsHandler.Validate)
	invitationRoutes := api.Group("/invitations", authMiddleware.RequireAuth)
	invitationRoutes.Post("/:id/accept", invitationsHandler.Accept)
	invitationRoutes.Post("/:id/refuse", invitationsHandler.Refuse)

	api.Get("/public/contents", contentsHandler.ListPublic)

	api.Get("/contents/:id", authMiddleware.OptionalAuth, contentsHandler.Get)
	contentRoutes := api.Group("/contents", authMiddleware.RequireAuth)
	contentRoutes.Post("/", contentsHandler.Create)
	contentRoutes.Post("/:id/publication-requests", publicationsHandler.Request)

	publicationRoutes := api.Group("/publication-requests", authMiddleware.RequireAuth, middleware.SuperadminOnly)
	publicationRoutes.Get("/", publicationsHandler.ListPending)
	publicationRoutes.Post("/:id/approve", publicationsHandler.Approve)
	publicationRoutes.Post("/:id/reject", publicationsHandler.Reject)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		sweeper.Stop()
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
