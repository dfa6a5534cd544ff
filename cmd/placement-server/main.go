package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mikepea/placement/pkg/placement/admin"
	"github.com/mikepea/placement/pkg/placement/apikeys"
	"github.com/mikepea/placement/pkg/placement/auth"
	"github.com/mikepea/placement/pkg/placement/config"
	"github.com/mikepea/placement/pkg/placement/database"
	"github.com/mikepea/placement/pkg/placement/drives"
	"github.com/mikepea/placement/pkg/placement/files"
	"github.com/mikepea/placement/pkg/placement/groups"
	"github.com/mikepea/placement/pkg/placement/messages"
	"github.com/mikepea/placement/pkg/placement/metrics"
	"github.com/mikepea/placement/pkg/placement/models"
	"github.com/mikepea/placement/pkg/placement/ratelimit"
	"github.com/mikepea/placement/pkg/placement/retention"
	"github.com/mikepea/placement/pkg/placement/transcript"
	"go.uber.org/zap"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly
	_ = godotenv.Load(".env")

	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := database.Connect(cfg.DBPath); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	db := database.GetDB()

	if err := models.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	if err := ensureAdminExists(); err != nil {
		log.Fatalf("Failed to ensure admin user exists: %v", err)
	}

	store, err := files.NewStore(cfg.UploadDir, cfg.MaxUpload)
	if err != nil {
		log.Fatalf("Failed to prepare upload directory: %v", err)
	}
	log.Printf("Storing attachments in %s (limit %s)", cfg.UploadDir, cfg.MaxUploadHuman())

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	m := metrics.New(db)

	purger, err := retention.NewPurger(db, store, logger.Named("retention"), cfg.RetentionCron, cfg.RetentionAge)
	if err != nil {
		log.Fatalf("Failed to configure retention: %v", err)
	}
	purger.OnPurge(m.AttachmentsPurged)
	purger.Start()
	defer purger.Stop()

	loginLimiter := ratelimit.NewPool(cfg.LoginRPS, cfg.LoginBurst)
	defer loginLimiter.Shutdown()

	r := gin.Default()
	r.Use(m.Middleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
	r.GET("/metrics", m.Handler())

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"service": "placement",
			})
		})

		// Auth routes (public, login and register are rate limited per client)
		authHandler := auth.NewHandler(db)
		authHandler.RegisterRoutes(api.Group("/auth"), ratelimit.Middleware(loginLimiter, m.LoginLimited))

		// Combined auth middleware (accepts JWT or API key)
		combinedAuth := apikeys.CombinedAuthMiddleware(db)

		// API keys routes (JWT only - need to be logged in to manage keys)
		apiKeysHandler := apikeys.NewHandler(db)
		apiKeysHandler.RegisterRoutes(api.Group("", auth.AuthMiddleware()))

		drivesHandler := drives.NewHandler(db)
		drivesHandler.RegisterRoutes(api.Group("/drives", combinedAuth))

		// Chat routes (protected - accepts JWT or API key)
		chatGroup := api.Group("/chat", combinedAuth)
		groups.NewHandler(db).RegisterRoutes(chatGroup)
		messages.NewHandler(db, store, m).RegisterRoutes(chatGroup)
		transcript.NewHandler(db).RegisterRoutes(chatGroup)

		// Admin routes (JWT only, admin role required)
		adminHandler := admin.NewHandler(db)
		adminGroup := api.Group("/admin")
		adminGroup.Use(auth.AuthMiddleware(), auth.RequireAdmin())
		adminHandler.RegisterRoutes(adminGroup)
	}

	// Attachment downloads (public, names are unguessable)
	files.NewHandler(db, store).RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Starting placement server on :%s (%s)", cfg.Port, cfg.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	// bounded so teardown cannot hang forever
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Warning: server shutdown: %v", err)
	}
	if err := database.Close(); err != nil {
		log.Printf("Warning: closing database: %v", err)
	}
}

// ensureAdminExists creates a default admin user if no admin exists in the database.
func ensureAdminExists() error {
	db := database.GetDB()

	var count int64
	if err := db.Model(&models.User{}).Where("system_role = ?", models.SystemRoleAdmin).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		return nil // Admin already exists
	}

	hashedPassword, err := auth.HashPassword("changeme")
	if err != nil {
		return err
	}

	adminUser := models.User{
		Email:        "admin@placement.local",
		Name:         "Admin",
		PasswordHash: hashedPassword,
		SystemRole:   models.SystemRoleAdmin,
	}

	if err := db.Create(&adminUser).Error; err != nil {
		return err
	}

	log.Printf("Created default admin user: admin@placement.local (password: changeme)")
	return nil
}
