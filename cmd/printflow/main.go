package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printflow/internal/api/handlers"
	"github.com/orrn/printflow/internal/api/middleware"
	"github.com/orrn/printflow/internal/config"
	"github.com/orrn/printflow/internal/core"
	"github.com/orrn/printflow/internal/db"
	"github.com/orrn/printflow/internal/notify"
	"github.com/orrn/printflow/internal/render"
	"github.com/orrn/printflow/internal/transport"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	store, err := db.Open(db.Config{Path: cfg.Database.Path})
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	agent := transport.NewAgentClient(cfg.Agent)
	renderer := render.NewTemplateRenderer(store.Templates)

	notifier := notify.NewSender(cfg.Notify)
	notifier.Start()
	defer notifier.Stop()

	registry := core.NewRegistry(store)
	engine := core.NewEngine(store, registry, agent, renderer, notifier, &cfg.Engine)

	drainer := core.NewDrainer(store, engine, &cfg.Drainer)
	drainer.Start()
	defer drainer.Stop()

	identity, err := middleware.NewIdentityMiddleware(store.Settings)
	if err != nil {
		log.Fatalf("failed to initialize identity middleware: %v", err)
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	router.Use(middleware.RequestID())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := router.Group("/api/v1/auth")
	auth.POST("/setup", identity.SetupHandler)
	auth.POST("/login", identity.LoginHandler)

	api := router.Group("/api/v1")
	api.Use(identity.RequireAuth())

	handlers.NewJobHandler(store, engine).RegisterRoutes(api)
	handlers.NewPrinterHandler(store, registry, drainer, agent).RegisterRoutes(api)
	handlers.NewTemplateHandler(store).RegisterRoutes(api)
	handlers.NewDrainHandler(store, drainer).RegisterRoutes(api)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("[main] listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("[main] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] forced shutdown: %v", err)
	}
}
