package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pdfsuite/gateway/internal/api"
	"github.com/pdfsuite/gateway/internal/config"
	"github.com/pdfsuite/gateway/internal/database"
	"github.com/pdfsuite/gateway/internal/meter"
	"github.com/pdfsuite/gateway/internal/plan"
	"github.com/pdfsuite/gateway/internal/proxy"
	"github.com/pdfsuite/gateway/internal/report"
	"github.com/pdfsuite/gateway/internal/supervisor"
)

func main() {
	config.Load()

	if err := plan.LoadLimits(config.Cfg.PlansPath); err != nil {
		log.Fatalf("Plan limits: %v", err)
	}

	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	// Boot the engine exactly once, before any route can reach it. A failed
	// boot is a warning: routes register regardless and the proxy reports
	// engine unavailability per request.
	engine := supervisor.New(supervisor.Options{
		Dir:       config.Cfg.EngineDir,
		Binary:    config.Cfg.EngineBinary,
		Port:      config.Cfg.EnginePort,
		BuildCmd:  config.Cfg.EngineBuildCmd,
		SkipBuild: config.Cfg.EngineSkipBuild,
	})
	if err := engine.Start(context.Background()); err != nil {
		log.Printf("WARNING: engine boot failed: %v", err)
	}

	summaryJob := report.Start()
	defer summaryJob.Stop()

	fwd := proxy.New(engine)

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	// Health (no auth)
	r.Get("/health", api.HealthCheck(engine))

	// Metered processing routes
	r.Route("/api/pdf", func(r chi.Router) {
		r.Use(meter.Gate)
		r.HandleFunc("/*", fwd.Metered)
	})

	// Auxiliary engine assets (previews, downloads): unmetered pass-through
	r.HandleFunc("/files/*", fwd.Passthrough)
	r.HandleFunc("/previews/*", fwd.Passthrough)

	// Admin API (dashboard-facing)
	r.Route("/admin", func(r chi.Router) {
		r.Use(api.AdminAuth)

		r.Get("/usage", api.GetUsage)
		r.Get("/operations", api.GetOperations)
		r.Get("/users/{id}/plan", api.GetUserPlan)
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: r,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("PDF gateway starting on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("WARNING: server shutdown: %v", err)
	}

	// The engine is a child process; stop it before we exit so nothing is
	// orphaned.
	engine.Stop()
	log.Println("PDF gateway stopped")
}
