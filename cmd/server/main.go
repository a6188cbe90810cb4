package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"gitea.jw6.us/james/odoolink/internal/auth"
	"gitea.jw6.us/james/odoolink/internal/booking"
	"gitea.jw6.us/james/odoolink/internal/config"
	httpserver "gitea.jw6.us/james/odoolink/internal/http"
	"gitea.jw6.us/james/odoolink/internal/http/api"
	"gitea.jw6.us/james/odoolink/internal/store"
)

func main() {
	log.Println("Starting odoolink server...")
	env := config.EnvFromOS()
	cfg, err := config.Load(env)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	policy, err := booking.LoadPolicy(cfg.BookingPolicyPath)
	if err != nil {
		log.Fatalf("failed to load booking policy: %v", err)
	}

	if missing := config.MissingConnectionVars(env); len(missing) > 0 {
		log.Printf("[WARN] Odoo connection incomplete; CRM endpoints will fail until these are set: %v", missing)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var ledger *store.Store
	if cfg.DB.DSN != "" {
		pool, err := pgxpool.New(ctx, cfg.DB.DSN)
		if err != nil {
			log.Fatalf("failed to create db pool: %v", err)
		}
		defer pool.Close()

		if err := store.ApplyMigrations(ctx, pool); err != nil {
			log.Fatalf("failed to apply migrations: %v", err)
		}
		ledger = store.New(pool)
	} else {
		log.Println("[INFO] no database configured; submission ledger disabled")
	}

	operators, login, err := auth.FromConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize operator auth: %v", err)
	}
	if !operators.Enabled() {
		log.Println("[INFO] no operator credentials configured; debug endpoints are closed")
	}
	if login != nil {
		log.Println("[INFO] operator login enabled at /auth/login")
	}

	limits := httpserver.NewLimiters(cfg.TrustedProxies)
	defer limits.Stop()

	handler := api.NewHandler(env, policy, ledger, operators)
	r := httpserver.NewRouter(cfg, handler, ledger, operators, login, limits)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("server listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
