package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tallybooks.org/internal/auth"
	"tallybooks.org/internal/billing"
	"tallybooks.org/internal/config"
	"tallybooks.org/internal/httpapi"
	"tallybooks.org/internal/obs"
	"tallybooks.org/internal/store/pg"
)

var version = "0.3.1"

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Without a DSN the server runs entirely in memory. Useful for local
	// development and demos; state is lost on restart.
	var (
		authStore    auth.Store
		billingStore billing.Store
		probe        httpapi.ReadyProbe
	)
	var db *pg.DB
	if cfg.PG.DSN != "" {
		db, err = pg.Open(cfg.PG.DSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		authStore = db.Auth()
		billingStore = db.Billing()
		probe = httpapi.ReadyProbe{DB: db.SQL()}
	} else {
		log.Print("no TALLY_PG_DSN set, using in-memory stores")
		authStore = auth.NewMemStore()
		billingStore = billing.NewMemStore()
	}

	signer, err := auth.NewTokenSigner(cfg.Auth.Secret, auth.WithTokenTTL(cfg.Auth.TokenTTL))
	if err != nil {
		log.Fatalf("token signer: %v", err)
	}
	cache := auth.NewDecisionCache(auth.WithCacheTTL(cfg.Auth.CacheTTL))

	authSvc, err := auth.NewService(authStore, signer, cache)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	rbacSvc, err := auth.NewRBACService(authStore, cache)
	if err != nil {
		log.Fatalf("rbac service: %v", err)
	}
	billingSvc, err := billing.NewService(billingStore)
	if err != nil {
		log.Fatalf("billing service: %v", err)
	}

	api := httpapi.New(authSvc, rbacSvc, billingSvc, probe, version,
		httpapi.WithSecureCookies(cfg.Auth.CookieSecure))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting tallybooks-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
