package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orgcore.org/internal/authz"
	"orgcore.org/internal/config"
	"orgcore.org/internal/dispatch"
	"orgcore.org/internal/event"
	"orgcore.org/internal/httpapi"
	"orgcore.org/internal/notify"
	"orgcore.org/internal/obs"
	"orgcore.org/internal/projection"
	"orgcore.org/internal/session"
	pgstore "orgcore.org/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	if cfg.AuthSecret == "" {
		log.Println("warning: ORGCORE_AUTH_SECRET is not set; session tokens cannot be issued or verified")
	}

	ctx := context.Background()
	shutdownTracing, err := obs.SetupTracing(ctx, "orgcore-api", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}

	// Stores: Postgres when a DSN is configured, in-memory otherwise.
	var (
		events event.Store
		proj   projection.Store
		ready  httpapi.ReadyProbe
		pg     *pgstore.Store
	)
	if cfg.PGDSN != "" {
		pg, err = pgstore.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		events = pg.Events()
		proj = pg.Projections()
		ready = httpapi.ReadyProbe{DB: pg.DB()}
	} else {
		events = event.NewInMemory()
		proj = projection.NewInMemory()
	}

	var sessions session.Cache
	if cfg.RedisAddr != "" {
		rc, err := session.NewRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		sessions = rc
	} else {
		sessions = session.NewMemory()
	}

	hub := notify.NewHub()
	router := dispatch.NewRouter(events, proj, dispatch.WithNotifier(hub))
	if err := router.CheckRoutes(); err != nil {
		log.Fatalf("route registry: %v", err)
	}
	emitter := event.NewEmitter(events, router)

	engine, err := authz.NewEngine(proj)
	if err != nil {
		log.Fatalf("authz: %v", err)
	}

	api := httpapi.New(httpapi.Deps{
		Emitter:      emitter,
		Events:       events,
		Router:       router,
		Projection:   proj,
		Engine:       engine,
		Hub:          hub,
		Sessions:     sessions,
		Ready:        ready,
		Version:      version,
		SessionTTL:   cfg.SessionTTL,
		RateBurst:    cfg.RateBurst,
		RatePerSec:   cfg.RatePerSec,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcSrv, stopHealth := httpapi.NewGRPCServer(ready)

	log.Printf("Starting orgcore-api %s on %s (grpc %s)", version, cfg.HTTPAddr, cfg.GRPCAddr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()
	go func() {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		if err := grpcSrv.Serve(lis); err != nil {
			log.Fatalf("grpc serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	stopHealth()
	grpcSrv.GracefulStop()
	_ = shutdownTracing(shutdownCtx)
	if pg != nil {
		_ = pg.Close()
	}
	log.Println("Stopped")
}
