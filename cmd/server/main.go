package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/zestbet/live-engine/internal/bus"
	"github.com/zestbet/live-engine/internal/config"
	"github.com/zestbet/live-engine/internal/ledger"
	"github.com/zestbet/live-engine/internal/live"
	"github.com/zestbet/live-engine/internal/metrics"
	"github.com/zestbet/live-engine/internal/odds"
	"github.com/zestbet/live-engine/internal/room"
	"github.com/zestbet/live-engine/internal/store"
)

func main() {
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Store ---
	var st store.Store
	var cleanup []func()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
	}

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if rdb != nil {
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Ledger ---
	var lg ledger.Ledger
	if cfg.WalletURL != "" {
		lg = ledger.NewHTTPLedger(cfg.WalletURL)
		slog.Info("using wallet service", "url", cfg.WalletURL)
	} else {
		slog.Warn("WALLET_URL not set, using in-memory ledger")
		lg = ledger.NewMemoryLedger()
	}

	// --- Event bus ---
	b := bus.New()
	go b.RunHeartbeat(ctx, cfg.HeartbeatInterval)

	if rdb != nil {
		bridge := bus.NewRedisBridge(b, rdb)
		go bridge.Run(ctx)
		slog.Info("Redis event bridge enabled")
	}
	if cfg.KafkaBrokers != "" {
		mirror := bus.NewKafkaMirror(cfg.KafkaBrokers)
		cleanup = append(cleanup, mirror.Close)
		go mirror.Run(ctx, b)
		slog.Info("Kafka event mirror enabled", "brokers", cfg.KafkaBrokers)
	}

	// --- Rooms ---
	rooms := room.NewManager(odds.NewPressureEngine())
	go rooms.RunSweeper(ctx, cfg.RoomTTL, cfg.RoomSweepInterval)

	// --- Placement/settlement service ---
	svc := live.NewService(st, lg, rooms, b, live.Config{
		MinBet: cfg.MinBet,
		MaxBet: cfg.MaxBet,
	})
	go svc.RunEventForwarder(ctx)

	// --- WebSocket hub ---
	hub := live.NewHub(svc)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"live-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Long-lived connections stay outside the request timeout.

		// WebSocket endpoint for room join/bet/odds traffic.
		r.Get("/ws", hub.HandleWS)

		// Server-sent events feed for non-socket consumers.
		r.Get("/events/stream", svc.HandleEventStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			// Market management.
			r.Get("/markets", svc.HandleListMarkets)
			r.Post("/markets", svc.HandleCreateMarket)
			r.Post("/markets/{marketID}/settle", svc.HandleSettleMarket)
			r.Post("/markets/{marketID}/void", svc.HandleVoidMarket)

			// Wager placement.
			r.Post("/wagers", svc.HandlePlaceWager)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // streaming endpoints hold connections open
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("live-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down live-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("live-engine stopped")
}
