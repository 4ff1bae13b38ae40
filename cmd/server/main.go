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
	"github.com/redis/go-redis/v9"

	"github.com/peerloop/marketplace/internal/auth"
	"github.com/peerloop/marketplace/internal/config"
	"github.com/peerloop/marketplace/internal/listener"
	"github.com/peerloop/marketplace/internal/market"
	"github.com/peerloop/marketplace/internal/metrics"
	"github.com/peerloop/marketplace/internal/notify"
	"github.com/peerloop/marketplace/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(".")
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
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

	// --- WebSocket hub ---
	hub := market.NewHub()
	go hub.Run()

	// --- Notification fan-out ---
	notifiers := notify.Multi{hub}
	if cfg.RabbitMQURL != "" {
		pub, err := notify.NewAMQPPublisher(cfg.RabbitMQURL, cfg.EventExchange, cfg.EventRoutingKey)
		if err != nil {
			slog.Error("rabbitmq connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pub.Close)
		notifiers = append(notifiers, pub)
		slog.Info("RabbitMQ event publishing enabled", "exchange", cfg.EventExchange)
	}

	// --- Services ---
	authSvc := auth.NewService(st, []byte(cfg.JWTSecret), cfg.TokenTTL)
	marketSvc := market.NewService(st, notifiers, cfg.RPCURL)

	// --- Contract event relay ---
	stopRelay := listener.StartRelay(context.Background(), listener.Config{
		RPCURL:          cfg.RPCURL,
		ContractAddress: cfg.ContractAddress,
		PollInterval:    cfg.PollInterval,
		Backoff:         cfg.PollBackoff,
		Lookback:        cfg.LookbackBlocks,
		DedupeCapacity:  cfg.DedupeCacheSize,
	}, notifiers)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
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
		w.Write([]byte(`{"status":"ok","service":"marketplace"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// WebSocket endpoint for real-time product updates.
		r.Get("/ws", hub.HandleWS)

		// Authentication.
		r.Post("/auth/register", authSvc.Register)
		r.Post("/auth/login", authSvc.Login)
		r.Post("/auth/metamask", authSvc.Wallet)

		// Public catalog.
		r.Get("/products", marketSvc.ListProducts)
		r.Get("/products/{productID}", marketSvc.GetProduct)
		r.Get("/users/{userID}/products", marketSvc.SellerProducts)
		r.Get("/config/rpc-url", marketSvc.RPCConfig)

		// Authenticated operations.
		r.Group(func(r chi.Router) {
			r.Use(authSvc.Middleware)

			r.Post("/products", marketSvc.CreateProduct)
			r.Post("/products/{productID}/buy", marketSvc.BuyProduct)
			r.Delete("/products/{productID}", marketSvc.DeleteProduct)

			r.Get("/users/cart", marketSvc.GetCart)
			r.Post("/users/cart/{productID}", marketSvc.AddToCart)
			r.Delete("/users/cart/{productID}", marketSvc.RemoveFromCart)

			r.Get("/users/me/listings", marketSvc.MyListings)
			r.Get("/users/me/sold", marketSvc.MySold)
			r.Get("/users/me/purchased", marketSvc.MyPurchases)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("marketplace listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down marketplace...")
	stopRelay()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("marketplace stopped")
}
