package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	imageproxyhandlers "Medigate/internal/api/handlers/imageproxy"
	videoproxyhandlers "Medigate/internal/api/handlers/videoproxy"
	"Medigate/internal/api/middleware"
	"Medigate/internal/api/routes"
	"Medigate/internal/core/cachestore"
	"Medigate/internal/core/dedupe"
	"Medigate/internal/core/imageproxy"
	"Medigate/internal/core/transcode"
	"Medigate/internal/core/upload"
	"Medigate/internal/core/videoproxy"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Cache store: Valkey when configured, in-process fallback otherwise.
	store := buildStore(ctx)

	// Upload storage is optional; the upload endpoint rejects persistence
	// when it is absent.
	uploader := buildUploader(ctx)

	coordinator := dedupe.New[cachestore.Envelope](dedupe.DefaultMaxAge)
	stopSweeper := coordinator.StartSweeper(dedupe.DefaultSweepInterval)
	defer stopSweeper()

	imageConfig := imageproxy.ConfigFromEnv()
	fetcher := imageproxy.NewOriginFetcher(imageConfig.FetchTimeout, imageConfig.MaxSourceSizeMB)
	transcoder := transcode.NewTranscoder()

	imageGateway, err := imageproxy.NewGateway(store, coordinator, fetcher, transcoder, imageConfig)
	if err != nil {
		slog.Error("[SERVER] failed to build image gateway", "error", err)
		os.Exit(1)
	}
	videoGateway := videoproxy.NewGateway(videoproxy.ConfigFromEnv())

	imageHandler := imageproxyhandlers.NewHandler(imageGateway, transcoder, uploader,
		int64(imageConfig.MaxSourceSizeMB)<<20)
	videoHandler := videoproxyhandlers.NewHandler(videoGateway, os.Getenv("PROXY_BASE_URL"))

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	rateLimiter := middleware.NewRateLimiter(envInt("RATE_LIMIT_PER_MINUTE", 300), time.Minute)
	stopCleanup := rateLimiter.StartCleanup()
	defer stopCleanup()

	r.Group(func(r chi.Router) {
		r.Use(rateLimiter.Middleware)
		routes.RegisterImageProxyRoutes(r, imageHandler)
		routes.RegisterVideoProxyRoutes(r, videoHandler)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("[SERVER] listening", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("[SERVER] listener failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("[SERVER] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("[SERVER] shutdown did not complete cleanly", "error", err)
	}
}

// buildStore connects to Valkey when VALKEY_ADDRESS is set, otherwise serves
// from an in-process store so the gateway stays usable in dev.
func buildStore(ctx context.Context) cachestore.Store {
	cfg := cachestore.Config{
		Address:  os.Getenv("VALKEY_ADDRESS"),
		Password: os.Getenv("VALKEY_PASSWORD"),
		DB:       envInt("VALKEY_DB", 0),
	}
	if cfg.Address == "" {
		slog.Info("[SERVER] no VALKEY_ADDRESS configured, using in-process cache")
		return cachestore.NewMemoryStore()
	}

	store, err := cachestore.Connect(ctx, cfg)
	if err != nil {
		slog.Error("[SERVER] failed to connect to cache engine, using in-process cache",
			"address", cfg.Address,
			"error", err,
		)
		return cachestore.NewMemoryStore()
	}
	slog.Info("[SERVER] connected to cache engine", "address", cfg.Address)
	return store
}

// buildUploader connects to object storage when S3_BUCKET is set.
func buildUploader(ctx context.Context) upload.Service {
	cfg := upload.Config{
		Bucket:        os.Getenv("S3_BUCKET"),
		Region:        os.Getenv("S3_REGION"),
		Endpoint:      os.Getenv("S3_ENDPOINT"),
		AccessKey:     os.Getenv("S3_ACCESS_KEY"),
		SecretKey:     os.Getenv("S3_SECRET_KEY"),
		PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),
	}
	if cfg.Bucket == "" {
		slog.Info("[SERVER] no S3_BUCKET configured, upload persistence disabled")
		return nil
	}

	svc, err := upload.Connect(ctx, cfg)
	if err != nil {
		slog.Error("[SERVER] failed to connect to object storage, upload persistence disabled",
			"bucket", cfg.Bucket,
			"error", err,
		)
		return nil
	}
	slog.Info("[SERVER] connected to object storage", "bucket", cfg.Bucket)
	return svc
}

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("[SERVER] invalid integer environment value, using default",
			"name", name,
			"value", v,
			"default", fallback,
		)
		return fallback
	}
	return n
}
