package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	grpchealth "google.golang.org/grpc/health"

	"github.com/alfredjeanlab/ssegateway/internal/archive"
	"github.com/alfredjeanlab/ssegateway/internal/auth"
	"github.com/alfredjeanlab/ssegateway/internal/config"
	"github.com/alfredjeanlab/ssegateway/internal/coordinator"
	"github.com/alfredjeanlab/ssegateway/internal/dashboard"
	"github.com/alfredjeanlab/ssegateway/internal/health"
	"github.com/alfredjeanlab/ssegateway/internal/registry"
	"github.com/alfredjeanlab/ssegateway/internal/router"
	"github.com/alfredjeanlab/ssegateway/internal/server"
	"github.com/alfredjeanlab/ssegateway/internal/source"
	"github.com/alfredjeanlab/ssegateway/internal/sse"
	"github.com/alfredjeanlab/ssegateway/internal/storage"
	memstorage "github.com/alfredjeanlab/ssegateway/internal/storage/memory"
	pgstorage "github.com/alfredjeanlab/ssegateway/internal/storage/postgres"
	redisstorage "github.com/alfredjeanlab/ssegateway/internal/storage/redis"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the SSE gateway (SSE listener, push API, and optional gRPC health listener)",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, storeCloser, err := buildStorage(cfg)
	if err != nil {
		return fmt.Errorf("build storage: %w", err)
	}
	defer storeCloser()

	reg := registry.New(cfg.MailboxCapacity, logger)

	var coord *coordinator.Coordinator
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		selfAddr := cfg.GatewayAddr
		if selfAddr == "" {
			selfAddr = "localhost:" + cfg.PushPort
		}
		coord = coordinator.New(redisClient, cfg.InstanceID, selfAddr, cfg.ChannelTTL, logger)
		reg.SetHooks(coordinator.NewRegistryHooks(coord, reg, cfg.ChannelTTL/3, logger))
	}

	rt := router.New(store, reg, logger)

	directPush := source.NewDirectPush()
	sources := []source.Source{directPush}

	if cfg.NATSURL != "" {
		sources = append(sources, source.NewNATSSource(cfg.NATSURL, cfg.NATSSubject, logger))
	}
	if cfg.RedisURL != "" {
		sources = append(sources, source.NewRedisSource(redisClient, cfg.RedisPubSubChannel, logger))
	}
	var gcpClient *pubsub.Client
	if cfg.GCPProjectID != "" && cfg.GCPSubscription != "" {
		ctx := context.Background()
		gcpClient, err = pubsub.NewClient(ctx, cfg.GCPProjectID)
		if err != nil {
			return fmt.Errorf("build gcp pubsub client: %w", err)
		}
		sources = append(sources, source.NewGCPPubSubSource(gcpClient, cfg.GCPSubscription, logger))
	}

	healthHandler := health.NewHandler(store)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src source.Source) {
			defer wg.Done()
			runSourceWithRetry(ctx, src, rt.Handle, logger)
		}(src)
	}
	healthHandler.MarkSourceStarted()

	go reg.RunHeartbeat(ctx, cfg.HeartbeatInterval)
	go reg.RunGC(ctx, cfg.CleanupInterval)

	if coord != nil {
		if err := coord.RegisterInstance(ctx, cfg.HeartbeatInterval); err != nil {
			logger.Warn("coordinator: register instance failed", "error", err)
		}
		go coord.RunHeartbeat(ctx, cfg.HeartbeatInterval)
	}

	var archiveScheduler *archive.Scheduler
	if cfg.ArchiveS3Bucket != "" && cfg.ArchiveInterval > 0 {
		dest, err := archive.NewS3Destination(ctx, cfg.ArchiveS3Bucket, cfg.ArchiveS3Region, cfg.ArchiveS3Endpoint)
		if err != nil {
			logger.Error("archive: failed to build S3 destination, archival disabled", "error", err)
		} else {
			archiveScheduler = archive.NewScheduler(store, reg, []archive.Destination{dest}, cfg.ArchiveInterval, cfg.ArchiveS3Prefix, logger)
			archiveScheduler.Start()
			logger.Info("archive scheduler started", "bucket", cfg.ArchiveS3Bucket, "interval", cfg.ArchiveInterval)
		}
	}

	authFunc := auth.Permissive()
	if cfg.AuthToken != "" {
		authFunc = auth.NewBearerToken(cfg.AuthToken)
	}
	sseHandler := sse.NewHandler(reg, store, cfg.InstanceID, sse.AuthFunc(authFunc), logger)

	sseMux := http.NewServeMux()
	sseMux.Handle("GET /sse/connect", sseHandler)
	sseMux.Handle("GET /health", healthHandler.Mux())
	sseMux.Handle("GET /ready", healthHandler.Mux())
	sseServer := &http.Server{Addr: ":" + cfg.Port, Handler: sseMux}

	pushAPI := coordinator.NewPushAPI(coord, reg, store, directPush, logger)
	pushMux := pushAPI.Mux()

	var pushHandler http.Handler = pushMux
	if cfg.EnableDashboard {
		dashHandler := dashboard.NewHandler(reg, cfg.InstanceID, coordinatorSnapshotFunc(coord), logger)
		pushHandler = fallbackMux(pushMux, dashHandler.Mux())
	}
	pushServer := &http.Server{Addr: ":" + cfg.PushPort, Handler: pushHandler}

	grpcServer, grpcHealthSrv := server.NewGRPCServer()
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		cancel()
		return fmt.Errorf("listen grpc: %w", err)
	}

	go func() {
		logger.Info("sse listener starting", "addr", sseServer.Addr)
		if err := sseServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("sse listener error", "error", err)
		}
	}()
	go func() {
		logger.Info("push api listener starting", "addr", pushServer.Addr)
		if err := pushServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("push api listener error", "error", err)
		}
	}()
	go func() {
		logger.Info("grpc health listener starting", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(grpcLis); err != nil {
			logger.Error("grpc listener error", "error", err)
		}
	}()
	go refreshGRPCHealth(ctx, grpcHealthSrv, healthHandler, 5*time.Second)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := sseServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("sse listener shutdown error", "error", err)
	}
	if err := pushServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("push api listener shutdown error", "error", err)
	}
	grpcServer.GracefulStop()

	if archiveScheduler != nil {
		archiveScheduler.Stop()
	}

	if coord != nil {
		deregisterCtx, deregisterCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := coord.DeregisterInstance(deregisterCtx); err != nil {
			logger.Warn("coordinator: deregister instance failed", "error", err)
		}
		deregisterCancel()
	}
	if redisClient != nil {
		redisClient.Close()
	}
	if gcpClient != nil {
		gcpClient.Close()
	}

	wg.Wait()
	logger.Info("shutdown complete")
	return nil
}

// buildStorage selects the storage.Storage backend named by
// STORAGE_BACKEND, returning it alongside a closer. Only the postgres
// closer releases anything (its database pool); the memory and redis
// closers are no-ops, so the redis backend's client is not closed.
func buildStorage(cfg *config.Config) (storage.Storage, func(), error) {
	switch cfg.StorageBackend {
	case "redis":
		store, err := redisstorage.NewFromURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case "postgres":
		store, err := pgstorage.New(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case "memory", "":
		return memstorage.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
}

// sourceBaseBackoff and sourceMaxBackoff bound the retry delay
// runSourceWithRetry applies between failed Start attempts (§4.3 failure
// policy: "retry with exponential backoff, capped").
const (
	sourceBaseBackoff = 500 * time.Millisecond
	sourceMaxBackoff  = 30 * time.Second
)

// runSourceWithRetry runs src.Start in a loop, restarting it with
// exponential backoff each time it returns an error, until ctx is
// cancelled. A clean return (ctx cancellation observed by the source)
// ends the loop without retrying. Existing connections are unaffected by
// a source failure: only future messages from that source are delayed.
func runSourceWithRetry(ctx context.Context, src source.Source, handler source.Handler, log *slog.Logger) {
	backoff := sourceBaseBackoff
	for {
		err := src.Start(ctx, handler)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			backoff = sourceBaseBackoff
			continue
		}

		log.Error("source stopped unexpectedly, retrying", "source", src.Name(), "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > sourceMaxBackoff {
			backoff = sourceMaxBackoff
		}
	}
}

// coordinatorSnapshotFunc adapts a possibly-nil Coordinator into the
// dashboard's CoordinatorSnapshot signature; a nil coordinator disables the
// cluster-wide panel rather than erroring on every refresh.
func coordinatorSnapshotFunc(coord *coordinator.Coordinator) dashboard.CoordinatorSnapshot {
	if coord == nil {
		return nil
	}
	return func() (instances, channels any, err error) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		insts, err := coord.ListInstances(ctx)
		if err != nil {
			return nil, nil, err
		}
		chans, err := coord.ListChannels(ctx)
		if err != nil {
			return nil, nil, err
		}
		return insts, chans, nil
	}
}

// refreshGRPCHealth keeps the introspection gRPC health service's overall
// status in sync with GET /ready on a fixed interval, since nothing drives
// it from an inbound request the way the HTTP handler is (internal/server
// doc comment).
func refreshGRPCHealth(ctx context.Context, healthSrv *grpchealth.Server, h *health.Handler, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			server.RefreshServingStatus(healthSrv, h.Ready(ctx))
		}
	}
}

// fallbackMux serves primary's route for any request primary has a
// registered pattern for, and secondary's otherwise. The push API and
// dashboard muxes register disjoint patterns on the same listener, and
// http.ServeMux offers no way to merge two independently-built muxes
// directly, so this tries primary's routing table first via Handler
// (which reports an empty pattern on a miss) and falls through.
func fallbackMux(primary, secondary *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, pattern := primary.Handler(r); pattern != "" {
			h.ServeHTTP(w, r)
			return
		}
		secondary.ServeHTTP(w, r)
	})
}
