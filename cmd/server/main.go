package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/gw-dg/palanam-latency/internal/api"
	"github.com/gw-dg/palanam-latency/internal/classifier"
	"github.com/gw-dg/palanam-latency/internal/config"
	"github.com/gw-dg/palanam-latency/internal/db"
	"github.com/gw-dg/palanam-latency/internal/events"
	"github.com/gw-dg/palanam-latency/internal/metrics"
	"github.com/gw-dg/palanam-latency/internal/protocol"
	"github.com/gw-dg/palanam-latency/internal/repository"
	"github.com/gw-dg/palanam-latency/internal/service"
	"github.com/gw-dg/palanam-latency/internal/storage"
	"github.com/gw-dg/palanam-latency/internal/tracing"
	"github.com/gw-dg/palanam-latency/internal/video"
	webrtchandler "github.com/gw-dg/palanam-latency/internal/webrtc"
	"github.com/gw-dg/palanam-latency/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	zlog.Info("starting video moderation service")

	if err := video.CheckInstallation(); err != nil {
		zlog.Fatal("ffmpeg not available", zap.Error(err))
	}
	if err := os.MkdirAll(cfg.TmpDir, 0755); err != nil {
		zlog.Fatal("failed to create tmp directory", zap.Error(err))
	}

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(context.Background(), cfg.OTLPEndpoint)
		if err != nil {
			zlog.Warn("tracing disabled, exporter init failed", zap.Error(err))
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				tp.Shutdown(ctx)
			}()
		}
	}

	// PostgreSQL keeps the session/detection audit trail.
	dbConn, err := db.ConnectPostgres(cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer dbConn.Close()
	sessionRepo := repository.NewSessionRepository(dbConn)

	// Optional flagged-detection fanout.
	var publisher service.DetectionPublisher
	if cfg.RabbitMQEnabled {
		pub, err := events.NewPublisher(events.Config{
			URL:        cfg.RabbitMQURL,
			Exchange:   cfg.RabbitMQExchange,
			Queue:      cfg.RabbitMQQueue,
			RoutingKey: cfg.RabbitMQRoutingKey,
		})
		if err != nil {
			zlog.Warn("rabbitmq unavailable, detection fanout disabled", zap.Error(err))
		} else {
			defer pub.Close()
			publisher = pub
		}
	}

	// Optional object-storage video source.
	var objectStore service.ObjectStore
	if cfg.MinIOEnabled {
		store, err := storage.NewStorage(storage.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			UseSSL:    cfg.MinIOUseSSL,
			Bucket:    cfg.MinIOBucket,
		})
		if err != nil {
			zlog.Warn("object storage unavailable", zap.Error(err))
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := store.EnsureBucket(ctx); err != nil {
				zlog.Warn("object storage bucket check failed", zap.Error(err))
			}
			cancel()
			objectStore = store
		}
	}

	// The classifier is probed once at startup. A dead endpoint degrades the
	// service (sessions stream an error and stop) instead of blocking boot.
	var cls classifier.Classifier
	classifierUp := false
	httpClassifier := classifier.NewHTTPClassifier(cfg.ClassifierAPIURL, cfg.ClassifierTimeout)
	probeCtx, cancelProbe := context.WithTimeout(context.Background(), cfg.ClassifierTimeout)
	if err := httpClassifier.Probe(probeCtx); err != nil {
		zlog.Warn("classifier unavailable, running degraded", zap.Error(err))
	} else {
		classifierUp = true
		if cfg.CacheEnabled {
			cls = classifier.NewCachedClassifier(httpClassifier, cfg.CacheSize)
		} else {
			cls = httpClassifier
		}
		zlog.Info("classifier ready", zap.String("url", cfg.ClassifierAPIURL))
	}
	cancelProbe()

	sessionService := service.NewSessionService(cfg, video.NewFFmpegOpener(), cls, sessionRepo, publisher, zlog)
	fetcher := service.NewFetcher(cfg.TmpDir, cfg.MaxUploadSize, cfg.FetchTimeout, objectStore, zlog)
	cleanup := service.NewTempCleanup(cfg.TmpDir, cfg, sessionService, zlog)
	proto := protocol.NewHandler(sessionService, cfg, zlog)
	streamHandler := webrtchandler.NewStreamHandler(proto, zlog)

	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()
	go cleanup.Start(cleanupCtx)

	metricsServer := metrics.StartMetricsServer(cfg.MetricsPort, zlog)

	handler := api.NewHandler(sessionService, fetcher, cleanup, proto, streamHandler, cfg, classifierUp, zlog)
	router := api.SetupRoutes(handler, zlog)
	server := api.NewHTTPServer(cfg, router)

	go func() {
		zlog.Info("server listening", zap.String("address", cfg.ServerAddress))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Live sessions release their resources before the listener stops; each
	// teardown waits for its scan task to acknowledge cancellation.
	sessionService.Shutdown()
	if err := server.Shutdown(ctx); err != nil {
		zlog.Error("server forced to shutdown", zap.Error(err))
	}
	metricsServer.Shutdown(ctx)

	zlog.Info("server exited gracefully")
}
