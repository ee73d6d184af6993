package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rohitdahale/codebattle-backend/internal/config"
	"github.com/rohitdahale/codebattle-backend/internal/metrics"
	"github.com/rohitdahale/codebattle-backend/internal/repository/postgres"
	"github.com/rohitdahale/codebattle-backend/internal/repository/redis"
	"github.com/rohitdahale/codebattle-backend/internal/service/cleanup"
	"github.com/rohitdahale/codebattle-backend/internal/service/evaluator"
	"github.com/rohitdahale/codebattle-backend/internal/service/match"
	"github.com/rohitdahale/codebattle-backend/internal/service/problem"
	"github.com/rohitdahale/codebattle-backend/internal/service/result"
	transportHttp "github.com/rohitdahale/codebattle-backend/internal/transport/http"
	"github.com/rohitdahale/codebattle-backend/internal/transport/websocket"
	"github.com/rohitdahale/codebattle-backend/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../.env"); err != nil {
			log.Println("No .env file found")
		}
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	zlog, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Persistence
	db, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetimeMin)
	if err != nil {
		zlog.Fatal("Database unavailable", zap.Error(err))
	}
	defer db.Close()
	zlog.Info("Database ready, migrations applied")

	matchRepo := postgres.NewMatchRepo(db)
	recorder := result.NewRecorder(matchRepo, zlog)

	// 2. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	stats := metrics.New(registry)

	// 3. Event delivery. Redis is optional: without it room codes are only
	// unique within this instance and events are not mirrored.
	connManager := websocket.NewConnectionManager(zlog)
	notifier := match.Fanout{connManager}

	var (
		registryOpt []match.Option
		roomCodes   *redis.RoomRegistry
		publisher   *redis.EventPublisher
	)
	if cfg.RedisURL != "" {
		client, err := redis.Connect(ctx, cfg.RedisURL, cfg.RedisPassword)
		if err != nil {
			zlog.Warn("Redis unavailable, continuing without it", zap.Error(err))
		} else {
			defer client.Close()
			roomCodes = redis.NewRoomRegistry(client, cfg.RoomCodeTTL(), cfg.InstanceID)
			publisher = redis.NewEventPublisher(client, cfg.EventBufferSize, zlog)
			notifier = append(notifier, publisher)
			registryOpt = append(registryOpt, match.WithCodeRegistry(roomCodes))
			zlog.Info("Redis connected", zap.String("instance", cfg.InstanceID))
		}
	}

	// 4. Services
	bank, err := problem.Default()
	if err != nil {
		zlog.Fatal("Failed to load problems", zap.Error(err))
	}
	scorer := evaluator.NewScorer(cfg.ExecutorURL, cfg.ExecutorTimeout(), zlog)
	if !scorer.Healthy(ctx) {
		zlog.Warn("Code executor unreachable, scores fall back to static analysis", zap.String("url", cfg.ExecutorURL))
	}
	eval := evaluator.NewGuard(scorer, cfg.EvaluationTimeout(), stats, zlog)

	engine := match.NewOrchestrator(match.Config{
		TimeLimit:         cfg.MatchTimeLimit(),
		RecycleDelay:      cfg.RoomRecycleDelay(),
		QueueAutoStart:    cfg.QueueAutoStart(),
		EvaluationTimeout: cfg.EvaluationTimeout(),
	}, zlog, notifier, eval, recorder, bank, append(registryOpt, match.WithMetrics(stats))...)

	var refresher cleanup.CodeRefresher
	if roomCodes != nil {
		refresher = roomCodes
	}
	cleanupWorker := cleanup.NewWorker(engine, refresher, cfg.CleanupInterval(), zlog)

	// 5. Transport
	wsHandler := websocket.NewHandler(connManager, engine, cfg.JWTSecret, originChecker(cfg.AllowedOrigins), zlog)
	router := transportHttp.NewRouter(transportHttp.RouterConfig{
		Matches:        transportHttp.NewMatchHandler(engine, connManager, zlog),
		Problems:       transportHttp.NewProblemHandler(bank),
		Players:        transportHttp.NewPlayerHandler(matchRepo, zlog),
		WebSocket:      wsHandler.HandleWebSocket,
		Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Secret:         cfg.JWTSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		Log:            zlog,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cleanupWorker.Run(gctx)
		return nil
	})
	if publisher != nil {
		stats.TrackDroppedEvents(publisher.Dropped)
		g.Go(func() error {
			publisher.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		zlog.Info("Server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zlog.Info("Server is shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zlog.Error("Server stopped with error", zap.Error(err))
		return
	}
	zlog.Info("Server exited gracefully")
}

// originChecker admits WebSocket upgrades from the allowed origins and from
// clients that send no Origin header.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == origin {
				return true
			}
		}
		return false
	}
}
