package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"shodh/internal/backend"
	"shodh/internal/common/cache"
	"shodh/internal/common/db"
	"shodh/internal/common/http/middleware"
	"shodh/internal/common/mq"
	"shodh/internal/common/ratelimit"
	"shodh/internal/contest/catalog"
	contestcontroller "shodh/internal/contest/controller"
	"shodh/internal/contest/joinstore"
	contestservice "shodh/internal/contest/service"
	"shodh/internal/push"
	submissioncontroller "shodh/internal/submission/controller"
	submissionservice "shodh/internal/submission/service"
	"shodh/pkg/utils/logger"
	"shodh/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultConfigPath = "configs/contest-web.yaml"

type services struct {
	contests    *contestservice.ContestService
	submissions *submissionservice.SubmissionService
	hub         *push.Hub
	joinSession gin.HandlerFunc
	limiter     middleware.Limiter
}

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load env file failed: %v\n", err)
		return
	}
	appCfg, err := loadAppConfig(*configPath, os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "contest-web stopped", zap.Error(err))
	}
}

func run(appCfg *AppConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var redisCache *cache.RedisCache
	if appCfg.needsRedis() {
		var err error
		redisCache, err = cache.NewRedisCacheWithConfig(&appCfg.Redis)
		if err != nil {
			return fmt.Errorf("init redis failed: %w", err)
		}
		defer func() {
			_ = redisCache.Close()
		}()
	}

	var mysqlDB *db.MySQL
	if appCfg.JoinStore.Type == joinstore.TypeMySQL {
		var err error
		mysqlDB, err = db.NewMySQLWithConfig(&appCfg.MySQL)
		if err != nil {
			return fmt.Errorf("init mysql failed: %w", err)
		}
		defer func() {
			_ = mysqlDB.Close()
		}()
	}

	var kafkaQueue *mq.KafkaQueue
	if appCfg.Push.Source.Type == push.SourceKafka {
		var err error
		kafkaQueue, err = mq.NewKafkaQueue(appCfg.Kafka)
		if err != nil {
			return fmt.Errorf("init kafka failed: %w", err)
		}
		defer func() {
			_ = kafkaQueue.Close()
		}()
	}

	hub := push.NewHub(appCfg.Push.Hub)
	source := buildSource(appCfg.Push.Source, hub, redisCache, kafkaQueue)

	svc, err := buildServices(ctx, appCfg, hub, source, redisCache, mysqlDB)
	if err != nil {
		return err
	}
	httpServer := buildHTTPServer(appCfg, svc)

	sourceCtx, stopSource := context.WithCancel(context.Background())
	defer stopSource()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info(context.Background(), "contest-web http server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.String("join_store", appCfg.JoinStore.Type),
			zap.String("push_source", source.Name()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := source.Run(sourceCtx, hub); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("push source %s failed: %w", source.Name(), err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(context.Background(), "shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), appCfg.Server.ShutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		hub.Close()
		stopSource()
		if err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func buildSource(cfg push.SourceConfig, hub *push.Hub, redisCache *cache.RedisCache, kafkaQueue *mq.KafkaQueue) push.Source {
	switch cfg.Type {
	case push.SourceRedis:
		return push.NewRedisSource(redisCache, cfg.RedisChannel)
	case push.SourceKafka:
		return push.NewKafkaSource(kafkaQueue, kafkaQueue, cfg.KafkaTopic, cfg.RelayTopic, cfg.ConsumerGroup)
	default:
		return push.NewRelaySource(hub)
	}
}

func buildJoinStore(ctx context.Context, cfg joinstore.Config, redisCache *cache.RedisCache, mysqlDB *db.MySQL) (joinstore.Store, gin.HandlerFunc, error) {
	switch cfg.Type {
	case joinstore.TypeCookie:
		store, err := joinstore.NewCookieStore(cfg.Cookie)
		if err != nil {
			return nil, nil, fmt.Errorf("init cookie join store failed: %w", err)
		}
		return store, store.Middleware(), nil
	case joinstore.TypeRedis:
		return joinstore.NewRedisStore(redisCache, cfg.KeyPrefix), nil, nil
	case joinstore.TypeMySQL:
		store := joinstore.NewMySQLStore(mysqlDB)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure join schema failed: %w", err)
		}
		return store, nil, nil
	default:
		return joinstore.NewMemoryStore(), nil, nil
	}
}

func buildServices(ctx context.Context, appCfg *AppConfig, hub *push.Hub, source push.Source, redisCache *cache.RedisCache, mysqlDB *db.MySQL) (services, error) {
	cat, err := catalog.Load(appCfg.Catalog.FixturesPath)
	if err != nil {
		return services{}, fmt.Errorf("load catalog failed: %w", err)
	}
	joins, joinSession, err := buildJoinStore(ctx, appCfg.JoinStore, redisCache, mysqlDB)
	if err != nil {
		return services{}, err
	}
	backendClient, err := backend.New(appCfg.Backend.Config)
	if err != nil {
		return services{}, fmt.Errorf("init backend client failed: %w", err)
	}

	contests, err := contestservice.NewContestService(contestservice.Config{
		Catalog:  cat,
		Joins:    joins,
		Backend:  backendClient,
		Fallback: appCfg.Backend.Fallback.Leaderboard,
	})
	if err != nil {
		return services{}, fmt.Errorf("init contest service failed: %w", err)
	}
	submissions, err := submissionservice.NewSubmissionService(submissionservice.Config{
		Backend:      backendClient,
		Publisher:    source,
		Fallback:     appCfg.Backend.Fallback.Submissions,
		MaxCodeBytes: appCfg.Submission.MaxCodeBytes,
	})
	if err != nil {
		return services{}, fmt.Errorf("init submission service failed: %w", err)
	}
	svc := services{contests: contests, submissions: submissions, hub: hub, joinSession: joinSession}
	if appCfg.Submission.RateLimit.Enabled {
		svc.limiter = ratelimit.NewLimiter(redisCache, appCfg.Submission.RateLimit.Window, appCfg.Redis.WriteTimeout)
	}
	return svc, nil
}

func buildHTTPServer(appCfg *AppConfig, svc services) *http.Server {
	return &http.Server{
		Addr:         appCfg.Server.Addr,
		Handler:      buildRouter(appCfg, svc),
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  appCfg.Server.IdleTimeout,
	}
}

func buildRouter(appCfg *AppConfig, svc services) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Trace(appCfg.Trace))
	router.Use(middleware.AccessLog())
	router.Use(middleware.CORS(appCfg.CORS))
	if svc.joinSession != nil {
		router.Use(svc.joinSession)
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ws-submissions", svc.hub.Handle)
	router.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "Route not found")
	})

	api := router.Group("/api")
	contestController := contestcontroller.NewContestController(svc.contests)
	api.GET("/contests", contestController.List)
	api.GET("/contest/:id", contestController.Get)
	api.GET("/contest/:id/problems", contestController.Problems)
	api.POST("/contest/:id/join", contestController.Join)
	api.POST("/contest/:id/check-joined", contestController.CheckJoined)
	api.GET("/contest/:id/leaderboard", contestController.Leaderboard)
	api.GET("/problem/:id", contestController.Problem)
	api.GET("/problem/:id/test-cases", contestController.TestCases)

	submissionController := submissioncontroller.NewSubmissionController(svc.submissions)
	submitLimit := middleware.RateLimit(svc.limiter, "submit", appCfg.Submission.RateLimit)
	api.POST("/submissions", submitLimit, submissionController.Submit)
	api.GET("/submissions", submissionController.List)
	api.GET("/submissions/:id", submissionController.Get)
	api.POST("/submissions/:id/review", submissionController.Review)
	api.POST("/submission/submit", submitLimit, submissionController.Submit)
	api.GET("/submission/:id", submissionController.Get)

	return router
}
