package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/pinkeye-api/internal/auth"
	"github.com/example/pinkeye-api/internal/config"
	"github.com/example/pinkeye-api/internal/handlers"
	"github.com/example/pinkeye-api/internal/healthserver"
	"github.com/example/pinkeye-api/internal/inference"
	"github.com/example/pinkeye-api/internal/logging"
	"github.com/example/pinkeye-api/internal/repository"
	"github.com/example/pinkeye-api/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := cfg.EnsureUploadDir(); err != nil {
		logger.Fatal("failed to create upload directory", zap.Error(err), zap.String("dir", cfg.UploadDir))
	}

	processor := inference.NewHTTPClient(cfg.APIURL, cfg.APIKey, cfg.InferenceTimeout, logger)

	var repo usecase.PredictionRepository
	if cfg.HistoryEnabled() {
		db := initDatabase(ctx, cfg.DatabaseDSN, logger)
		predictionRepo := repository.NewPredictionRepository(db, logger)
		if err := predictionRepo.AutoMigrate(ctx); err != nil {
			logger.Fatal("auto migrate failed", zap.Error(err))
		}
		repo = predictionRepo
	}

	var cache usecase.Cache
	if cfg.RedisAddr != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		redisClient := initRedis(redisCtx, cfg.RedisAddr, logger)
		redisCancel()
		defer redisClient.Close()
		cache = usecase.NewRedisCache(redisClient)
	}

	uc := usecase.NewPredictionUseCase(processor, repo, cache, usecase.Options{
		UploadDir: cfg.UploadDir,
		ModelID:   cfg.ModelID,
		Labels:    usecase.DefaultLabels(),
	}, logger)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(logging.GinMiddleware(logger), gin.Recovery(), handlers.CORS())
	r.MaxMultipartMemory = cfg.MaxUploadBytes

	opts := handlers.Options{
		MaxUploadSize:      cfg.MaxUploadBytes,
		DefaultSubjectType: cfg.DefaultSubjectType,
	}
	if cfg.JWTSecret != "" {
		opts.HistoryMiddleware = []gin.HandlerFunc{auth.JWTMiddleware(cfg.JWTSecret, cfg.JWTAudience)}
	}
	handlers.RegisterRoutes(r, uc, opts)

	var onShutdown func()
	if addr := cfg.GRPCAddr(); addr != "" {
		health := startHealthServer(addr, logger)
		defer health.Stop()
		onShutdown = func() { health.SetServing(false) }
	}

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("prediction API listening",
		zap.String("addr", server.Addr),
		zap.String("model_id", cfg.ModelID),
		zap.Bool("history", uc.HistoryEnabled()),
	)
	if err := serveHTTPServerWithOptions(server, 15*time.Second, logger, nil, nil, onShutdown); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err), zap.String("addr", addr))
	}
	return client
}

func startHealthServer(addr string, logger *zap.Logger) *healthserver.Server {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal("failed to listen for gRPC health", zap.Error(err), zap.String("addr", addr))
	}
	health := healthserver.New(logger)
	go func() {
		if err := health.Serve(lis); err != nil {
			logger.Error("gRPC health server stopped", zap.Error(err))
		}
	}()
	health.SetServing(true)
	return health
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal, onShutdown func()) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	sigCh := signalCh
	if sigCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		sigCh = ch
	}

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		if onShutdown != nil {
			onShutdown()
		}
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
