package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bedtime-server/internal/ai"
	"bedtime-server/internal/cache"
	"bedtime-server/internal/config"
	"bedtime-server/internal/database"
	"bedtime-server/internal/handler"
	"bedtime-server/internal/interfaces"
	"bedtime-server/internal/messaging"
	"bedtime-server/internal/middleware"
	"bedtime-server/internal/personalization"
	"bedtime-server/internal/service"
	"bedtime-server/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

func main() {
	envFile := flag.String("env", ".env", "path to .env file")
	runMigrations := flag.Bool("migrate", false, "apply database migrations before start")
	flag.Parse()

	// --- Configuration ---
	cfg, err := config.LoadConfig(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Setup ---
	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Encoding:    cfg.LogEncoding,
		ServiceName: "bedtime-server",
		Development: cfg.Env == "development",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	zap.ReplaceGlobals(log)
	zap.L().Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("primaryProvider", string(cfg.PrimaryProvider())),
		zap.Bool("postgres", cfg.UsePostgres()),
		zap.Bool("redis", cfg.UseRedis()),
		zap.Bool("rabbitmq", cfg.RabbitMQURL != ""),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Storage ---
	prefsRepo, historyRepo, closeDB, err := setupPostgres(ctx, cfg, *runMigrations, log)
	if err != nil {
		zap.L().Fatal("Failed to set up PostgreSQL", zap.Error(err))
	}
	defer closeDB()

	kvStore, closeRedis := setupRedis(ctx, cfg, log)
	defer closeRedis()

	// --- Events ---
	events, closeEvents := setupEvents(ctx, cfg, log)
	defer closeEvents()

	// --- AI providers ---
	fallback := personalization.NewFallbackGenerator(nil)
	providers, err := setupProviders(ctx, cfg, fallback, log)
	if err != nil {
		zap.L().Fatal("Failed to set up AI providers", zap.Error(err))
	}

	// --- Services ---
	prefsService := service.NewPreferencesService(prefsRepo, kvStore, log)
	temperature, maxTokens := cfg.StoryTemperature, cfg.StoryMaxTokens
	engine := personalization.NewEngine(personalization.EngineConfig{
		Providers:         providers,
		Cache:             cache.NewStoryCache(kvStore, cfg.StoryCacheTTL, log),
		Preferences:       prefsService,
		History:           historyRepo,
		Events:            events,
		Fallback:          fallback,
		StoryParams:       ai.GenerationParams{Temperature: &temperature, MaxTokens: &maxTokens},
		BackgroundTimeout: cfg.BackgroundTimeout,
	}, log)

	var verifier *middleware.ClerkVerifier
	if cfg.ClerkJWTPublicKey != "" {
		verifier, err = middleware.NewClerkVerifier(cfg.ClerkJWTPublicKey, cfg.ClerkIssuer, log)
		if err != nil {
			zap.L().Fatal("Failed to create Clerk token verifier", zap.Error(err))
		}
	}

	storyHandler := handler.NewStoryHandler(engine, providers, prefsService, historyRepo,
		handler.RetryPolicy{MaxAttempts: cfg.AIMaxAttempts, BaseDelay: cfg.AIBaseRetryDelay}, log)

	// --- HTTP Server Setup (Gin) ---
	gin.SetMode(gin.ReleaseMode)
	if cfg.Env == "development" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(middleware.GinZapLogger(log))
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if origins := cfg.GetAllowedOrigins(); len(origins) > 0 {
		corsConfig.AllowOrigins = origins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
		zap.L().Info("CORS_ALLOWED_ORIGINS not set, allowing default", zap.String("origin", "http://localhost:3000"))
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", middleware.RequestIDHeader}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	storyHandler.RegisterRoutes(router, middleware.Authenticate(verifier, log))

	// Prometheus middleware после регистрации роутов, /metrics регистрируется им же
	p := ginprometheus.NewPrometheus("gin")
	p.Use(router)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		zap.L().Info("Starting HTTP server", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("HTTP Server listen error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zap.L().Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("HTTP Server forced to shutdown", zap.Error(err))
	}
	// Дожидаемся фоновых записей (кэш, счетчик, история) до закрытия хранилищ
	if err := engine.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("Background tasks did not finish before shutdown timeout", zap.Error(err))
	}

	zap.L().Info("Server exiting")
}

// setupPostgres подключается к PostgreSQL или возвращает репозитории в памяти, если DB_HOST не задан.
func setupPostgres(ctx context.Context, cfg *config.Config, runMigrations bool, log *zap.Logger) (interfaces.PreferencesRepository, interfaces.StoryHistoryRepository, func(), error) {
	if !cfg.UsePostgres() {
		zap.L().Warn("DB_HOST not set, preferences and history are kept in memory")
		return database.NewMemoryPreferencesRepository(), database.NewMemoryStoryHistoryRepository(), func() {}, nil
	}

	zap.L().Info("Connecting to PostgreSQL", zap.String("dsn", cfg.GetMaskedDSN()))
	if runMigrations {
		if err := database.ApplyMigrations(cfg.GetDSN(), log); err != nil {
			return nil, nil, nil, err
		}
	}

	pool, err := database.ConnectPostgres(ctx, database.PostgresOptions{
		DSN:         cfg.GetDSN(),
		MaxConns:    cfg.DBMaxConns,
		IdleTimeout: cfg.DBIdleTimeout,
		MaxRetries:  cfg.DBConnectRetries,
		RetryDelay:  cfg.DBRetryDelay,
	}, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return database.NewPgPreferencesRepository(pool, log), database.NewPgStoryHistoryRepository(pool, log), pool.Close, nil
}

// setupRedis возвращает nil хранилище, если Redis не задан или недоступен: кэш историй
// и хэш user:{id}:meta тогда просто отключены.
func setupRedis(ctx context.Context, cfg *config.Config, log *zap.Logger) (interfaces.KeyValueStore, func()) {
	if !cfg.UseRedis() {
		zap.L().Warn("REDIS_ADDR not set, story cache is disabled")
		return nil, func() {}
	}

	client, err := database.ConnectRedis(ctx, database.RedisOptions{
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		DB:         cfg.RedisDB,
		MaxRetries: cfg.RedisConnectRetries,
		RetryDelay: cfg.RedisRetryDelay,
	}, log)
	if err != nil {
		zap.L().Error("Redis unavailable, story cache is disabled", zap.Error(err))
		return nil, func() {}
	}
	return database.NewRedisKeyValueStore(client, cfg.UserMetaTTL, log), func() {
		if err := client.Close(); err != nil {
			zap.L().Warn("Error closing Redis client", zap.Error(err))
		}
	}
}

// setupEvents подключает публикатор RabbitMQ. Без RABBITMQ_URL или при ошибке - no-op.
func setupEvents(ctx context.Context, cfg *config.Config, log *zap.Logger) (interfaces.StoryEventPublisher, func()) {
	if cfg.RabbitMQURL == "" {
		return messaging.NoopStoryEventPublisher{}, func() {}
	}

	conn, err := messaging.ConnectRabbitMQ(ctx, cfg.RabbitMQURL, 5, 3*time.Second, log)
	if err != nil {
		zap.L().Error("RabbitMQ unavailable, story events are disabled", zap.Error(err))
		return messaging.NoopStoryEventPublisher{}, func() {}
	}
	go func() {
		notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))
		if err := <-notifyClose; err != nil {
			zap.L().Error("RabbitMQ connection closed unexpectedly", zap.Error(err))
		}
	}()

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		zap.L().Error("Failed to open RabbitMQ channel, story events are disabled", zap.Error(err))
		return messaging.NoopStoryEventPublisher{}, func() {}
	}
	publisher, err := messaging.NewRabbitMQStoryEventPublisher(ch, cfg.StoryEventsQueue, log)
	if err != nil {
		ch.Close()
		conn.Close()
		zap.L().Error("Failed to create story event publisher", zap.Error(err))
		return messaging.NoopStoryEventPublisher{}, func() {}
	}
	return publisher, func() {
		ch.Close()
		conn.Close()
	}
}

// setupProviders создает клиентов и оборачивает каждого в собственный предохранитель.
func setupProviders(ctx context.Context, cfg *config.Config, fallback *personalization.FallbackGenerator, log *zap.Logger) (*personalization.Providers, error) {
	var guarded []*personalization.GuardedProvider
	for _, pc := range cfg.Providers() {
		client, err := ai.NewClient(ctx, pc.Client, log)
		if err != nil {
			if pc.Client.Provider == cfg.PrimaryProvider() {
				return nil, err
			}
			zap.L().Error("Skipping AI provider", zap.String("provider", string(pc.Client.Provider)), zap.Error(err))
			continue
		}
		gp, err := personalization.NewGuardedProvider(pc.Client.Provider, pc.Client.Model, client, pc.Breaker, fallback, log)
		if err != nil {
			return nil, err
		}
		guarded = append(guarded, gp)
		zap.L().Info("AI provider registered",
			zap.String("provider", string(pc.Client.Provider)),
			zap.String("model", pc.Client.Model),
			zap.Duration("breakerTimeout", pc.Breaker.Timeout),
		)
	}
	return personalization.NewProviders(cfg.PrimaryProvider(), guarded...)
}
