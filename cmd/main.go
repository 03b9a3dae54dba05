package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/oksasatya/driver-desk/config"
	"github.com/oksasatya/driver-desk/internal/application"
	"github.com/oksasatya/driver-desk/internal/container"
	pginfra "github.com/oksasatya/driver-desk/internal/infrastructure/postgres"
	"github.com/oksasatya/driver-desk/internal/infrastructure/storage"
	"github.com/oksasatya/driver-desk/internal/interface/middleware"
	"github.com/oksasatya/driver-desk/internal/router"
	"github.com/oksasatya/driver-desk/pkg/helpers"
	"github.com/oksasatya/driver-desk/pkg/mailer"
	"github.com/oksasatya/driver-desk/pkg/validation"
)

func main() {
	_ = godotenv.Load() // load .env if present

	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName, cfg.Env)
	gin.SetMode(cfg.GinMode)
	validation.Init()

	ctx := context.Background()

	// Initialize Postgres pool
	pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), cfg.DBMaxConns, cfg.DBMinConns, cfg.DBMaxConnLife)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	// Run migrations using database/sql with pgx stdlib
	if err := runMigrations(cfg.PostgresDSN(), cfg.MigrationsDir, logger); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	// Redis (rate limiting)
	rdb := helpers.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("redis unreachable, rate limiting fails open")
	}

	images, closeImages, err := newImageStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init image store: %v", err)
	}
	defer closeImages()

	notifier, closeNotifier, err := newNotifier(cfg, logger)
	if err != nil {
		log.Fatalf("failed to init notifier: %v", err)
	}
	defer closeNotifier()

	if cfg.ElasticsearchEnabled {
		es, err := helpers.NewESClient(cfg.ESAddrs(), cfg.ElasticsearchUser, cfg.ElasticsearchPass)
		if err != nil {
			logger.WithError(err).Warn("elasticsearch disabled, driver search falls back to postgres")
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := helpers.EnsureIndex(ctx, es, cfg.ESDriversIndex, helpers.DriversMapping); err != nil {
				logger.WithError(err).Warn("drivers index not ensured")
			}
			cancel()
			container.SetES(es)
		}
	}

	metrics := middleware.NewMetrics("driverdesk")

	// Provide infra singletons to container for registry auto-wiring
	container.SetConfig(cfg)
	container.SetLogger(logger)
	container.SetPGPool(pool)
	container.SetRedis(rdb)
	container.SetJWT(helpers.NewJWTManager(cfg.JWTSecret, cfg.SessionTTL))
	container.SetNotifier(notifier)
	container.SetImages(images)
	container.SetMetrics(metrics)

	// Gin engine and global middleware
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.RealIP())
	r.Use(metrics.Handler())
	corsCfg := cors.Config{
		AllowOrigins:     cfg.CORSOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	r.Use(cors.New(corsCfg))
	if cfg.HTTPLogEnabled {
		r.Use(gin.Logger())
	}
	r.MaxMultipartMemory = 8 << 20
	r.Static("/img", filepath.Join(cfg.PublicDir, "img"))

	// Registry: auto-register modules using container
	reg := router.NewRegistry(r)
	reg.Use(middleware.RateLimit(container.RateLimitStore(), cfg.RateLimitMax, cfg.RateLimitEvery, middleware.KeyByIP(),
		middleware.AllowPathPrefix("/api/debug")))
	router.InitModules(reg)
	reg.RegisterAll()

	reapCtx, stopReaper := context.WithCancel(ctx)
	go runReaper(reapCtx, container.GetAuthService(), cfg.ReaperInterval, logger)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Infof("server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %s\n", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")
	stopReaper()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Fatalf("server forced to shutdown: %v", err)
	}
	logger.Info("server exited properly")
}

// newImageStore picks GCS when a bucket is configured, local disk otherwise.
func newImageStore(ctx context.Context, cfg *config.Config) (application.ImageStore, func(), error) {
	if cfg.GCSBucket == "" {
		s, err := storage.NewLocalImageStore(cfg.PublicDir, cfg.PublicBaseURL)
		return s, func() {}, err
	}
	client, err := helpers.NewGCSClient(ctx, cfg.GCSCredentialsJSONPath)
	if err != nil {
		return nil, nil, err
	}
	container.SetGCS(client)
	return storage.NewGCSImageStore(client, cfg.GCSBucket), func() { _ = client.Close() }, nil
}

// newNotifier builds the notifier selected by NOTIFIER_MODE.
func newNotifier(cfg *config.Config, logger *logrus.Logger) (application.Notifier, func(), error) {
	if !cfg.MailSendEnabled {
		return mailer.LogNotifier{Logger: logger}, func() {}, nil
	}
	switch cfg.NotifierMode {
	case "mailgun":
		mg := mailer.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunSender)
		return mailer.NewMailgunNotifier(cfg, mg), func() {}, nil
	case "queue":
		pub, err := helpers.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQEmailQueue)
		if err != nil {
			return nil, nil, err
		}
		return mailer.NewQueueNotifier(cfg, pub), pub.Close, nil
	case "log", "":
		return mailer.LogNotifier{Logger: logger}, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown NOTIFIER_MODE %q", cfg.NotifierMode)
	}
}

// runReaper removes unverified accounts whose activation window passed.
func runReaper(ctx context.Context, auth *application.AuthService, every time.Duration, logger *logrus.Logger) {
	if auth == nil || every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := auth.ReapExpired(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Warn("reaper pass failed")
			}
		}
	}
}

func runMigrations(dsn string, migrationsDir string, logger *logrus.Logger) error {
	// Open sql DB via pgx stdlib
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	driver, err := pgmigrate.WithInstance(db, &pgmigrate.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", migrationsDir), "postgres", driver)
	if err != nil {
		return err
	}
	logger.Info("running migrations...")
	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no migrations to run")
		return nil
	}
	return err
}
