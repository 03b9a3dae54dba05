package container

import (
	"cloud.google.com/go/storage"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/driver-desk/config"
	"github.com/oksasatya/driver-desk/internal/application"
	"github.com/oksasatya/driver-desk/internal/interface/middleware"
	"github.com/oksasatya/driver-desk/pkg/helpers"
)

// app-level container to share constructed components across packages
// Router can auto-wire modules from these singletons.

var (
	cfg         *config.Config
	logger      *logrus.Logger
	pgPool      *pgxpool.Pool
	redisClient *redis.Client
	gcsClient   *storage.Client
	esClient    *elasticsearch.Client

	jwtManager *helpers.JWTManager
	notifier   application.Notifier
	images     application.ImageStore
	metrics    *middleware.Metrics

	authService *application.AuthService
)

func SetConfig(c *config.Config)    { cfg = c }
func GetConfig() *config.Config     { return cfg }
func SetLogger(l *logrus.Logger)    { logger = l }
func GetLogger() *logrus.Logger     { return logger }
func SetPGPool(p *pgxpool.Pool)     { pgPool = p }
func GetPGPool() *pgxpool.Pool      { return pgPool }
func SetRedis(r *redis.Client)      { redisClient = r }
func GetRedis() *redis.Client       { return redisClient }
func SetGCS(s *storage.Client)      { gcsClient = s }
func GetGCS() *storage.Client       { return gcsClient }
func SetES(c *elasticsearch.Client) { esClient = c }
func GetES() *elasticsearch.Client  { return esClient }
func SetJWT(m *helpers.JWTManager)  { jwtManager = m }
func GetJWT() *helpers.JWTManager   { return jwtManager }

func SetNotifier(n application.Notifier)        { notifier = n }
func GetNotifier() application.Notifier         { return notifier }
func SetImages(s application.ImageStore)        { images = s }
func GetImages() application.ImageStore         { return images }
func SetMetrics(m *middleware.Metrics)          { metrics = m }
func GetMetrics() *middleware.Metrics           { return metrics }
func SetAuthService(s *application.AuthService) { authService = s }
func GetAuthService() *application.AuthService  { return authService }

// RateLimitStore returns the Redis client as a limiter store, or nil when
// Redis is not configured.
func RateLimitStore() middleware.Store {
	if redisClient == nil {
		return nil
	}
	return redisClient
}
