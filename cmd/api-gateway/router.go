package main

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/citizen-safety-api/internal/handler"
	"github.com/noah-isme/citizen-safety-api/internal/middleware"
	"github.com/noah-isme/citizen-safety-api/internal/repository"
	"github.com/noah-isme/citizen-safety-api/internal/service"
	"github.com/noah-isme/citizen-safety-api/pkg/config"
	"github.com/noah-isme/citizen-safety-api/pkg/jobs"
	"github.com/noah-isme/citizen-safety-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/citizen-safety-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/citizen-safety-api/pkg/middleware/requestid"
	"github.com/noah-isme/citizen-safety-api/pkg/notify"
)

const rateLimitWindow = 24 * time.Hour

type application struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *service.MetricsService
	auth       *service.AuthService
	rateLimit  *repository.RateLimitRepository
	dispatcher *service.NotificationDispatcher

	issueHandler     *handler.IssueHandler
	authHandler      *handler.AuthHandler
	pushTokenHandler *handler.PushTokenHandler
	metricsHandler   *handler.MetricsHandler
}

// newApplication builds repositories, services and handlers. redisClient may
// be nil, which disables the submission rate limit.
func newApplication(cfg *config.Config, logr *zap.Logger, db *sqlx.DB, redisClient *redis.Client, sender notify.Sender) *application {
	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	issueRepo := repository.NewIssueRepository(db)
	pushTokenRepo := repository.NewPushTokenRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            "citizen-safety-api",
		AdminToken:        cfg.Auth.AdminToken,
		OTPTTL:            cfg.Auth.OTPTTL,
	})
	issueSvc := service.NewIssueService(issueRepo, validate, logr, metrics, service.IssueConfig{MaxImages: cfg.Issues.MaxImages})
	statsSvc := service.NewStatisticsService(issueRepo, logr)
	exportSvc := service.NewExportService(issueRepo, logr, nil, nil)
	pushTokenSvc := service.NewPushTokenService(pushTokenRepo, validate, logr)
	dispatcher := service.NewNotificationDispatcher(pushTokenRepo, sender, metrics, logr, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: 256,
		MaxRetries: cfg.Notifications.MaxRetries,
	})

	return &application{
		cfg:              cfg,
		logger:           logr,
		metrics:          metrics,
		auth:             authSvc,
		rateLimit:        repository.NewRateLimitRepository(redisClient, "ratelimit:issues"),
		dispatcher:       dispatcher,
		issueHandler:     handler.NewIssueHandler(issueSvc, statsSvc, exportSvc, dispatcher),
		authHandler:      handler.NewAuthHandler(authSvc),
		pushTokenHandler: handler.NewPushTokenHandler(pushTokenSvc),
		metricsHandler:   handler.NewMetricsHandler(metrics, db),
	}
}

func (a *application) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.logger))
	r.Use(corsmiddleware.New(a.cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.metrics))

	r.GET("/health", a.metricsHandler.Health)
	r.GET("/ready", a.metricsHandler.Ready)
	r.GET("/metrics", a.metricsHandler.Prometheus)
	if a.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(a.cfg.APIPrefix)
	api.GET("/health", a.metricsHandler.Health)

	requireAuth := middleware.JWT(a.auth)
	optionalAuth := middleware.OptionalJWT(a.auth)
	limiter := middleware.RateLimit(a.rateLimit, a.cfg.Issues.RateLimitPerDay, rateLimitWindow, a.metrics, a.logger)

	issues := api.Group("/issues")
	issues.GET("", optionalAuth, a.issueHandler.List)
	issues.POST("", optionalAuth, limiter, a.issueHandler.Create)
	issues.GET("/statistics", a.issueHandler.Statistics)
	issues.GET("/export.csv", requireAuth, middleware.RequireAdmin(), a.issueHandler.ExportCSV)
	issues.GET("/export.pdf", requireAuth, middleware.RequireAdmin(), a.issueHandler.ExportPDF)
	issues.GET("/:id", a.issueHandler.Get)
	issues.PATCH("/:id", requireAuth, a.issueHandler.Patch)
	issues.GET("/:id/image/:index", a.issueHandler.Image)

	auth := api.Group("/auth")
	auth.POST("/signup", a.authHandler.Signup)
	auth.POST("/login", a.authHandler.Login)

	account := auth.Group("", requireAuth, middleware.RequireAccount())
	account.GET("/profile", a.authHandler.Profile)
	account.PUT("/profile", a.authHandler.UpdateProfile)
	account.POST("/otp/request", a.authHandler.RequestOTP)
	account.POST("/otp/verify", a.authHandler.VerifyOTP)
	account.DELETE("/account", a.authHandler.DeleteAccount)

	pushTokens := api.Group("/push-tokens", requireAuth, middleware.RequireAccount())
	pushTokens.POST("", a.pushTokenHandler.Register)
	pushTokens.DELETE("", a.pushTokenHandler.Remove)

	return r
}
