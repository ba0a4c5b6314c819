package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/fitfeed/fitfeed/internal/catalog"
	"github.com/fitfeed/fitfeed/internal/config"
	"github.com/fitfeed/fitfeed/internal/database"
	"github.com/fitfeed/fitfeed/internal/handlers"
	"github.com/fitfeed/fitfeed/internal/messaging"
	"github.com/fitfeed/fitfeed/internal/middleware"
	"github.com/fitfeed/fitfeed/internal/ml"
	"github.com/fitfeed/fitfeed/internal/recommend"
	"github.com/fitfeed/fitfeed/internal/services"
	"github.com/fitfeed/fitfeed/internal/validation"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	engine   *recommend.Engine
	embedder *ml.TextEmbeddingService
	store    *catalog.Store
	services *services.Services
	handlers *handlers.Handlers
	consumer *messaging.InteractionConsumer
	router   *gin.Engine

	consumerCancel context.CancelFunc
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	app.embedder = ml.NewTextEmbeddingService(cfg.Engine.Embedding, db.Redis, app.logger)

	app.engine = recommend.NewEngine(&cfg.Engine, app.embedder, app.logger)
	app.engine.LoadSnapshots()

	app.store = catalog.NewStore(db.PG, app.logger)

	validator, err := validation.NewSchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize schema validator: %w", err)
	}

	app.services = services.New(cfg, app.logger, db, app.engine)
	app.handlers = handlers.New(cfg, app.logger, app.services, app.engine, app.store, validator)

	if cfg.Kafka.Enabled {
		app.consumer = messaging.NewInteractionConsumer(&cfg.Kafka, app.store, validator, app.logger)

		ctx, cancel := context.WithCancel(context.Background())
		app.consumerCancel = cancel
		go func() {
			if err := app.consumer.Run(ctx); err != nil && ctx.Err() == nil {
				app.logger.WithError(err).Error("Interaction consumer stopped")
			}
		}()
	}

	app.setupRouter()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if a.consumerCancel != nil {
		a.consumerCancel()
	}
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.WithError(err).Error("Error closing interaction consumer")
		}
	}

	a.embedder.Stop()

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))

	// Health and metrics endpoints stay unauthenticated for probes and
	// scrapers.
	router.GET("/health", a.handlers.Health.Check)
	router.GET("/health/ready", a.handlers.Health.Ready)
	router.GET("/health/live", a.handlers.Health.Live)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Token issuance authenticates with the issuer key, not a JWT, so it
	// sits outside the bearer-auth group.
	router.POST("/api/v1/auth/token", a.handlers.Auth.IssueToken)

	api := router.Group("/api/v1")
	{
		if a.config.Auth.Enabled {
			api.Use(middleware.Auth(a.services.Auth, a.logger))
		}

		api.DELETE("/auth/token", a.handlers.Auth.RevokeToken)

		items := api.Group("/items")
		{
			items.POST("", a.handlers.Item.Create)
			items.GET("", a.handlers.Item.List)
			items.GET("/:id", a.handlers.Item.Get)
			items.GET("/:id/similar", a.handlers.Recommendation.GetSimilar)
		}

		api.POST("/interactions", a.handlers.Interaction.Create)

		recommendations := api.Group("/recommendations")
		{
			recommendations.GET("/:userId", a.handlers.Recommendation.GetHybrid)
			recommendations.GET("/:userId/cf", a.handlers.Recommendation.GetCF)
		}

		admin := api.Group("/admin")
		{
			if a.config.Auth.Enabled {
				admin.Use(middleware.RequireAdmin())
			}

			admin.POST("/rebuild", a.handlers.Admin.RebuildIndex)
			admin.POST("/retrain", a.handlers.Admin.RetrainCF)
			admin.GET("/jobs/:jobId", a.handlers.Admin.GetJob)
		}
	}

	a.router = router
}
