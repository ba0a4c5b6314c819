package services

import (
	"github.com/sirupsen/logrus"

	"github.com/fitfeed/fitfeed/internal/config"
	"github.com/fitfeed/fitfeed/internal/database"
	"github.com/fitfeed/fitfeed/internal/recommend"
)

type Services struct {
	Auth       *AuthService
	Health     *HealthService
	JobManager *JobManager
	RecCache   *RecommendationCache
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database, engine *recommend.Engine) *Services {
	return &Services{
		Auth:       NewAuthService(cfg, logger, db.Redis),
		Health:     NewHealthService(cfg, logger, db, engine),
		JobManager: NewJobManager(db.Redis, logger),
		RecCache:   NewRecommendationCache(db.Redis, logger),
	}
}
