package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/fitfeed/fitfeed/internal/catalog"
	"github.com/fitfeed/fitfeed/internal/config"
	"github.com/fitfeed/fitfeed/internal/recommend"
	"github.com/fitfeed/fitfeed/internal/services"
	"github.com/fitfeed/fitfeed/internal/validation"
)

// validate enforces the struct tags on request models after JSON schema
// validation has checked the raw payload shape.
var validate = validator.New()

type Handlers struct {
	Health         *HealthHandler
	Auth           *AuthHandler
	Item           *ItemHandler
	Interaction    *InteractionHandler
	Recommendation *RecommendationHandler
	Admin          *AdminHandler
}

func New(cfg *config.Config, logger *logrus.Logger, svcs *services.Services, engine *recommend.Engine, store *catalog.Store, validator *validation.SchemaValidator) *Handlers {
	return &Handlers{
		Health:         NewHealthHandler(logger, svcs.Health),
		Auth:           NewAuthHandler(logger, svcs.Auth, &cfg.Auth),
		Item:           NewItemHandler(logger, store, engine, validator),
		Interaction:    NewInteractionHandler(logger, store, validator),
		Recommendation: NewRecommendationHandler(logger, engine, store, svcs.RecCache),
		Admin:          NewAdminHandler(logger, svcs.JobManager, engine, store),
	}
}
