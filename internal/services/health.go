package services

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/fitfeed/fitfeed/internal/config"
	"github.com/fitfeed/fitfeed/internal/database"
	"github.com/fitfeed/fitfeed/internal/recommend"
)

type HealthService struct {
	config *config.Config
	logger *logrus.Logger
	db     *database.Database
	engine *recommend.Engine

	healthCheckStatus *prometheus.GaugeVec
	lastHealthCheck   *prometheus.GaugeVec
}

type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Services  map[string]string      `json:"services"`
	Critical  []string               `json:"critical_failures,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

func NewHealthService(cfg *config.Config, logger *logrus.Logger, db *database.Database, engine *recommend.Engine) *HealthService {
	hs := &HealthService{
		config: cfg,
		logger: logger,
		db:     db,
		engine: engine,
	}

	hs.healthCheckStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_check_status",
		Help: "Health check status (1 = healthy, 0 = unhealthy)",
	}, []string{"service"})

	hs.lastHealthCheck = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_check_timestamp",
		Help: "Timestamp of last health check",
	}, []string{"service"})

	// Re-registration happens in tests; only real failures are worth a log line.
	if err := prometheus.Register(hs.healthCheckStatus); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			logger.WithError(err).Warn("Failed to register health_check_status metric")
		}
	}
	if err := prometheus.Register(hs.lastHealthCheck); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			logger.WithError(err).Warn("Failed to register health_check_timestamp metric")
		}
	}

	return hs
}

func (s *HealthService) CheckHealth() *HealthStatus {
	status := &HealthStatus{
		Timestamp: time.Now(),
		Services:  make(map[string]string),
		Details:   make(map[string]interface{}),
	}

	criticalServices := map[string]func() error{
		"postgresql": s.checkPostgreSQL,
		"redis":      s.checkRedis,
	}

	allHealthy := true
	for name, checkFunc := range criticalServices {
		if err := checkFunc(); err != nil {
			status.Services[name] = "unhealthy"
			status.Critical = append(status.Critical, name)
			allHealthy = false
			s.healthCheckStatus.WithLabelValues(name).Set(0)
			s.logger.WithError(err).Errorf("Critical service %s is unhealthy", name)
		} else {
			status.Services[name] = "healthy"
			s.healthCheckStatus.WithLabelValues(name).Set(1)
		}
		s.lastHealthCheck.WithLabelValues(name).SetToCurrentTime()
	}

	if allHealthy {
		status.Status = "healthy"
	} else {
		status.Status = "unhealthy"
	}

	index := s.engine.Index()
	status.Details["index_state"] = index.State().String()
	status.Details["indexed_items"] = index.Size()
	if model := s.engine.Model(); model != nil {
		status.Details["model_users"] = model.Users()
		status.Details["model_items"] = model.Items()
	} else {
		status.Details["model_users"] = 0
		status.Details["model_items"] = 0
	}

	return status
}

// Ready reports whether the service can answer recommendation traffic.
// Readiness requires healthy critical dependencies; an empty index is
// still ready, it just returns empty results.
func (s *HealthService) Ready() bool {
	return s.checkPostgreSQL() == nil && s.checkRedis() == nil
}

func (s *HealthService) checkPostgreSQL() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.db.PG.Ping(ctx)
}

func (s *HealthService) checkRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.db.Redis.Ping(ctx).Err()
}
