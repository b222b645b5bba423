package cli

import (
	"fmt"

	"github.com/erlaaaand/dentizy/clock"
	"github.com/erlaaaand/dentizy/config"
	"github.com/erlaaaand/dentizy/endpoint"
	"github.com/erlaaaand/dentizy/metrics"
	"github.com/erlaaaand/dentizy/middleware"
	"github.com/erlaaaand/dentizy/model"
	"github.com/erlaaaand/dentizy/patientcode"
	"github.com/erlaaaand/dentizy/store"
	"github.com/erlaaaand/dentizy/transaction"
	"github.com/erlaaaand/dentizy/util"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// application holds the explicitly wired process graph.
type application struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *gorm.DB
	redis     *redis.Client
	registry  *prometheus.Registry
	store     store.Store
	executor  *transaction.Executor
	allocator *patientcode.Allocator
}

// newApplication connects storage and builds the core services. The caller
// must call close when done.
func newApplication(cfg *config.Config) (*application, error) {
	logger, err := util.NewLogger(cfg.LoggerConfig())
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	app := &application{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(app.registry, metrics.Config{ServiceName: cfg.AppName, Environment: cfg.AppEnv})

	if cfg.DBType == config.DBTypeMemory && !cfg.IsTest() {
		logger.Warn("using in-memory store, data is lost on exit")
		app.store = store.NewMemoryStore()
	} else {
		db, err := config.ConnectDatabase(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		app.db = db
		app.store = store.NewGormStore(db)
	}

	app.executor = transaction.NewExecutor(app.store,
		transaction.WithLogger(logger),
		transaction.WithMetrics(m),
	)
	app.allocator = patientcode.NewAllocator(app.store, app.executor, clock.System{Location: loc},
		patientcode.WithLogger(logger),
		patientcode.WithMetrics(m),
	)
	return app, nil
}

// migrate creates or updates the schema. It is a no-op for the memory store.
func (a *application) migrate() error {
	if a.db == nil {
		return nil
	}
	if err := a.db.AutoMigrate(&model.Patient{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// router connects Redis for rate limiting and builds the HTTP handler.
func (a *application) router() *gin.Engine {
	rdb, err := config.ConnectRedis(a.cfg, a.logger)
	if err != nil {
		a.logger.Warn("redis unavailable, rate limiting disabled", zap.Error(err))
	}
	a.redis = rdb

	limiter := middleware.NewRateLimiter(rdb, middleware.RateLimitConfig{
		Limit:  a.cfg.RateLimitLimit,
		Window: a.cfg.RateLimitWindow,
	}, a.logger)

	return endpoint.NewRouter(endpoint.RouterDeps{
		AppName:     a.cfg.AppName,
		Patients:    endpoint.NewPatientHandler(a.store, a.allocator, a.logger),
		RateLimiter: limiter,
		Gatherer:    a.registry,
		Logger:      a.logger,
	})
}

func (a *application) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = a.logger.Sync()
}
