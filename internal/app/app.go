package app

import (
	"Go_Sentinel/config"
	"Go_Sentinel/internal/mq"
	"Go_Sentinel/internal/repo"
	"Go_Sentinel/internal/sentinel"
	"Go_Sentinel/internal/task"
	"Go_Sentinel/internal/worker"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// App holds the connections shared by the binaries.
type App struct {
	Config    config.Config
	DB        *gorm.DB
	Catalog   *repo.Catalog
	Publisher *mq.Publisher
	Service   *task.Service
	Redis     *redis.Client
}

// SessionOptions maps the download timeouts onto the provider session.
func SessionOptions(cfg config.Config) sentinel.SessionOptions {
	return sentinel.SessionOptions{
		ConnectTimeout: cfg.DownloadConnectTimeout,
		ReadTimeout:    cfg.DownloadReadTimeout,
		Timeout:        cfg.DownloadHTTPTimeout,
	}
}

// RetryPolicy builds the worker retry policy from configuration.
func RetryPolicy(cfg config.Config) worker.RetryPolicy {
	backoff := worker.FixedBackoff(2 * time.Second)
	if len(cfg.DownloadRetryDelays) > 0 {
		backoff = worker.DelayListBackoff(cfg.DownloadRetryDelays)
	}
	return worker.RetryPolicy{MaxRetries: cfg.DownloadRetryMax, Backoff: backoff}
}

// New opens the catalog database and prepares the publisher and task service.
// Provider credentials are only checked when a job runs.
func New(cfg config.Config) (*App, error) {
	db, err := repo.OpenDatabase(cfg)
	if err != nil {
		return nil, err
	}
	catalog := repo.NewCatalog(db)
	publisher := mq.NewPublisher(cfg.RabbitMQURL)
	orchestrator := sentinel.NewOrchestrator(sentinel.NewClient(cfg.CopernicusBaseURL), SessionOptions(cfg))
	return &App{
		Config:    cfg,
		DB:        db,
		Catalog:   catalog,
		Publisher: publisher,
		Service:   task.NewService(catalog, publisher, orchestrator, cfg.CopernicusCredentials, cfg.DownloadRoot),
	}, nil
}

// OpenRedis connects the optional job-lock store.
func (a *App) OpenRedis() error {
	rdb, err := repo.OpenRedis(a.Config)
	if err != nil {
		return err
	}
	a.Redis = rdb
	return nil
}

func (a *App) Close() {
	a.Publisher.Close()
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.WithError(err).Warn("close redis")
		}
	}
	if err := repo.CloseDatabase(a.DB); err != nil {
		log.WithError(err).Warn("close database")
	}
}
