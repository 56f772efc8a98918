package main

import (
	"Go_Sentinel/config"
	"Go_Sentinel/internal/app"
	"Go_Sentinel/internal/mq"
	"Go_Sentinel/internal/repo"
	"Go_Sentinel/internal/sentinel"
	"Go_Sentinel/internal/task"
	"Go_Sentinel/internal/worker"
	"Go_Sentinel/utils"
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
)

func main() {
	config.InitConfig()
	cfg := config.AppConfig
	if _, _, err := sentinel.ParseCredentials(cfg.CopernicusCredentials); err != nil {
		log.Fatal("COPERNICUS_CREDENTIALS must be set to user:password")
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	defer a.Close()
	if err := a.OpenRedis(); err != nil {
		log.Fatalf("init redis: %v", err)
	}

	consumer, err := mq.Dial(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("connect rabbitmq: %v", err)
	}
	defer consumer.Close()

	queue := mq.RouteForTask(task.TaskName)
	deliveries, err := consumer.Consume(queue, cfg.RabbitMQPrefetch)
	if err != nil {
		log.Fatalf("consume %s: %v", queue, err)
	}

	w := worker.New(a.Service, a.Catalog, a.Publisher, worker.Options{
		Concurrency: cfg.DownloadWorkerConcurrency,
		Rate:        cfg.DownloadRate,
		Burst:       cfg.DownloadBurst,
		Policy:      app.RetryPolicy(cfg),
	})
	if a.Redis != nil {
		w.WithLocker(repo.NewRedisLocker(a.Redis, cfg.JobLockTTL))
	}
	if mailer := utils.NewMailer(cfg); mailer != nil {
		w.WithAlerter(mailer)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithField("queue", queue).Info("download worker started")
	if err := w.Run(ctx, deliveries); err != nil {
		log.Fatalf("download worker stopped: %v", err)
	}
	log.Info("download worker stopped")
}
