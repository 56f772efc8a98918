package worker

import (
	"Go_Sentinel/internal/mq"
	"Go_Sentinel/internal/repo"
	"Go_Sentinel/internal/sentinel"
	"Go_Sentinel/internal/task"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Locker serializes work on one dataset across workers.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(context.Context) error, error)
}

// Alerter is told about downloads that failed for good.
type Alerter interface {
	SendFailureAlert(guid, title, reason string) error
}

type dlqMessage struct {
	ID           string    `json:"id"`
	Task         string    `json:"task"`
	DatasetGUID  string    `json:"dataset_guid"`
	DatasetTitle string    `json:"dataset_title"`
	Attempt      int       `json:"attempt"`
	Kind         string    `json:"kind,omitempty"`
	Error        string    `json:"error"`
	FailedAt     time.Time `json:"failed_at"`
}

// Options tunes the consumer.
type Options struct {
	Concurrency int
	// Rate is the number of jobs started per second; zero means unlimited.
	Rate   float64
	Burst  int
	Policy RetryPolicy
}

// Worker consumes download messages and applies the retry policy to their outcomes.
type Worker struct {
	service   *task.Service
	catalog   *repo.Catalog
	publisher task.Publisher
	locker    Locker
	alerter   Alerter
	policy    RetryPolicy

	concurrency int
	limiter     *rate.Limiter
}

func New(service *task.Service, catalog *repo.Catalog, publisher task.Publisher, opts Options) *Worker {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	var limiter *rate.Limiter
	if opts.Rate <= 0 {
		limiter = rate.NewLimiter(rate.Inf, burst)
	} else {
		limiter = rate.NewLimiter(rate.Limit(opts.Rate), burst)
	}
	return &Worker{
		service:     service,
		catalog:     catalog,
		publisher:   publisher,
		policy:      opts.Policy,
		concurrency: concurrency,
		limiter:     limiter,
	}
}

// WithLocker enables per-dataset locking.
func (w *Worker) WithLocker(l Locker) *Worker {
	w.locker = l
	return w
}

// WithAlerter enables failure notifications.
func (w *Worker) WithAlerter(a Alerter) *Worker {
	w.alerter = a
	return w
}

// Run handles deliveries until ctx is cancelled or the channel closes, then
// waits for in-flight jobs.
func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	sem := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("download worker: delivery channel closed")
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				_ = delivery.Nack(false, true)
				return nil
			}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer wg.Done()
				defer func() { <-sem }()
				w.handleDelivery(ctx, d)
			}(delivery)
		}
	}
}

func (w *Worker) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	msg, err := task.DecodeMessage(delivery.Body)
	if err != nil {
		log.WithError(err).Error("download worker: invalid message")
		_ = delivery.Ack(false)
		return
	}
	entry := log.WithFields(log.Fields{
		"dataset_guid":  msg.DatasetGUID,
		"dataset_title": msg.DatasetTitle,
		"attempt":       msg.Attempt,
		"queue":         mq.RouteForTask(msg.Task),
	})

	if err := w.limiter.Wait(ctx); err != nil {
		_ = delivery.Nack(false, true)
		return
	}

	if w.locker != nil {
		release, err := w.locker.Acquire(ctx, msg.DatasetGUID)
		if errors.Is(err, repo.ErrLockBusy) {
			entry.Info("dataset is being processed elsewhere, deferring")
			w.postpone(ctx, delivery, msg, entry)
			return
		}
		if err != nil {
			entry.WithError(err).Warn("download worker: lock unavailable")
			_ = delivery.Nack(false, true)
			return
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				entry.WithError(err).Warn("download worker: unlock failed")
			}
		}()
	}

	err = w.service.Process(ctx, msg)
	var journalErr *task.JournalError
	switch {
	case err == nil:
	case errors.Is(err, task.ErrAlreadyCompleted):
		entry.Info("already downloaded, skipping")
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		_ = delivery.Nack(false, true)
		return
	case errors.As(err, &journalErr):
		entry.WithError(err).Warn("download worker: journal unavailable, requeueing")
		_ = delivery.Nack(false, true)
		return
	case errors.Is(err, sentinel.ErrRetryLater):
		if err := w.scheduleRetry(ctx, msg, err, entry); err != nil {
			entry.WithError(err).Error("download worker: retry schedule failed")
			_ = delivery.Nack(false, true)
			return
		}
	default:
		if err := w.markFailed(ctx, msg, err, entry); err != nil {
			entry.WithError(err).Error("download worker: mark failed failed")
			_ = delivery.Nack(false, true)
			return
		}
	}

	_ = delivery.Ack(false)
}

// postpone parks a message whose dataset is locked without spending a retry.
func (w *Worker) postpone(ctx context.Context, delivery amqp.Delivery, msg task.DownloadMessage, entry *log.Entry) {
	body, err := json.Marshal(msg)
	if err == nil {
		err = w.publisher.PublishRetry(ctx, msg.Task, body, w.policy.Delay(msg.Attempt+1))
	}
	if err != nil {
		entry.WithError(err).Error("download worker: defer failed")
		_ = delivery.Nack(false, true)
		return
	}
	_ = delivery.Ack(false)
}

func (w *Worker) scheduleRetry(ctx context.Context, msg task.DownloadMessage, procErr error, entry *log.Entry) error {
	nextAttempt := msg.Attempt + 1
	delay, ok := w.policy.Next(nextAttempt)
	if !ok {
		return w.markFailed(ctx, msg, fmt.Errorf("%w after %d retries", procErr, msg.Attempt), entry)
	}

	nextRetryAt := time.Now().Add(delay)
	if err := w.catalog.MarkRetrying(ctx, msg.DatasetGUID, nextAttempt, nextRetryAt, procErr.Error()); err != nil {
		return err
	}

	msg.Attempt = nextAttempt
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	entry.Infof("retrying in %s (retry %d of %d)", delay, nextAttempt, w.policy.MaxRetries)
	return w.publisher.PublishRetry(ctx, msg.Task, body, delay)
}

func (w *Worker) markFailed(ctx context.Context, msg task.DownloadMessage, procErr error, entry *log.Entry) error {
	if err := w.catalog.MarkFailed(ctx, msg.DatasetGUID, procErr.Error()); err != nil {
		return err
	}
	entry.WithError(procErr).Error("download failed permanently")

	dlq := dlqMessage{
		ID:           msg.ID,
		Task:         msg.Task,
		DatasetGUID:  msg.DatasetGUID,
		DatasetTitle: msg.DatasetTitle,
		Attempt:      msg.Attempt,
		Error:        procErr.Error(),
		FailedAt:     time.Now(),
	}
	var classified *sentinel.Error
	if errors.As(procErr, &classified) {
		dlq.Kind = classified.Kind.String()
	}
	body, err := json.Marshal(dlq)
	if err != nil {
		return err
	}
	if err := w.publisher.PublishDLQ(ctx, msg.Task, body); err != nil {
		entry.WithError(err).Error("download worker: dlq publish failed")
	}
	if w.alerter != nil {
		if err := w.alerter.SendFailureAlert(msg.DatasetGUID, msg.DatasetTitle, procErr.Error()); err != nil {
			entry.WithError(err).Warn("download worker: failure alert not sent")
		}
	}
	return nil
}
