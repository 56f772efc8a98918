package task

import (
	"Go_Sentinel/internal/repo"
	"Go_Sentinel/internal/sentinel"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// TaskName routes download messages to the "downloader" queue.
const TaskName = "downloader:sentinel"

// ErrAlreadyCompleted is returned by Process when the journal already holds a
// finished download for the dataset.
var ErrAlreadyCompleted = errors.New("dataset already downloaded")

// JournalError wraps a failed write to the download journal. The download
// itself did not fail, so the message must be redelivered rather than dead-lettered.
type JournalError struct {
	Op  string
	Err error
}

func (e *JournalError) Error() string {
	return fmt.Sprintf("journal %s: %v", e.Op, e.Err)
}

func (e *JournalError) Unwrap() error {
	return e.Err
}

// DownloadMessage is the payload sent to the worker.
type DownloadMessage struct {
	ID           string `json:"id"`
	Task         string `json:"task"`
	DatasetGUID  string `json:"dataset_guid"`
	DatasetTitle string `json:"dataset_title"`
	Attempt      int    `json:"attempt"`
}

// NewDownloadMessage builds the first attempt of a download.
func NewDownloadMessage(guid, title string) DownloadMessage {
	return DownloadMessage{
		ID:           uuid.NewString(),
		Task:         TaskName,
		DatasetGUID:  guid,
		DatasetTitle: title,
	}
}

// DecodeMessage parses a delivery body.
func DecodeMessage(body []byte) (DownloadMessage, error) {
	var msg DownloadMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, err
	}
	if msg.DatasetGUID == "" {
		return msg, errors.New("message has no dataset_guid")
	}
	if msg.Task == "" {
		msg.Task = TaskName
	}
	return msg, nil
}

// Publisher is the broker side used by the service and the worker.
type Publisher interface {
	PublishTask(ctx context.Context, task string, body []byte) error
	PublishRetry(ctx context.Context, task string, body []byte, delay time.Duration) error
	PublishDLQ(ctx context.Context, task string, body []byte) error
}

// Runner executes a single download job.
type Runner interface {
	Run(ctx context.Context, job sentinel.DownloadJob) sentinel.Outcome
}

// Service enqueues datasets and processes download messages.
type Service struct {
	catalog     *repo.Catalog
	publisher   Publisher
	runner      Runner
	credentials string
	rootDir     string
}

func NewService(catalog *repo.Catalog, publisher Publisher, runner Runner, credentials, rootDir string) *Service {
	return &Service{
		catalog:     catalog,
		publisher:   publisher,
		runner:      runner,
		credentials: credentials,
		rootDir:     rootDir,
	}
}

// EnqueueDataset journals the dataset as pending and publishes a download
// message. It reports false when the dataset was already downloaded.
func (s *Service) EnqueueDataset(ctx context.Context, guid, title string) (bool, error) {
	guid = strings.TrimSpace(guid)
	title = strings.TrimSpace(title)
	if guid == "" {
		return false, errors.New("dataset guid is required")
	}
	if _, err := sentinel.DatasetDir(title); err != nil {
		return false, err
	}
	queued, err := s.catalog.QueueTask(ctx, guid, title)
	if err != nil {
		return false, err
	}
	if !queued {
		return false, nil
	}
	body, err := json.Marshal(NewDownloadMessage(guid, title))
	if err != nil {
		_ = s.catalog.MarkFailed(ctx, guid, err.Error())
		return false, err
	}
	if err := s.publisher.PublishTask(ctx, TaskName, body); err != nil {
		_ = s.catalog.MarkFailed(ctx, guid, err.Error())
		return false, fmt.Errorf("publish %s: %w", guid, err)
	}
	return true, nil
}

// EnqueueCatalog enqueues every dataset without a completed download and
// returns how many were published. Datasets with malformed titles are skipped.
func (s *Service) EnqueueCatalog(ctx context.Context) (int, error) {
	datasets, err := s.catalog.ListPending(ctx, 0)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, d := range datasets {
		queued, err := s.EnqueueDataset(ctx, d.GUID, d.Title)
		if errors.Is(err, sentinel.ErrMalformedTitle) {
			log.WithFields(log.Fields{
				"dataset_guid":  d.GUID,
				"dataset_title": d.Title,
			}).WithError(err).Warn("skipping dataset")
			continue
		}
		if err != nil {
			return count, err
		}
		if queued {
			count++
		}
	}
	return count, nil
}

// Process runs one download attempt and journals a successful result.
// It returns nil on success, ErrAlreadyCompleted when there is nothing to do,
// sentinel.ErrRetryLater when the dataset is being restored, *JournalError when
// the journal could not be written, and the classified *sentinel.Error
// otherwise. Retry and failure bookkeeping belongs to the caller.
func (s *Service) Process(ctx context.Context, msg DownloadMessage) error {
	if _, err := s.catalog.EnsureTask(ctx, msg.DatasetGUID, msg.DatasetTitle); err != nil {
		return &JournalError{Op: "ensure", Err: err}
	}
	ok, err := s.catalog.MarkRunning(ctx, msg.DatasetGUID, msg.Attempt)
	if err != nil {
		return &JournalError{Op: "mark running", Err: err}
	}
	if !ok {
		return ErrAlreadyCompleted
	}

	outcome := s.runner.Run(ctx, sentinel.DownloadJob{
		DatasetID:     msg.DatasetGUID,
		DatasetTitle:  msg.DatasetTitle,
		Credentials:   s.credentials,
		TargetRootDir: s.rootDir,
	})
	if outcome.State != sentinel.StateSucceeded {
		return outcome.Err()
	}

	log.WithFields(log.Fields{
		"dataset_guid": msg.DatasetGUID,
		"attempt":      msg.Attempt,
	}).Infof("stored %s in %.1fs", outcome.LocalPath, outcome.ElapsedSeconds())
	err = s.catalog.MarkCompleted(ctx, msg.DatasetGUID, repo.TaskResult{
		LocalPath: outcome.LocalPath,
		Size:      outcome.BytesTransferred,
		Checksum:  outcome.Checksum,
		Elapsed:   outcome.Elapsed,
	})
	if err != nil {
		return &JournalError{Op: "mark completed", Err: err}
	}
	return nil
}
