package sentinel

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// State is the terminal state of one download job.
type State int

const (
	StateSucceeded State = iota + 1
	StateNotYetAvailable
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSucceeded:
		return "succeeded"
	case StateNotYetAvailable:
		return "not_yet_available"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DownloadJob identifies one unit of work.
type DownloadJob struct {
	DatasetID     string
	DatasetTitle  string
	Credentials   string
	TargetRootDir string
}

// Outcome is the result of running one DownloadJob.
type Outcome struct {
	State State

	// Set only when State is StateSucceeded.
	LocalPath        string
	BytesTransferred int64
	Checksum         string
	Elapsed          time.Duration

	// Set only when State is StateFailed.
	Error *Error
}

// ElapsedSeconds returns the wall-clock duration of a successful job.
func (o Outcome) ElapsedSeconds() float64 {
	return o.Elapsed.Seconds()
}

// Err maps the outcome onto an error: nil on success, ErrRetryLater when the
// dataset is being restored upstream, the classified *Error otherwise.
func (o Outcome) Err() error {
	switch o.State {
	case StateSucceeded:
		return nil
	case StateNotYetAvailable:
		return ErrRetryLater
	}
	if o.Error == nil {
		return &Error{Kind: KindTransport}
	}
	return o.Error
}

func failed(err *Error) Outcome {
	return Outcome{State: StateFailed, Error: err}
}

// Orchestrator runs the probe, trigger and fetch steps for a job.
type Orchestrator struct {
	client  *Client
	session SessionOptions
}

// NewOrchestrator builds an orchestrator; every job gets its own session built from opts.
func NewOrchestrator(client *Client, opts SessionOptions) *Orchestrator {
	return &Orchestrator{client: client, session: opts}
}

// Run executes the job. It never retries by itself: a dataset that is not staged
// yields StateNotYetAvailable and the caller decides when to try again.
func (o *Orchestrator) Run(ctx context.Context, job DownloadJob) Outcome {
	start := time.Now()
	entry := log.WithFields(log.Fields{
		"dataset_guid":  job.DatasetID,
		"dataset_title": job.DatasetTitle,
	})
	entry.Infof("processing %s", job.DatasetTitle)

	if _, err := DatasetDir(job.DatasetTitle); err != nil {
		return failed(classify(job.DatasetID, err))
	}

	s, err := OpenSession(job.Credentials, o.session)
	if err != nil {
		return failed(classify(job.DatasetID, err))
	}
	defer func() {
		_ = s.Close()
		entry.Debug("session closed")
	}()

	online, err := o.client.Probe(ctx, s, job.DatasetID)
	if err != nil {
		entry.WithError(err).Error("online check failed")
		return failed(classify(job.DatasetID, err))
	}
	if !online {
		entry.Info("dataset is not online yet")
		return o.trigger(ctx, s, job, entry)
	}

	res, err := o.client.Fetch(ctx, s, ValueURL(o.client.BaseURL, job.DatasetID), job.DatasetTitle, job.TargetRootDir)
	if err != nil {
		classified := classify(job.DatasetID, err)
		entry.WithError(classified).Error("download failed")
		return failed(classified)
	}

	elapsed := time.Since(start)
	entry.WithField("path", res.Path).Infof("download finished in %s", elapsed.Round(time.Second))
	return Outcome{
		State:            StateSucceeded,
		LocalPath:        res.Path,
		BytesTransferred: res.Bytes,
		Checksum:         res.Checksum,
		Elapsed:          elapsed,
	}
}

func (o *Orchestrator) trigger(ctx context.Context, s *Session, job DownloadJob, entry *log.Entry) Outcome {
	status, body, err := o.client.Trigger(ctx, s, job.DatasetID)
	if err != nil {
		entry.WithError(err).Error("retrieval trigger failed")
		return failed(classify(job.DatasetID, err))
	}
	switch status {
	case http.StatusAccepted:
		entry.Info("retrieval triggered")
		return Outcome{State: StateNotYetAvailable}
	case http.StatusOK:
		entry.Warn("expected 202 from retrieval trigger, got 200")
		return Outcome{State: StateNotYetAvailable}
	}
	entry.Errorf("retrieval trigger returned %d: %s", status, body)
	return failed(&Error{Kind: KindTriggerFailed, DatasetID: job.DatasetID, StatusCode: status, Body: body})
}
