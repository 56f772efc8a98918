package task

import (
	"Go_Sentinel/config"
	"Go_Sentinel/internal/repo"
	"Go_Sentinel/internal/sentinel"
	"Go_Sentinel/model"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const l2Title = "S2A_MSIL2A_20210913T083601_N0301_R064_T37UCS_20210913T113119"

type published struct {
	task  string
	body  []byte
	delay time.Duration
}

type fakePublisher struct {
	mu      sync.Mutex
	tasks   []published
	retries []published
	dlq     []published
	err     error
}

func (p *fakePublisher) PublishTask(_ context.Context, task string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.tasks = append(p.tasks, published{task: task, body: body})
	return nil
}

func (p *fakePublisher) PublishRetry(_ context.Context, task string, body []byte, delay time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retries = append(p.retries, published{task: task, body: body, delay: delay})
	return nil
}

func (p *fakePublisher) PublishDLQ(_ context.Context, task string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dlq = append(p.dlq, published{task: task, body: body})
	return nil
}

type fakeRunner struct {
	outcome sentinel.Outcome
	jobs    []sentinel.DownloadJob
}

func (r *fakeRunner) Run(_ context.Context, job sentinel.DownloadJob) sentinel.Outcome {
	r.jobs = append(r.jobs, job)
	return r.outcome
}

func newTestService(t *testing.T, runner Runner) (*Service, *repo.Catalog, *fakePublisher) {
	t.Helper()
	db, err := repo.OpenDatabase(config.Config{
		DBDriver: "sqlite",
		DBName:   filepath.Join(t.TempDir(), "catalog.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.CloseDatabase(db) })
	require.NoError(t, repo.MigrateCatalog(db))
	require.NoError(t, db.Create(&[]model.Dataset{
		{GUID: "g1", Title: l2Title},
		{GUID: "g2", Title: "S2B_MSIL1C_20210914T083601_N0301_R064_T37UCS_20210914T113119"},
		{GUID: "g3", Title: "broken"},
	}).Error)

	catalog := repo.NewCatalog(db)
	pub := &fakePublisher{}
	return NewService(catalog, pub, runner, "alice:secret", "/data"), catalog, pub
}

func TestDecodeMessage(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"dataset_guid":"g1","dataset_title":"t","attempt":2}`))
	require.NoError(t, err)
	assert.Equal(t, TaskName, msg.Task)
	assert.Equal(t, 2, msg.Attempt)

	_, err = DecodeMessage([]byte(`{"attempt":1}`))
	assert.Error(t, err)

	_, err = DecodeMessage([]byte(`not json`))
	assert.Error(t, err)
}

func TestEnqueueDataset(t *testing.T) {
	ctx := context.Background()
	svc, catalog, pub := newTestService(t, &fakeRunner{})

	queued, err := svc.EnqueueDataset(ctx, "g1", l2Title)
	require.NoError(t, err)
	assert.True(t, queued)
	require.Len(t, pub.tasks, 1)
	assert.Equal(t, TaskName, pub.tasks[0].task)

	var msg DownloadMessage
	require.NoError(t, json.Unmarshal(pub.tasks[0].body, &msg))
	assert.Equal(t, "g1", msg.DatasetGUID)
	assert.Equal(t, l2Title, msg.DatasetTitle)
	assert.Zero(t, msg.Attempt)
	assert.NotEmpty(t, msg.ID)

	row, err := catalog.FindTask(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskPending, row.Status)
}

func TestEnqueueDatasetRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	svc, _, pub := newTestService(t, &fakeRunner{})

	_, err := svc.EnqueueDataset(ctx, "", l2Title)
	assert.Error(t, err)

	_, err = svc.EnqueueDataset(ctx, "g3", "broken")
	assert.ErrorIs(t, err, sentinel.ErrMalformedTitle)
	assert.Empty(t, pub.tasks)
}

func TestEnqueueDatasetPublishFailure(t *testing.T) {
	ctx := context.Background()
	svc, catalog, pub := newTestService(t, &fakeRunner{})
	pub.err = errors.New("broker down")

	_, err := svc.EnqueueDataset(ctx, "g1", l2Title)
	require.Error(t, err)

	row, err := catalog.FindTask(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskFailed, row.Status)
	assert.Contains(t, row.ErrorMsg, "broker down")
}

func TestEnqueueCatalog(t *testing.T) {
	ctx := context.Background()
	svc, catalog, pub := newTestService(t, &fakeRunner{})

	_, err := catalog.EnsureTask(ctx, "g2", "")
	require.NoError(t, err)
	require.NoError(t, catalog.MarkCompleted(ctx, "g2", repo.TaskResult{LocalPath: "/data/x.zip"}))

	count, err := svc.EnqueueCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "completed and malformed datasets are not published")
	require.Len(t, pub.tasks, 1)
}

func TestProcessSuccess(t *testing.T) {
	ctx := context.Background()
	runner := &fakeRunner{outcome: sentinel.Outcome{
		State:            sentinel.StateSucceeded,
		LocalPath:        "/data/L2/2021/09/13/data.zip",
		BytesTransferred: 100,
		Checksum:         "abc",
		Elapsed:          2 * time.Second,
	}}
	svc, catalog, _ := newTestService(t, runner)

	err := svc.Process(ctx, DownloadMessage{Task: TaskName, DatasetGUID: "g1", DatasetTitle: l2Title})
	require.NoError(t, err)
	require.Len(t, runner.jobs, 1)
	assert.Equal(t, sentinel.DownloadJob{
		DatasetID:     "g1",
		DatasetTitle:  l2Title,
		Credentials:   "alice:secret",
		TargetRootDir: "/data",
	}, runner.jobs[0])

	row, err := catalog.FindTask(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, row.Status)
	assert.Equal(t, "/data/L2/2021/09/13/data.zip", row.LocalPath)
	assert.Equal(t, int64(100), row.Size)
	assert.Equal(t, "abc", row.Checksum)

	err = svc.Process(ctx, DownloadMessage{Task: TaskName, DatasetGUID: "g1", DatasetTitle: l2Title})
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
	assert.Len(t, runner.jobs, 1, "completed dataset is not downloaded again")
}

func TestProcessNotYetAvailable(t *testing.T) {
	ctx := context.Background()
	svc, catalog, _ := newTestService(t, &fakeRunner{outcome: sentinel.Outcome{State: sentinel.StateNotYetAvailable}})

	err := svc.Process(ctx, DownloadMessage{Task: TaskName, DatasetGUID: "g1", DatasetTitle: l2Title})
	assert.ErrorIs(t, err, sentinel.ErrRetryLater)

	row, err := catalog.FindTask(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskRunning, row.Status)
}

func TestProcessFailed(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, &fakeRunner{outcome: sentinel.Outcome{
		State: sentinel.StateFailed,
		Error: &sentinel.Error{Kind: sentinel.KindTriggerFailed, DatasetID: "g1", StatusCode: 503, Body: "down"},
	}})

	err := svc.Process(ctx, DownloadMessage{Task: TaskName, DatasetGUID: "g1", DatasetTitle: l2Title})
	var classified *sentinel.Error
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, sentinel.KindTriggerFailed, classified.Kind)
	assert.NotErrorIs(t, err, sentinel.ErrRetryLater)
}

func TestProcessJournalFailure(t *testing.T) {
	ctx := context.Background()
	db, err := repo.OpenDatabase(config.Config{
		DBDriver: "sqlite",
		DBName:   filepath.Join(t.TempDir(), "closed.db"),
	})
	require.NoError(t, err)
	require.NoError(t, repo.CloseDatabase(db))

	runner := &fakeRunner{outcome: sentinel.Outcome{State: sentinel.StateSucceeded, LocalPath: "/data/x.zip"}}
	svc := NewService(repo.NewCatalog(db), &fakePublisher{}, runner, "alice:secret", "/data")

	err = svc.Process(ctx, DownloadMessage{Task: TaskName, DatasetGUID: "g1", DatasetTitle: l2Title})
	var journalErr *JournalError
	require.ErrorAs(t, err, &journalErr)
	assert.Equal(t, "ensure", journalErr.Op)
	assert.Empty(t, runner.jobs)
}
