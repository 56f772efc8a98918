package repo

import (
	"Go_Sentinel/config"
	"Go_Sentinel/model"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestCatalog(t *testing.T) (*Catalog, *gorm.DB) {
	t.Helper()
	db, err := OpenDatabase(config.Config{
		DBDriver: "sqlite",
		DBName:   filepath.Join(t.TempDir(), "catalog.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseDatabase(db) })
	require.NoError(t, MigrateCatalog(db))
	return NewCatalog(db), db
}

func seedDatasets(t *testing.T, db *gorm.DB, datasets ...model.Dataset) {
	t.Helper()
	require.NoError(t, db.Create(&datasets).Error)
}

func TestOpenDatabaseRejectsUnknownDriver(t *testing.T) {
	_, err := OpenDatabase(config.Config{DBDriver: "oracle"})
	require.Error(t, err)
}

func TestListDatasets(t *testing.T) {
	catalog, db := openTestCatalog(t)
	seedDatasets(t, db,
		model.Dataset{GUID: "a", Title: "S2A_MSIL2A_20210913T083601"},
		model.Dataset{GUID: "b", Title: "S2B_MSIL1C_20210914T083601"},
	)

	datasets, err := catalog.ListDatasets(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.Dataset{
		{GUID: "a", Title: "S2A_MSIL2A_20210913T083601"},
		{GUID: "b", Title: "S2B_MSIL1C_20210914T083601"},
	}, datasets)
}

func TestListPendingSkipsCompleted(t *testing.T) {
	ctx := context.Background()
	catalog, db := openTestCatalog(t)
	seedDatasets(t, db,
		model.Dataset{GUID: "a", Title: "S2A_MSIL2A_20210913T083601"},
		model.Dataset{GUID: "b", Title: "S2B_MSIL2A_20210914T083601"},
		model.Dataset{GUID: "c", Title: "S2B_MSIL2A_20210915T083601"},
	)
	_, err := catalog.EnsureTask(ctx, "a", "S2A_MSIL2A_20210913T083601")
	require.NoError(t, err)
	require.NoError(t, catalog.MarkCompleted(ctx, "a", TaskResult{LocalPath: "/data/a.zip", Size: 10}))
	_, err = catalog.EnsureTask(ctx, "b", "S2B_MSIL2A_20210914T083601")
	require.NoError(t, err)
	require.NoError(t, catalog.MarkFailed(ctx, "b", "boom"))

	pending, err := catalog.ListPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "b", pending[0].GUID)
	assert.Equal(t, "c", pending[1].GUID)

	limited, err := catalog.ListPending(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestTaskLifecycle(t *testing.T) {
	ctx := context.Background()
	catalog, _ := openTestCatalog(t)

	task, err := catalog.EnsureTask(ctx, "guid-1", "S2A_MSIL2A_20210913T083601")
	require.NoError(t, err)
	assert.Equal(t, model.TaskPending, task.Status)

	again, err := catalog.EnsureTask(ctx, "guid-1", "ignored")
	require.NoError(t, err)
	assert.Equal(t, task.ID, again.ID)
	assert.Equal(t, "S2A_MSIL2A_20210913T083601", again.DatasetTitle)

	ok, err := catalog.MarkRunning(ctx, "guid-1", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	next := time.Now().Add(2 * time.Second)
	require.NoError(t, catalog.MarkRetrying(ctx, "guid-1", 1, next, "dataset not yet available"))
	task, err = catalog.FindTask(ctx, "guid-1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskRetrying, task.Status)
	assert.Equal(t, 1, task.RetryCount)
	require.NotNil(t, task.NextRetryAt)

	ok, err = catalog.MarkRunning(ctx, "guid-1", 1)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, catalog.MarkCompleted(ctx, "guid-1", TaskResult{
		LocalPath: "/data/L2/2021/09/13/data.zip",
		Size:      100,
		Checksum:  "abc",
		Elapsed:   1500 * time.Millisecond,
	}))

	task, err = catalog.FindTask(ctx, "guid-1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, task.Status)
	assert.Equal(t, int64(100), task.Size)
	assert.Equal(t, int64(1500), task.ElapsedMs)
	assert.Nil(t, task.NextRetryAt)
	require.NotNil(t, task.FinishedAt)

	ok, err = catalog.MarkRunning(ctx, "guid-1", 0)
	require.NoError(t, err)
	assert.False(t, ok, "completed datasets are not run again")

	queued, err := catalog.QueueTask(ctx, "guid-1", "S2A_MSIL2A_20210913T083601")
	require.NoError(t, err)
	assert.False(t, queued)
}

func TestQueueTaskResetsFailed(t *testing.T) {
	ctx := context.Background()
	catalog, _ := openTestCatalog(t)

	_, err := catalog.EnsureTask(ctx, "guid-2", "S2A_MSIL2A_20210913T083601")
	require.NoError(t, err)
	require.NoError(t, catalog.MarkFailed(ctx, "guid-2", "trigger failed"))

	queued, err := catalog.QueueTask(ctx, "guid-2", "S2A_MSIL2A_20210913T083601")
	require.NoError(t, err)
	assert.True(t, queued)

	task, err := catalog.FindTask(ctx, "guid-2")
	require.NoError(t, err)
	assert.Equal(t, model.TaskPending, task.Status)
	assert.Empty(t, task.ErrorMsg)
	assert.Zero(t, task.RetryCount)
}

func TestFindTaskMissing(t *testing.T) {
	catalog, _ := openTestCatalog(t)
	_, err := catalog.FindTask(context.Background(), "nope")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestListTasks(t *testing.T) {
	ctx := context.Background()
	catalog, _ := openTestCatalog(t)
	for _, guid := range []string{"a", "b", "c"} {
		_, err := catalog.EnsureTask(ctx, guid, "S2A_MSIL2A_20210913T083601")
		require.NoError(t, err)
	}
	tasks, err := catalog.ListTasks(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}
