package repo

import (
	"Go_Sentinel/model"
	"context"
	"time"

	"gorm.io/gorm"
)

// TaskResult is what the journal keeps about a successful download.
type TaskResult struct {
	LocalPath string
	Size      int64
	Checksum  string
	Elapsed   time.Duration
}

// Catalog reads datasets to download and journals download outcomes.
type Catalog struct {
	db *gorm.DB
}

// NewCatalog wraps an open database handle.
func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

// ListDatasets returns every catalog row.
func (c *Catalog) ListDatasets(ctx context.Context) ([]model.Dataset, error) {
	var datasets []model.Dataset
	err := c.db.WithContext(ctx).Raw("SELECT guid, title FROM datasets").Scan(&datasets).Error
	return datasets, err
}

// ListPending returns datasets that have no completed download. limit <= 0 means all.
func (c *Catalog) ListPending(ctx context.Context, limit int) ([]model.Dataset, error) {
	var datasets []model.Dataset
	query := c.db.WithContext(ctx).
		Table("datasets AS d").
		Select("d.guid, d.title").
		Joins("LEFT JOIN download_task t ON t.dataset_guid = d.guid").
		Where("t.id IS NULL OR t.status <> ?", model.TaskCompleted).
		Order("d.guid")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Scan(&datasets).Error
	return datasets, err
}

// FindTask returns the journal row for a dataset or gorm.ErrRecordNotFound.
func (c *Catalog) FindTask(ctx context.Context, guid string) (*model.DownloadTask, error) {
	var task model.DownloadTask
	if err := c.db.WithContext(ctx).Where("dataset_guid = ?", guid).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks returns the most recently updated journal rows.
func (c *Catalog) ListTasks(ctx context.Context, limit int) ([]model.DownloadTask, error) {
	if limit <= 0 {
		limit = 20
	}
	var tasks []model.DownloadTask
	err := c.db.WithContext(ctx).
		Order("updated_at DESC").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

// EnsureTask returns the journal row for a dataset, creating a pending one if missing.
func (c *Catalog) EnsureTask(ctx context.Context, guid, title string) (*model.DownloadTask, error) {
	task := model.DownloadTask{}
	err := c.db.WithContext(ctx).
		Where(model.DownloadTask{DatasetGUID: guid}).
		Attrs(model.DownloadTask{DatasetTitle: title, Status: model.TaskPending}).
		FirstOrCreate(&task).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// QueueTask marks a dataset as pending again unless it already completed.
// It reports false for completed datasets.
func (c *Catalog) QueueTask(ctx context.Context, guid, title string) (bool, error) {
	task, err := c.EnsureTask(ctx, guid, title)
	if err != nil {
		return false, err
	}
	if task.Status == model.TaskCompleted {
		return false, nil
	}
	err = c.db.WithContext(ctx).Model(&model.DownloadTask{}).
		Where("id = ?", task.ID).
		Updates(map[string]interface{}{
			"dataset_title": title,
			"status":        model.TaskPending,
			"retry_count":   0,
			"error_msg":     "",
			"next_retry_at": nil,
		}).Error
	return err == nil, err
}

// MarkRunning flags the dataset as in progress. It reports false when the
// dataset already completed, in which case nothing must be downloaded.
// A row left in running by a lost worker is taken over.
func (c *Catalog) MarkRunning(ctx context.Context, guid string, attempt int) (bool, error) {
	startedAt := time.Now()
	res := c.db.WithContext(ctx).Model(&model.DownloadTask{}).
		Where("dataset_guid = ? AND status <> ?", guid, model.TaskCompleted).
		Updates(map[string]interface{}{
			"status":      model.TaskRunning,
			"retry_count": attempt,
			"started_at":  &startedAt,
			"error_msg":   "",
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkCompleted records a successful download.
func (c *Catalog) MarkCompleted(ctx context.Context, guid string, result TaskResult) error {
	finishedAt := time.Now()
	return c.db.WithContext(ctx).Model(&model.DownloadTask{}).
		Where("dataset_guid = ?", guid).
		Updates(map[string]interface{}{
			"status":        model.TaskCompleted,
			"local_path":    result.LocalPath,
			"size":          result.Size,
			"checksum":      result.Checksum,
			"elapsed_ms":    result.Elapsed.Milliseconds(),
			"error_msg":     "",
			"next_retry_at": nil,
			"finished_at":   &finishedAt,
		}).Error
}

// MarkRetrying records that the dataset will be tried again at nextRetryAt.
func (c *Catalog) MarkRetrying(ctx context.Context, guid string, attempt int, nextRetryAt time.Time, reason string) error {
	return c.db.WithContext(ctx).Model(&model.DownloadTask{}).
		Where("dataset_guid = ?", guid).
		Updates(map[string]interface{}{
			"status":        model.TaskRetrying,
			"error_msg":     reason,
			"retry_count":   attempt,
			"next_retry_at": &nextRetryAt,
		}).Error
}

// MarkFailed records a permanent failure.
func (c *Catalog) MarkFailed(ctx context.Context, guid string, reason string) error {
	finishedAt := time.Now()
	return c.db.WithContext(ctx).Model(&model.DownloadTask{}).
		Where("dataset_guid = ?", guid).
		Updates(map[string]interface{}{
			"status":        model.TaskFailed,
			"error_msg":     reason,
			"next_retry_at": nil,
			"finished_at":   &finishedAt,
		}).Error
}

// Ping checks that the database answers.
func (c *Catalog) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
