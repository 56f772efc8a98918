package model

import "time"

const (
	TaskPending   = "pending"
	TaskRunning   = "running"
	TaskRetrying  = "retrying"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

// DownloadTask journals the outcome of the latest download attempt for a dataset.
type DownloadTask struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	DatasetGUID  string `gorm:"column:dataset_guid;type:varchar(64);uniqueIndex;not null" json:"dataset_guid"`
	DatasetTitle string `gorm:"column:dataset_title;type:varchar(255);not null" json:"dataset_title"`

	Status      string     `gorm:"column:status;type:varchar(32);index;not null" json:"status"`
	LocalPath   string     `gorm:"column:local_path;type:text" json:"local_path"`
	Size        int64      `gorm:"column:size;default:0" json:"size"`
	Checksum    string     `gorm:"column:checksum;type:varchar(64)" json:"checksum"`
	ElapsedMs   int64      `gorm:"column:elapsed_ms;default:0" json:"elapsed_ms"`
	ErrorMsg    string     `gorm:"column:error_msg;type:text" json:"error_msg"`
	RetryCount  int        `gorm:"column:retry_count;default:0" json:"retry_count"`
	NextRetryAt *time.Time `gorm:"column:next_retry_at" json:"next_retry_at"`
	StartedAt   *time.Time `gorm:"column:started_at" json:"started_at"`
	FinishedAt  *time.Time `gorm:"column:finished_at" json:"finished_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (DownloadTask) TableName() string {
	return "download_task"
}
