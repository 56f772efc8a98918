package dto

import (
	"Go_Sentinel/model"
	"time"
)

// EnqueueResponse reports whether a message was published.
type EnqueueResponse struct {
	GUID   string `json:"guid"`
	Queued bool   `json:"queued"`
	Reason string `json:"reason,omitempty"`
}

// CatalogEnqueueResponse is the response for enqueueing the whole catalog.
type CatalogEnqueueResponse struct {
	Published int `json:"published"`
}

// TaskResponse is a journal row as shown by the admin API.
type TaskResponse struct {
	GUID        string     `json:"guid"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	LocalPath   string     `json:"local_path,omitempty"`
	Size        int64      `json:"size"`
	Checksum    string     `json:"checksum,omitempty"`
	ElapsedMs   int64      `json:"elapsed_ms"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retry_count"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func NewTaskResponse(t model.DownloadTask) TaskResponse {
	return TaskResponse{
		GUID:        t.DatasetGUID,
		Title:       t.DatasetTitle,
		Status:      t.Status,
		LocalPath:   t.LocalPath,
		Size:        t.Size,
		Checksum:    t.Checksum,
		ElapsedMs:   t.ElapsedMs,
		Error:       t.ErrorMsg,
		RetryCount:  t.RetryCount,
		NextRetryAt: t.NextRetryAt,
		FinishedAt:  t.FinishedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}
