package model

import "time"

type Direction string

const (
	DirectionExport Direction = "export"
	DirectionImport Direction = "import"
)

// SyncJob is the job persisted in Redis. It must be JSON-serializable.
type SyncJob struct {
	JobID        string            `json:"job_id"`
	HistoryID    int64             `json:"history_id"`
	Direction    Direction         `json:"direction"`
	ResourceName string            `json:"resource_name"`
	DelegateName string            `json:"delegate_name"`
	TenantID     int64             `json:"tenant_id"`
	UserID       int64             `json:"user_id"`
	FieldNames   []string          `json:"field_names,omitempty"`
	FieldMapping map[string]string `json:"field_mapping,omitempty"`
	// LastModified is Unix milliseconds; nil means a full transfer.
	LastModified *int64 `json:"last_modified,omitempty"`
}

func (j SyncJob) LastModifiedTime() *time.Time {
	if j.LastModified == nil {
		return nil
	}
	t := time.UnixMilli(*j.LastModified)
	return &t
}
