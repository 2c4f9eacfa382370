package model

import "time"

type TaskStatus string

const (
	TaskStatusInitial    TaskStatus = "INITIAL"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusFailed     TaskStatus = "FAILED"
)

type ContentType string

// ContentTypeJSONL is one JSON object per line.
const ContentTypeJSONL ContentType = "JSONL"

type Operation string

// OperationCreate is the only operation import tasks are run with.
const OperationCreate Operation = "CREATE"

type TransferMode string

const (
	TransferModeFull        TransferMode = "FULL"
	TransferModeIncremental TransferMode = "INCREMENTAL"
)

// DefaultImportBatchSize is the number of records handed to an import delegate at once.
const DefaultImportBatchSize = 50

// ExportTask is the staging record of one export run.
type ExportTask struct {
	ID           int64             `db:"id"`
	TenantID     int64             `db:"tenant_id"`
	UserID       int64             `db:"user_id"`
	ResourceName string            `db:"resource_name"`
	ContentType  ContentType       `db:"content_type"`
	Status       TaskStatus        `db:"status"`
	TotalItems   int64             `db:"total_items"`
	FieldNames   []string          `db:"field_names"`
	Parameters   map[string]string `db:"parameters"`
	DelegateName string            `db:"delegate_name"`
	ErrorMessage string            `db:"error_message"`
	CreatedAt    time.Time         `db:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at"`
}

// ImportTask is the staging record of one import run. Content holds the
// downloaded payload.
type ImportTask struct {
	ID             int64             `db:"id"`
	TenantID       int64             `db:"tenant_id"`
	UserID         int64             `db:"user_id"`
	BatchSize      int               `db:"batch_size"`
	ResourceName   string            `db:"resource_name"`
	Content        []byte            `db:"content"`
	ContentType    ContentType       `db:"content_type"`
	Status         TaskStatus        `db:"status"`
	TotalItems     int64             `db:"total_items"`
	ProcessedItems int64             `db:"processed_items"`
	FieldMapping   map[string]string `db:"field_mapping"`
	Operation      Operation         `db:"operation"`
	Parameters     map[string]string `db:"parameters"`
	DelegateName   string            `db:"delegate_name"`
	ErrorMessage   string            `db:"error_message"`
	CreatedAt      time.Time         `db:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at"`
}

// TaskResult is what an executor reports once a task has run to completion.
type TaskResult struct {
	TaskID     int64
	Status     TaskStatus
	TotalItems int64
	Error      string
}

func (r TaskResult) Completed() bool { return r.Status == TaskStatusCompleted }
