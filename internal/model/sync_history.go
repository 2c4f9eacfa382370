package model

type SyncStatus string

const (
	SyncStatusPending    SyncStatus = "pending"
	SyncStatusProcessing SyncStatus = "processing"
	SyncStatusDone       SyncStatus = "done"
	SyncStatusFailed     SyncStatus = "failed"
)

type NewSyncHistory struct {
	JobID        string     `db:"job_id"`
	TenantID     int64      `db:"tenant_id"`
	Direction    Direction  `db:"direction"`
	ResourceName string     `db:"resource_name"`
	Status       SyncStatus `db:"status"`
	CreatedAt    int64      `db:"created_at"`
	CreatedBy    int64      `db:"created_by"`
}

type UpdateSyncStatus struct {
	ID      int64      `db:"id"`
	Status  SyncStatus `db:"status"`
	Items   *int64     `db:"items"`
	Message string     `db:"message"`
}
