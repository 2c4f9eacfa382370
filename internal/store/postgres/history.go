package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	dberr "github.com/webitel/batch-sync/internal/errors"
	"github.com/webitel/batch-sync/internal/model"
	"github.com/webitel/batch-sync/internal/store"
)

type History struct {
	storage *Store
}

func NewHistoryStore(store *Store) (store.HistoryStore, error) {
	if store == nil {
		return nil, dberr.NewDBInternalError("new_history_store", errors.New("store is nil"))
	}
	return &History{storage: store}, nil
}

func (h *History) InsertSyncHistory(ctx context.Context, input *model.NewSyncHistory) (int64, error) {
	db, err := h.storage.Database()
	if err != nil {
		return 0, dberr.NewDBInternalError("insert_sync_history", err)
	}

	query := `
		INSERT INTO batch_sync.sync_history
			(job_id, tenant_id, direction, resource_name, status, created_at, updated_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7)
		RETURNING id
	`
	var id int64
	err = db.QueryRow(ctx, query,
		input.JobID,
		input.TenantID,
		input.Direction,
		input.ResourceName,
		input.Status,
		input.CreatedAt,
		input.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, mapError("insert_sync_history", err)
	}
	return id, nil
}

func (h *History) UpdateSyncStatus(ctx context.Context, input *model.UpdateSyncStatus) error {
	db, err := h.storage.Database()
	if err != nil {
		return dberr.NewDBInternalError("update_sync_status", err)
	}

	query := `
		UPDATE batch_sync.sync_history
		SET status = $1,
		    updated_at = $2,
		    items = COALESCE($3, items),
		    message = $4
		WHERE id = $5
	`
	cmd, err := db.Exec(ctx, query,
		input.Status,
		time.Now().UnixMilli(),
		input.Items,
		input.Message,
		input.ID,
	)
	if err != nil {
		return mapError("update_sync_status", err)
	}
	if cmd.RowsAffected() == 0 {
		return dberr.NewDBNotFoundError("update_sync_status",
			fmt.Sprintf("no sync history record found for id=%d", input.ID))
	}
	return nil
}

func (h *History) LastSuccessfulSync(ctx context.Context, tenantID int64, direction model.Direction, resourceName string) (*time.Time, error) {
	db, err := h.storage.Database()
	if err != nil {
		return nil, dberr.NewDBInternalError("last_successful_sync", err)
	}

	query := `
		SELECT MAX(created_at)
		FROM batch_sync.sync_history
		WHERE tenant_id = $1 AND direction = $2 AND resource_name = $3 AND status = $4
	`
	var last *int64
	if err := db.QueryRow(ctx, query, tenantID, direction, resourceName, model.SyncStatusDone).Scan(&last); err != nil {
		return nil, mapError("last_successful_sync", err)
	}
	if last == nil {
		return nil, nil
	}
	t := time.UnixMilli(*last)
	return &t, nil
}
