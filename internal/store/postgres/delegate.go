package postgres

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	conf "github.com/webitel/batch-sync/config"
	dberr "github.com/webitel/batch-sync/internal/errors"
	"github.com/webitel/batch-sync/internal/executor"
	"github.com/webitel/batch-sync/internal/model"
)

// TableDelegate exports and imports the rows of a single table as JSON
// objects, one object per row.
type TableDelegate struct {
	storage  *Store
	name     string
	table    string
	tenant   string
	modified string
	// tenantKey is the unquoted tenant column, injected into imported records.
	tenantKey string
}

func NewTableDelegate(storage *Store, cfg conf.DelegateConfig) (*TableDelegate, error) {
	if storage == nil {
		return nil, dberr.Internal("store is nil")
	}
	if cfg.Name == "" || cfg.Table == "" {
		return nil, dberr.InvalidArgument("delegate name and table are required")
	}
	tenant := cfg.TenantColumn
	if tenant == "" {
		tenant = "tenant_id"
	}
	modified := cfg.ModifiedColumn
	if modified == "" {
		modified = "modified_date"
	}
	return &TableDelegate{
		storage:   storage,
		name:      cfg.Name,
		table:     quoteIdent(cfg.Table),
		tenant:    quoteIdent(tenant),
		modified:  quoteIdent(modified),
		tenantKey: tenant,
	}, nil
}

func (d *TableDelegate) Name() string { return d.name }

func (d *TableDelegate) Export(ctx context.Context, scope executor.ExportScope, yield func(record []byte) error) error {
	db, err := d.storage.Database()
	if err != nil {
		return dberr.NewDBInternalError("delegate_export", err)
	}

	query := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select("row_to_json(t)").
		From(d.table + " t").
		Where(sq.Expr("t."+d.tenant+" = ?", scope.TenantID)).
		OrderBy("t." + d.modified)

	if scope.Filter != nil {
		if scope.Filter.Field != model.SortableModifiedField {
			return fmt.Errorf("delegate %s: unsupported filter field %q", d.name, scope.Filter.Field)
		}
		since, err := scope.Filter.Time()
		if err != nil {
			return err
		}
		query = query.Where(sq.Expr("t."+d.modified+" "+scope.Filter.SQLOperator()+" ?", since))
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return dberr.NewDBInternalError("delegate_export", err)
	}
	rows, err := db.Query(ctx, sqlStr, args...)
	if err != nil {
		return mapError("delegate_export", err)
	}
	defer rows.Close()

	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return dberr.NewDBInternalError("delegate_export", err)
		}
		if err := yield(record); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (d *TableDelegate) Create(ctx context.Context, scope executor.ImportScope, records [][]byte) error {
	if len(records) == 0 {
		return nil
	}
	db, err := d.storage.Database()
	if err != nil {
		return dberr.NewDBInternalError("delegate_create", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %[1]s
		SELECT (jsonb_populate_record(NULL::%[1]s, rec || jsonb_build_object($3::text, $2::bigint))).*
		FROM jsonb_array_elements($1::jsonb) AS rec
	`, d.table)

	payload := append([]byte{'['}, bytes.Join(records, []byte{','})...)
	payload = append(payload, ']')

	if _, err := db.Exec(ctx, query, payload, scope.TenantID, d.tenantKey); err != nil {
		return mapError("delegate_create", err)
	}
	return nil
}

// quoteIdent quotes a possibly schema qualified identifier.
func quoteIdent(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}
