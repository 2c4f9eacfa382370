package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	conf "github.com/webitel/batch-sync/config"
	"github.com/webitel/batch-sync/internal/executor"
	"github.com/webitel/batch-sync/internal/model"
)

func newTestDelegate(t *testing.T) (*TableDelegate, pgxmock.PgxPoolIface) {
	t.Helper()
	s, mock := newMockStore(t)
	d, err := NewTableDelegate(s, conf.DelegateConfig{Name: "blog", Table: "cms.blog"})
	require.NoError(t, err)
	return d, mock
}

func TestNewTableDelegate_RequiresTable(t *testing.T) {
	s, _ := newMockStore(t)
	_, err := NewTableDelegate(s, conf.DelegateConfig{Name: "blog"})
	assert.Error(t, err)
}

func TestTableDelegate_ExportFull(t *testing.T) {
	d, mock := newTestDelegate(t)
	mock.ExpectQuery(`SELECT row_to_json\(t\) FROM "cms"\."blog" t WHERE t\."tenant_id" = \$1 ORDER BY t\."modified_date"`).
		WithArgs(int64(7)).
		WillReturnRows(mock.NewRows([]string{"row_to_json"}).
			AddRow([]byte(`{"id":1}`)).
			AddRow([]byte(`{"id":2}`)))

	var got []string
	err := d.Export(context.Background(), executor.ExportScope{TenantID: 7}, func(record []byte) error {
		got = append(got, string(record))
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{`{"id":1}`, `{"id":2}`}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableDelegate_ExportModifiedSince(t *testing.T) {
	d, mock := newTestDelegate(t)
	since := time.UnixMilli(1700000000000)
	mock.ExpectQuery(`WHERE t\."tenant_id" = \$1 AND t\."modified_date" >= \$2`).
		WithArgs(int64(7), since).
		WillReturnRows(mock.NewRows([]string{"row_to_json"}))

	filter, err := model.ParseFilter(model.ModifiedSinceFilter(since))
	require.NoError(t, err)

	err = d.Export(context.Background(), executor.ExportScope{TenantID: 7, Filter: &filter}, func([]byte) error { return nil })
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableDelegate_ExportRejectsOtherFields(t *testing.T) {
	d, _ := newTestDelegate(t)
	filter := model.Filter{Field: "title", Op: model.FilterEq, Value: "x"}

	err := d.Export(context.Background(), executor.ExportScope{TenantID: 7, Filter: &filter}, func([]byte) error { return nil })
	assert.ErrorContains(t, err, "unsupported filter field")
}

func TestTableDelegate_Create(t *testing.T) {
	d, mock := newTestDelegate(t)
	mock.ExpectExec(`INSERT INTO "cms"\."blog"`).
		WithArgs([]byte(`[{"id":1},{"id":2}]`), int64(7), "tenant_id").
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	err := d.Create(context.Background(), executor.ImportScope{TenantID: 7}, [][]byte{[]byte(`{"id":1}`), []byte(`{"id":2}`)})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableDelegate_CreateEmptyBatch(t *testing.T) {
	d, mock := newTestDelegate(t)

	require.NoError(t, d.Create(context.Background(), executor.ImportScope{TenantID: 7}, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
