package service

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/webitel/batch-sync/internal/errors"
	"github.com/webitel/batch-sync/internal/model"
)

type trackedReader struct {
	io.Reader
	closed bool
}

func (r *trackedReader) Close() error {
	r.closed = true
	return nil
}

type fakeStore struct {
	exportTasks   []*model.ExportTask
	importTasks   []*model.ImportTask
	deletedExport []int64
	deletedImport []int64
	content       *trackedReader
	addErr        error
}

func (f *fakeStore) AddExportTask(_ context.Context, task *model.ExportTask) (*model.ExportTask, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	cp := *task
	cp.ID = int64(len(f.exportTasks) + 1)
	f.exportTasks = append(f.exportTasks, &cp)
	return &cp, nil
}

func (f *fakeStore) OpenExportContent(_ context.Context, _ int64) (io.ReadCloser, error) {
	f.content = &trackedReader{Reader: bytes.NewBufferString("{\"id\":1}\n")}
	return f.content, nil
}

func (f *fakeStore) DeleteExportTask(_ context.Context, id int64) error {
	f.deletedExport = append(f.deletedExport, id)
	return nil
}

func (f *fakeStore) AddImportTask(_ context.Context, task *model.ImportTask) (*model.ImportTask, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	cp := *task
	cp.ID = int64(len(f.importTasks) + 100)
	f.importTasks = append(f.importTasks, &cp)
	return &cp, nil
}

func (f *fakeStore) DeleteImportTask(_ context.Context, id int64) error {
	f.deletedImport = append(f.deletedImport, id)
	return nil
}

type fakeExporter struct {
	result model.TaskResult
	calls  int
}

func (f *fakeExporter) Execute(_ context.Context, task *model.ExportTask) (model.TaskResult, error) {
	f.calls++
	r := f.result
	r.TaskID = task.ID
	return r, nil
}

type fakeImporter struct {
	result model.TaskResult
	calls  int
}

func (f *fakeImporter) Execute(_ context.Context, task *model.ImportTask) (model.TaskResult, error) {
	f.calls++
	r := f.result
	r.TaskID = task.ID
	return r, nil
}

type upload struct {
	tenantID int64
	body     string
	resource string
	mode     model.TransferMode
}

type fakeClient struct {
	uploads   []upload
	uploadErr error

	downloadBody  *trackedReader
	downloadCalls int
	downloadSince *time.Time
}

func (f *fakeClient) Upload(_ context.Context, tenantID int64, content io.Reader, resourceName string, mode model.TransferMode) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	b, _ := io.ReadAll(content)
	f.uploads = append(f.uploads, upload{tenantID: tenantID, body: string(b), resource: resourceName, mode: mode})
	return nil
}

func (f *fakeClient) Download(_ context.Context, _ int64, since *time.Time, _ string) (io.ReadCloser, bool, error) {
	f.downloadCalls++
	f.downloadSince = since
	if f.downloadBody == nil {
		return nil, false, nil
	}
	return f.downloadBody, true, nil
}

type recorder struct {
	messages []string
	failOn   string
}

func (r *recorder) notify(_ context.Context, message string) error {
	r.messages = append(r.messages, message)
	if r.failOn != "" && r.failOn == message {
		return stderrors.New("sink closed")
	}
	return nil
}

type harness struct {
	store    *fakeStore
	exporter *fakeExporter
	importer *fakeImporter
	client   *fakeClient
	rec      *recorder
	sync     *Synchronizer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    &fakeStore{},
		exporter: &fakeExporter{result: model.TaskResult{Status: model.TaskStatusCompleted}},
		importer: &fakeImporter{result: model.TaskResult{Status: model.TaskStatusCompleted}},
		client:   &fakeClient{},
		rec:      &recorder{},
	}
	s, err := NewSynchronizer(h.store, h.exporter, h.importer, h.client, nil)
	require.NoError(t, err)
	h.sync = s
	return h
}

func TestNewSynchronizerRequiresDependencies(t *testing.T) {
	_, err := NewSynchronizer(nil, &fakeExporter{}, &fakeImporter{}, &fakeClient{}, nil)
	assert.Error(t, err)
}

func TestExportResource(t *testing.T) {
	t.Run("incremental export uploads and deletes the task", func(t *testing.T) {
		h := newHarness(t)
		h.exporter.result.TotalItems = 3
		since := time.UnixMilli(1700000000000)

		items, err := h.sync.ExportResource(context.Background(), ExportRequest{
			DelegateName: "blog",
			TenantID:     7,
			FieldNames:   []string{"id", "title"},
			Notify:       h.rec.notify,
			LastModified: &since,
			ResourceName: "Blog",
			UserID:       11,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), items)

		assert.Equal(t, []string{
			"Exporting resource: Blog",
			"Exported 3 items for resource: Blog",
			"Uploading resource: Blog",
			"Uploading resource complete for: Blog",
		}, h.rec.messages)

		require.Len(t, h.store.exportTasks, 1)
		task := h.store.exportTasks[0]
		assert.Equal(t, "modified_sortable ge 1700000000000", task.Parameters[model.FilterParameter])
		assert.Equal(t, model.TaskStatusInitial, task.Status)
		assert.Equal(t, model.ContentTypeJSONL, task.ContentType)
		assert.Equal(t, "blog", task.DelegateName)
		assert.Equal(t, []string{"id", "title"}, task.FieldNames)

		require.Len(t, h.client.uploads, 1)
		assert.Equal(t, model.TransferModeIncremental, h.client.uploads[0].mode)
		assert.Equal(t, int64(7), h.client.uploads[0].tenantID)
		assert.Equal(t, "{\"id\":1}\n", h.client.uploads[0].body)
		assert.True(t, h.store.content.closed)
		assert.Equal(t, []int64{task.ID}, h.store.deletedExport)
	})

	t.Run("full export carries no filter", func(t *testing.T) {
		h := newHarness(t)
		h.exporter.result.TotalItems = 1

		_, err := h.sync.ExportResource(context.Background(), ExportRequest{ResourceName: "Blog"})
		require.NoError(t, err)

		_, ok := h.store.exportTasks[0].Parameters[model.FilterParameter]
		assert.False(t, ok)
		require.Len(t, h.client.uploads, 1)
		assert.Equal(t, model.TransferModeFull, h.client.uploads[0].mode)
	})

	t.Run("empty export skips upload", func(t *testing.T) {
		h := newHarness(t)

		items, err := h.sync.ExportResource(context.Background(), ExportRequest{ResourceName: "Blog", Notify: h.rec.notify})
		require.NoError(t, err)
		assert.Zero(t, items)

		assert.Empty(t, h.client.uploads)
		assert.Empty(t, h.store.deletedExport)
		assert.Equal(t, []string{
			"Exporting resource: Blog",
			"Exported 0 items for resource: Blog",
			"Nothing to upload",
		}, h.rec.messages)
	})

	t.Run("failed task is kept and reported", func(t *testing.T) {
		h := newHarness(t)
		h.exporter.result = model.TaskResult{Status: model.TaskStatusFailed, Error: "delegate missing"}

		_, err := h.sync.ExportResource(context.Background(), ExportRequest{ResourceName: "Blog", Notify: h.rec.notify})
		require.Error(t, err)

		assert.Contains(t, err.Error(), "Blog")
		assert.True(t, errors.Is(err, ErrTaskNotCompleted))
		assert.Equal(t, codes.Aborted, errors.Code(err))
		assert.Empty(t, h.store.deletedExport)
		assert.Empty(t, h.client.uploads)
		assert.Equal(t, []string{"Exporting resource: Blog"}, h.rec.messages)
	})

	t.Run("upload error closes the content and keeps the task", func(t *testing.T) {
		h := newHarness(t)
		h.exporter.result.TotalItems = 2
		uploadErr := stderrors.New("connection reset")
		h.client.uploadErr = uploadErr

		_, err := h.sync.ExportResource(context.Background(), ExportRequest{ResourceName: "Blog"})

		assert.ErrorIs(t, err, uploadErr)
		assert.True(t, h.store.content.closed)
		assert.Empty(t, h.store.deletedExport)
	})

	t.Run("notifier error aborts the export", func(t *testing.T) {
		h := newHarness(t)
		h.exporter.result.TotalItems = 2
		h.rec.failOn = "Uploading resource: Blog"

		_, err := h.sync.ExportResource(context.Background(), ExportRequest{ResourceName: "Blog", Notify: h.rec.notify})

		assert.EqualError(t, err, "sink closed")
		assert.Empty(t, h.client.uploads)
	})

	t.Run("task creation error stops before execution", func(t *testing.T) {
		h := newHarness(t)
		h.store.addErr = stderrors.New("db down")

		_, err := h.sync.ExportResource(context.Background(), ExportRequest{ResourceName: "Blog"})

		assert.EqualError(t, err, "db down")
		assert.Zero(t, h.exporter.calls)
	})
}

func TestImportResource(t *testing.T) {
	t.Run("no updates creates no task", func(t *testing.T) {
		h := newHarness(t)

		items, err := h.sync.ImportResource(context.Background(), ImportRequest{ResourceName: "Blog", Notify: h.rec.notify})
		require.NoError(t, err)
		assert.Zero(t, items)

		assert.Equal(t, []string{"Checking updates for: Blog", "No updates for resource: Blog"}, h.rec.messages)
		assert.Empty(t, h.store.importTasks)
		assert.Zero(t, h.importer.calls)
	})

	t.Run("completed import deletes the task once", func(t *testing.T) {
		h := newHarness(t)
		h.importer.result.TotalItems = 2
		h.client.downloadBody = &trackedReader{Reader: bytes.NewBufferString("{\"a\":1}\n{\"a\":2}\n")}
		since := time.UnixMilli(1700000000000)

		items, err := h.sync.ImportResource(context.Background(), ImportRequest{
			DelegateName: "blog",
			TenantID:     7,
			FieldMapping: map[string]string{"a": "b"},
			Notify:       h.rec.notify,
			LastModified: &since,
			ResourceName: "Blog",
			UserID:       11,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), items)

		assert.Equal(t, []string{
			"Checking updates for: Blog",
			"Importing resource: Blog",
			"Imported 2 items for resource: Blog",
		}, h.rec.messages)
		require.Len(t, h.store.importTasks, 1)
		task := h.store.importTasks[0]
		assert.Equal(t, model.DefaultImportBatchSize, task.BatchSize)
		assert.Equal(t, model.OperationCreate, task.Operation)
		assert.Equal(t, model.ContentTypeJSONL, task.ContentType)
		assert.Equal(t, "{\"a\":1}\n{\"a\":2}\n", string(task.Content))
		assert.Equal(t, map[string]string{"a": "b"}, task.FieldMapping)
		assert.Equal(t, []int64{task.ID}, h.store.deletedImport)
		assert.True(t, h.client.downloadBody.closed)
		assert.Equal(t, &since, h.client.downloadSince)
	})

	t.Run("failed import keeps the task", func(t *testing.T) {
		h := newHarness(t)
		h.importer.result = model.TaskResult{Status: model.TaskStatusFailed}
		h.client.downloadBody = &trackedReader{Reader: bytes.NewBufferString("{}\n")}

		_, err := h.sync.ImportResource(context.Background(), ImportRequest{ResourceName: "Blog"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "Blog")
		assert.True(t, errors.Is(err, ErrTaskNotCompleted))
		assert.Empty(t, h.store.deletedImport)
	})

	t.Run("notifier error closes the download", func(t *testing.T) {
		h := newHarness(t)
		h.client.downloadBody = &trackedReader{Reader: bytes.NewBufferString("{}\n")}
		h.rec.failOn = "Importing resource: Blog"

		_, err := h.sync.ImportResource(context.Background(), ImportRequest{ResourceName: "Blog", Notify: h.rec.notify})

		assert.Error(t, err)
		assert.True(t, h.client.downloadBody.closed)
		assert.Empty(t, h.store.importTasks)
	})
}

func TestNotifyLogsProgressUnderEventID(t *testing.T) {
	h := newHarness(t)
	var buf bytes.Buffer
	h.sync.log = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, err := h.sync.ImportResource(context.Background(), ImportRequest{ResourceName: "Blog"})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for i, want := range []string{"Checking updates for: Blog", "No updates for resource: Blog"} {
		entry := gjson.Parse(lines[i])
		assert.Equal(t, "batch_sync.sync.notify", entry.Get("msg").String())
		assert.Equal(t, want, entry.Get("message").String())
		assert.Equal(t, "Blog", entry.Get("resource").String())
	}
}
