package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModifiedSinceFilter(t *testing.T) {
	since := time.UnixMilli(1700000000000)

	assert.Equal(t, "modified_sortable ge 1700000000000", ModifiedSinceFilter(since))
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter(ModifiedSinceFilter(time.UnixMilli(1700000000000)))
	require.NoError(t, err)

	assert.Equal(t, SortableModifiedField, f.Field)
	assert.Equal(t, FilterGe, f.Op)
	assert.Equal(t, ">=", f.SQLOperator())

	ts, err := f.Time()
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), ts.UnixMilli())

	for _, bad := range []string{"", "modified_sortable ge", "a between 1", "a ge 1 2"} {
		_, err := ParseFilter(bad)
		assert.Error(t, err, bad)
	}

	_, err = Filter{Field: "x", Op: FilterGe, Value: "yesterday"}.Time()
	assert.Error(t, err)
}

func TestSyncJobLastModified(t *testing.T) {
	assert.Nil(t, SyncJob{}.LastModifiedTime())

	ms := int64(1700000000000)
	got := SyncJob{LastModified: &ms}.LastModifiedTime()
	require.NotNil(t, got)
	assert.Equal(t, ms, got.UnixMilli())
}
