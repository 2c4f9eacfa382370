package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBase(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("data_source", "postgres://localhost/webitel")
	viper.Set("id", "batch-sync-1")
	viper.Set("consul", "localhost:8500")
	viper.Set("grpc_addr", "127.0.0.1:10100")
	viper.Set("redis_addr", "localhost:6379")
	viper.Set("remote_kind", "S3")
	viper.Set("s3_bucket", "analytics")
	viper.Set("delegates", []map[string]any{
		{"name": "blog", "table": "cms.blog"},
	})
	viper.Set("resources", []map[string]any{
		{"name": "Blog", "delegate": "blog", "tenant_id": 7, "field_names": []string{"id", "title"}},
	})
}

func TestBuildAppConfig(t *testing.T) {
	setBase(t)

	cfg, err := buildAppConfig("")
	require.NoError(t, err)
	require.NoError(t, validateConfig(cfg))

	assert.Equal(t, RemoteKindS3, cfg.Remote.Kind)
	require.Len(t, cfg.Delegates, 1)
	assert.Equal(t, "cms.blog", cfg.Delegates[0].Table)

	require.Len(t, cfg.Sync.Resources, 1)
	res := cfg.Sync.Resources[0]
	assert.Equal(t, int64(7), res.TenantID)
	assert.Equal(t, []string{"id", "title"}, res.FieldNames)
	assert.Equal(t, []string{DirectionExport, DirectionImport}, res.Directions)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func()
		wantErr string
	}{
		{
			name:    "missing data source",
			mutate:  func() { viper.Set("data_source", "") },
			wantErr: "Data source is required",
		},
		{
			name:    "unknown remote kind",
			mutate:  func() { viper.Set("remote_kind", "ftp") },
			wantErr: "unknown remote kind",
		},
		{
			name: "http remote without url",
			mutate: func() {
				viper.Set("remote_kind", "http")
			},
			wantErr: "Remote URL is required",
		},
		{
			name: "resource with unknown delegate",
			mutate: func() {
				viper.Set("resources", []map[string]any{{"name": "Blog", "delegate": "posts"}})
			},
			wantErr: "unknown delegate",
		},
		{
			name: "resource with unknown direction",
			mutate: func() {
				viper.Set("resources", []map[string]any{
					{"name": "Blog", "delegate": "blog", "directions": []string{"sideways"}},
				})
			},
			wantErr: "unknown direction",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBase(t)
			tt.mutate()

			cfg, err := buildAppConfig("")
			require.NoError(t, err)
			assert.ErrorContains(t, validateConfig(cfg), tt.wantErr)
		})
	}
}
