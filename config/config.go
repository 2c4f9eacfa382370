package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/webitel/batch-sync/internal/errors"
)

const (
	RemoteKindS3   = "s3"
	RemoteKindHTTP = "http"

	DirectionExport = "export"
	DirectionImport = "import"
)

type AppConfig struct {
	File      string           `json:"-"`
	Consul    *ConsulConfig    `json:"consul,omitempty"`
	Redis     *RedisConfig     `json:"redis,omitempty"`
	Database  *DatabaseConfig  `json:"database,omitempty"`
	Remote    *RemoteConfig    `json:"remote,omitempty"`
	Sync      *SyncConfig      `json:"sync,omitempty"`
	Delegates []DelegateConfig `json:"delegates,omitempty"`
}

type ConsulConfig struct {
	Id            string `json:"id"`
	Address       string `json:"address"`
	PublicAddress string `json:"publicAddress"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type DatabaseConfig struct {
	Url string `json:"url"`
}

type RemoteConfig struct {
	Kind string      `json:"kind"`
	S3   *S3Config   `json:"s3,omitempty"`
	HTTP *HTTPConfig `json:"http,omitempty"`
}

type S3Config struct {
	Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
	Region    string `json:"region" mapstructure:"region"`
	Bucket    string `json:"bucket" mapstructure:"bucket"`
	AccessKey string `json:"accessKey" mapstructure:"access_key"`
	SecretKey string `json:"secretKey" mapstructure:"secret_key"`
	Prefix    string `json:"prefix" mapstructure:"prefix"`
	PathStyle bool   `json:"pathStyle" mapstructure:"path_style"`
}

type HTTPConfig struct {
	BaseURL string        `json:"baseUrl" mapstructure:"base_url"`
	Token   string        `json:"token" mapstructure:"token"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

type SyncConfig struct {
	Workers          int              `json:"workers"`
	Schedule         string           `json:"schedule"`
	RunOnStart       bool             `json:"runOnStart"`
	LockTTL          time.Duration    `json:"lockTtl"`
	StagingRetention time.Duration    `json:"stagingRetention"`
	Resources        []ResourceConfig `json:"resources,omitempty"`
}

// ResourceConfig declares one dataset kept in step with the remote side.
type ResourceConfig struct {
	Name         string            `json:"name" mapstructure:"name"`
	DelegateName string            `json:"delegate" mapstructure:"delegate"`
	TenantID     int64             `json:"tenantId" mapstructure:"tenant_id"`
	UserID       int64             `json:"userId" mapstructure:"user_id"`
	Directions   []string          `json:"directions" mapstructure:"directions"`
	FieldNames   []string          `json:"fieldNames" mapstructure:"field_names"`
	FieldMapping map[string]string `json:"fieldMapping" mapstructure:"field_mapping"`
}

// DelegateConfig binds a delegate name to a local table.
type DelegateConfig struct {
	Name           string `json:"name" mapstructure:"name"`
	Table          string `json:"table" mapstructure:"table"`
	TenantColumn   string `json:"tenantColumn" mapstructure:"tenant_column"`
	ModifiedColumn string `json:"modifiedColumn" mapstructure:"modified_column"`
}

func LoadConfig() (*AppConfig, error) {
	bindFlagsAndEnv()

	configFile := getConfigFilePath()
	if configFile != "" {
		if err := loadFromFile(configFile); err != nil {
			return nil, err
		}
	}

	cfg, err := buildAppConfig(configFile)
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func bindFlagsAndEnv() {
	pflag.String("config_file", "", "Configuration file in JSON format")

	// database
	pflag.String("data_source", "", "Data source")

	// consul
	pflag.String("id", "", "Service id")
	pflag.String("consul", "", "Host to consul")
	pflag.String("grpc_addr", "", "Public gRPC address with port")

	// redis
	pflag.String("redis_addr", "localhost:6379", "Redis address")
	pflag.String("redis_password", "", "Redis password")
	pflag.Int("redis_db", 0, "Redis DB number")

	// remote
	pflag.String("remote_kind", RemoteKindS3, "Remote transfer kind: s3 or http")
	pflag.String("s3_endpoint", "", "S3 endpoint")
	pflag.String("s3_region", "us-east-1", "S3 region")
	pflag.String("s3_bucket", "", "S3 bucket")
	pflag.String("s3_access_key", "", "S3 access key")
	pflag.String("s3_secret_key", "", "S3 secret key")
	pflag.String("s3_prefix", "batch", "S3 key prefix")
	pflag.Bool("s3_path_style", true, "Use path style S3 addressing")
	pflag.String("remote_url", "", "Base URL of the remote batch API")
	pflag.String("remote_token", "", "Bearer token for the remote batch API")
	pflag.Duration("remote_timeout", 30*time.Second, "Remote batch API timeout")

	// sync
	pflag.Int("workers", 4, "Number of concurrent sync workers")
	pflag.String("schedule", "", "Cron schedule of the periodic sync")
	pflag.Bool("run_on_start", false, "Enqueue every resource on start")
	pflag.Duration("lock_ttl", time.Hour, "How long a queued resource sync blocks another one")
	pflag.Duration("staging_retention", 24*time.Hour, "Age after which empty export tasks are purged, 0 keeps them")

	pflag.Parse()

	_ = viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Explicit mapping
	_ = viper.BindEnv("id", "CONSUL_ID")
	_ = viper.BindEnv("consul", "CONSUL_HOST")
	_ = viper.BindEnv("grpc_addr", "GRPC_ADDR")
	_ = viper.BindEnv("data_source", "DATA_SOURCE")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis_db", "REDIS_DB")
	_ = viper.BindEnv("s3_access_key", "S3_ACCESS_KEY")
	_ = viper.BindEnv("s3_secret_key", "S3_SECRET_KEY")
	_ = viper.BindEnv("remote_token", "REMOTE_TOKEN")
}

func getConfigFilePath() string {
	file := viper.GetString("config_file")
	if file == "" {
		file = os.Getenv("BATCH_SYNC_CONFIG_FILE")
	}
	return file
}

func loadFromFile(path string) error {
	viper.SetConfigFile(path)
	viper.SetConfigType("json")
	if err := viper.ReadInConfig(); err != nil {
		return errors.New(fmt.Sprintf("could not load config file: %s", err.Error()))
	}
	return nil
}

func buildAppConfig(file string) (*AppConfig, error) {
	cfg := &AppConfig{
		File:     file,
		Database: &DatabaseConfig{Url: viper.GetString("data_source")},
		Consul: &ConsulConfig{
			Id:            viper.GetString("id"),
			Address:       viper.GetString("consul"),
			PublicAddress: viper.GetString("grpc_addr"),
		},
		Redis: &RedisConfig{
			Addr:     viper.GetString("redis_addr"),
			Password: viper.GetString("redis_password"),
			DB:       viper.GetInt("redis_db"),
		},
		Remote: &RemoteConfig{
			Kind: strings.ToLower(viper.GetString("remote_kind")),
			S3: &S3Config{
				Endpoint:  viper.GetString("s3_endpoint"),
				Region:    viper.GetString("s3_region"),
				Bucket:    viper.GetString("s3_bucket"),
				AccessKey: viper.GetString("s3_access_key"),
				SecretKey: viper.GetString("s3_secret_key"),
				Prefix:    viper.GetString("s3_prefix"),
				PathStyle: viper.GetBool("s3_path_style"),
			},
			HTTP: &HTTPConfig{
				BaseURL: viper.GetString("remote_url"),
				Token:   viper.GetString("remote_token"),
				Timeout: viper.GetDuration("remote_timeout"),
			},
		},
		Sync: &SyncConfig{
			Workers:          viper.GetInt("workers"),
			Schedule:         viper.GetString("schedule"),
			RunOnStart:       viper.GetBool("run_on_start"),
			LockTTL:          viper.GetDuration("lock_ttl"),
			StagingRetention: viper.GetDuration("staging_retention"),
		},
	}

	// Resources and delegates are only declared in the config file.
	if err := viper.UnmarshalKey("resources", &cfg.Sync.Resources); err != nil {
		return nil, errors.New("could not read resources", errors.WithCause(err))
	}
	if err := viper.UnmarshalKey("delegates", &cfg.Delegates); err != nil {
		return nil, errors.New("could not read delegates", errors.WithCause(err))
	}
	for i := range cfg.Sync.Resources {
		if len(cfg.Sync.Resources[i].Directions) == 0 {
			cfg.Sync.Resources[i].Directions = []string{DirectionExport, DirectionImport}
		}
	}
	return cfg, nil
}

func validateConfig(cfg *AppConfig) error {
	if cfg.Database.Url == "" {
		return errors.New("Data source is required")
	}
	if cfg.Consul.Id == "" {
		return errors.New("Service id is required")
	}
	if cfg.Consul.Address == "" {
		return errors.New("Consul address is required")
	}
	if cfg.Consul.PublicAddress == "" {
		return errors.New("gRPC address is required")
	}
	if cfg.Redis.Addr == "" {
		return errors.New("Redis address is required")
	}
	switch cfg.Remote.Kind {
	case RemoteKindS3:
		if cfg.Remote.S3.Bucket == "" {
			return errors.New("S3 bucket is required")
		}
	case RemoteKindHTTP:
		if cfg.Remote.HTTP.BaseURL == "" {
			return errors.New("Remote URL is required")
		}
	default:
		return errors.New(fmt.Sprintf("unknown remote kind %q", cfg.Remote.Kind))
	}

	delegates := make(map[string]struct{}, len(cfg.Delegates))
	for _, d := range cfg.Delegates {
		if d.Name == "" || d.Table == "" {
			return errors.New("Delegate name and table are required")
		}
		delegates[d.Name] = struct{}{}
	}
	for _, r := range cfg.Sync.Resources {
		if r.Name == "" {
			return errors.New("Resource name is required")
		}
		if _, ok := delegates[r.DelegateName]; !ok {
			return errors.New(fmt.Sprintf("resource %s: unknown delegate %q", r.Name, r.DelegateName))
		}
		for _, d := range r.Directions {
			if d != DirectionExport && d != DirectionImport {
				return errors.New(fmt.Sprintf("resource %s: unknown direction %q", r.Name, d))
			}
		}
	}
	return nil
}
