package remote

import (
	"context"
	"fmt"
	"io"
	"time"

	conf "github.com/webitel/batch-sync/config"
	"github.com/webitel/batch-sync/internal/model"
)

// ContentTypeNDJSON is the media type of uploaded JSONL payloads.
const ContentTypeNDJSON = "application/x-ndjson"

// Client moves JSONL content to and from the remote analytics service.
type Client interface {
	Upload(ctx context.Context, tenantID int64, content io.Reader, resourceName string, mode model.TransferMode) error
	// Download returns ok=false when the remote side has nothing newer than since.
	Download(ctx context.Context, tenantID int64, since *time.Time, resourceName string) (body io.ReadCloser, ok bool, err error)
}

// New builds the client selected by cfg.Kind.
func New(ctx context.Context, cfg *conf.RemoteConfig) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("remote config is nil")
	}
	switch cfg.Kind {
	case conf.RemoteKindS3:
		return NewS3Client(ctx, cfg.S3)
	case conf.RemoteKindHTTP:
		return NewHTTPClient(cfg.HTTP)
	default:
		return nil, fmt.Errorf("unknown remote kind %q", cfg.Kind)
	}
}
