package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	conf "github.com/webitel/batch-sync/config"
	"github.com/webitel/batch-sync/internal/model"
)

const (
	batchPath      = "/api/1.0/batch/{resource}"
	tenantHeader   = "X-Tenant-Id"
	defaultTimeout = 30 * time.Second
)

// HTTPClient talks to the remote batch API over HTTP.
type HTTPClient struct {
	client *resty.Client
}

func NewHTTPClient(cfg *conf.HTTPConfig) (*HTTPClient, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("http: base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", ContentTypeNDJSON)
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	return &HTTPClient{client: client}, nil
}

func (c *HTTPClient) Upload(ctx context.Context, tenantID int64, content io.Reader, resourceName string, mode model.TransferMode) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader(tenantHeader, strconv.FormatInt(tenantID, 10)).
		SetHeader("Content-Type", ContentTypeNDJSON).
		SetPathParam("resource", resourceName).
		SetQueryParam("uploadType", string(mode)).
		SetBody(content).
		Post(batchPath)
	if err != nil {
		return fmt.Errorf("http: upload %s: %w", resourceName, err)
	}
	if resp.IsError() {
		return fmt.Errorf("http: upload %s: status %d: %s", resourceName, resp.StatusCode(), resp.String())
	}
	return nil
}

func (c *HTTPClient) Download(ctx context.Context, tenantID int64, since *time.Time, resourceName string) (io.ReadCloser, bool, error) {
	req := c.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader(tenantHeader, strconv.FormatInt(tenantID, 10)).
		SetPathParam("resource", resourceName)
	if since != nil {
		req.SetQueryParam("resourceLastModifiedDate", strconv.FormatInt(since.UnixMilli(), 10))
	}

	resp, err := req.Get(batchPath)
	if err != nil {
		return nil, false, fmt.Errorf("http: download %s: %w", resourceName, err)
	}
	body := resp.RawBody()

	switch code := resp.StatusCode(); {
	case code == http.StatusNoContent || code == http.StatusNotFound:
		body.Close()
		return nil, false, nil
	case code >= http.StatusBadRequest:
		msg, _ := io.ReadAll(io.LimitReader(body, 4096))
		body.Close()
		return nil, false, fmt.Errorf("http: download %s: status %d: %s", resourceName, code, msg)
	}
	return body, true, nil
}
