package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	conf "github.com/webitel/batch-sync/config"
	"github.com/webitel/batch-sync/internal/model"
)

// inboundObject is the object the remote side publishes for import.
const inboundObject = "inbound.jsonl"

// objectAPI is the part of *s3.Client used here.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Client exchanges batches through an S3 compatible bucket.
type S3Client struct {
	api    objectAPI
	bucket string
	prefix string
	now    func() time.Time
}

func NewS3Client(ctx context.Context, cfg *conf.S3Config) (*S3Client, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return newS3Client(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Client(api objectAPI, bucket, prefix string) *S3Client {
	return &S3Client{
		api:    api,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		now:    time.Now,
	}
}

func (c *S3Client) Upload(ctx context.Context, tenantID int64, content io.Reader, resourceName string, mode model.TransferMode) error {
	// PutObject needs a seekable body to sign the payload.
	data, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("s3: read content: %w", err)
	}
	key := c.uploadKey(tenantID, resourceName, mode)
	_, err = c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(ContentTypeNDJSON),
	})
	if err != nil {
		return fmt.Errorf("s3: put %s: %w", key, err)
	}
	return nil
}

func (c *S3Client) Download(ctx context.Context, tenantID int64, since *time.Time, resourceName string) (io.ReadCloser, bool, error) {
	key := c.downloadKey(tenantID, resourceName)
	input := &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}
	if since != nil {
		input.IfModifiedSince = aws.Time(*since)
	}

	out, err := c.api.GetObject(ctx, input)
	if err != nil {
		if isAbsent(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("s3: get %s: %w", key, err)
	}
	return out.Body, true, nil
}

func (c *S3Client) uploadKey(tenantID int64, resourceName string, mode model.TransferMode) string {
	return c.key(fmt.Sprintf("%d/%s/%s/%d.jsonl",
		tenantID, resourceName, strings.ToLower(string(mode)), c.now().UnixMilli()))
}

func (c *S3Client) downloadKey(tenantID int64, resourceName string) string {
	return c.key(fmt.Sprintf("%d/%s/%s", tenantID, resourceName, inboundObject))
}

func (c *S3Client) key(rest string) string {
	if c.prefix == "" {
		return rest
	}
	return c.prefix + "/" + rest
}

// isAbsent reports a missing object or one not modified since the request time.
func isAbsent(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotModified", "NoSuchKey":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == http.StatusNotModified
	}
	return false
}
