package images

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	smithyendpoints "github.com/aws/smithy-go/endpoints"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// S3Config options for the S3 blob store.
type S3Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing
	PublicBaseURL   string // Base URL the site loads images from; derived from bucket and region if empty
	KeyPrefix       string // Object key prefix (default: "images/")
}

type s3API interface {
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3BlobStore keeps uploaded images in an S3 bucket and references them by
// public URL.
type S3BlobStore struct {
	client   s3API
	uploader uploader
	bucket   string
	baseURL  string
	prefix   string
}

type resolverV2 struct {
	endpoint string
	region   string
}

func (r *resolverV2) ResolveEndpoint(ctx context.Context, params s3.EndpointParameters) (smithyendpoints.Endpoint, error) {
	if params.Region != nil && *params.Region == r.region && params.Bucket != nil {
		base, err := url.Parse(r.endpoint)
		if err != nil {
			return smithyendpoints.Endpoint{}, err
		}
		return smithyendpoints.Endpoint{URI: *base.JoinPath(*params.Bucket)}, nil
	}
	return s3.NewDefaultEndpointResolverV2().ResolveEndpoint(ctx, params)
}

// NewS3BlobStore creates a blob store backed by S3 or an S3-compatible
// service.
func NewS3BlobStore(ctx context.Context, cfg S3Config) (*S3BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "images/"
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.EndpointResolverV2 = &resolverV2{endpoint: cfg.Endpoint, region: cfg.Region}
		}
	})

	base := cfg.PublicBaseURL
	switch {
	case base != "":
	case cfg.Endpoint != "":
		base = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	default:
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}

	return &S3BlobStore{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		baseURL:  strings.TrimRight(base, "/"),
		prefix:   cfg.KeyPrefix,
	}, nil
}

func extension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ""
}

func (b *S3BlobStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	key := b.prefix + uuid.NewString() + extension(contentType)
	_, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to upload %s", key)
	}
	return b.baseURL + "/" + key, nil
}

func (b *S3BlobStore) Release(ctx context.Context, ref string) error {
	if !b.Owns(ref) {
		return nil
	}
	key := strings.TrimPrefix(ref, b.baseURL+"/")
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound") {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to delete %s", key)
	}
	return nil
}

func (b *S3BlobStore) Owns(ref string) bool {
	return strings.HasPrefix(ref, b.baseURL+"/"+b.prefix)
}
