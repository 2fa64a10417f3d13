package images

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func (in *Ingester) SetClock(now func() time.Time) { in.now = now }

type (
	DeleteFunc func(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	UploadFunc func(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
)

func (f DeleteFunc) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	return f(ctx, params, optFns...)
}

func (f UploadFunc) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	return f(ctx, input, opts...)
}

func NewTestS3BlobStore(del DeleteFunc, up UploadFunc, bucket, baseURL string) *S3BlobStore {
	return &S3BlobStore{client: del, uploader: up, bucket: bucket, baseURL: baseURL, prefix: "images/"}
}
