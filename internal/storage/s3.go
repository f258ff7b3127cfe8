package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/OFFIS-RIT/aai-resources/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultPrefix is the key prefix snapshots are uploaded under.
const DefaultPrefix = "snapshots/"

// NewS3Client builds a path-style client from the AWS_* environment.
func NewS3Client(ctx context.Context) (*s3.Client, error) {
	region := util.GetEnv("AWS_REGION")
	endpoint := util.GetEnv("AWS_ENDPOINT")
	accessKey := util.GetEnv("AWS_ACCESS_KEY")
	secretKey := util.GetEnv("AWS_SECRET_KEY")

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)),
	}
	if endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(endpoint))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return client, nil
}

type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// SnapshotBucket stores graph snapshot files under a key prefix of one
// bucket. It satisfies snapshot.Remote.
type SnapshotBucket struct {
	api     objectAPI
	client  *s3.Client
	bucket  string
	prefix  string
	retries int
}

type BucketOption func(*SnapshotBucket)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) BucketOption {
	return func(b *SnapshotBucket) {
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		b.prefix = prefix
	}
}

// WithRetries sets how often an upload is attempted.
func WithRetries(n int) BucketOption {
	return func(b *SnapshotBucket) {
		b.retries = n
	}
}

func NewSnapshotBucket(client *s3.Client, bucket string, opts ...BucketOption) *SnapshotBucket {
	b := newBucket(client, bucket, opts...)
	b.client = client
	return b
}

func newBucket(api objectAPI, bucket string, opts ...BucketOption) *SnapshotBucket {
	b := &SnapshotBucket{
		api:     api,
		bucket:  bucket,
		prefix:  DefaultPrefix,
		retries: 3,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(b)
	}
	return b
}

// Key returns the object key for a snapshot file name.
func (b *SnapshotBucket) Key(name string) string {
	return b.prefix + path.Base(name)
}

// Upload stores body as name and returns the object key.
func (b *SnapshotBucket) Upload(ctx context.Context, name string, body io.ReadSeeker) (string, error) {
	key := b.Key(name)
	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/json"
	}
	err := util.RetryErrWithContext(ctx, b.retries, 500*time.Millisecond, func(ctx context.Context) error {
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return err
		}
		_, err := b.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(b.bucket),
			Key:         aws.String(key),
			Body:        body,
			ContentType: aws.String(contentType),
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload snapshot to S3: %w", err)
	}
	return key, nil
}

// Download opens the object at key. A bare file name is resolved under the
// prefix.
func (b *SnapshotBucket) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if !strings.Contains(key, "/") {
		key = b.Key(key)
	}
	result, err := b.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot %s from S3: %w", key, err)
	}
	return result.Body, nil
}

// Delete removes the object at key.
func (b *SnapshotBucket) Delete(ctx context.Context, key string) error {
	_, err := b.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete snapshot %s from S3: %w", key, err)
	}
	return nil
}

// List returns every snapshot key under the prefix.
func (b *SnapshotBucket) List(ctx context.Context) ([]string, error) {
	var keys []string
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.prefix),
	}

	for {
		listOutput, err := b.api.ListObjectsV2(ctx, listInput)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects with prefix %s: %w", b.prefix, err)
		}

		for _, obj := range listOutput.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}

		if listOutput.IsTruncated != nil && *listOutput.IsTruncated {
			listInput.ContinuationToken = listOutput.NextContinuationToken
		} else {
			break
		}
	}

	return keys, nil
}

// DownloadLink presigns a GET for key against publicEndpoint, keeping any
// path prefix the endpoint carries.
func (b *SnapshotBucket) DownloadLink(ctx context.Context, key, publicEndpoint string) (string, error) {
	if b.client == nil {
		return "", fmt.Errorf("download links require an S3 client")
	}
	publicURL, err := url.Parse(publicEndpoint)
	if err != nil || publicURL.Scheme == "" || publicURL.Host == "" {
		return "", fmt.Errorf("invalid public endpoint: %s", publicEndpoint)
	}
	prefix := strings.TrimSuffix(publicURL.Path, "/")
	publicBaseEndpoint := fmt.Sprintf("%s://%s", publicURL.Scheme, publicURL.Host)

	// The signature covers the Host header, so presign against the public host.
	presignClient := s3.NewFromConfig(
		aws.Config{
			Region:      b.client.Options().Region,
			Credentials: b.client.Options().Credentials,
			HTTPClient:  b.client.Options().HTTPClient,
		},
		func(o *s3.Options) {
			o.BaseEndpoint = aws.String(publicBaseEndpoint)
			o.UsePathStyle = true
		},
	)

	out, err := s3.NewPresignClient(presignClient).PresignGetObject(
		ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
		},
		s3.WithPresignExpires(15*time.Minute),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate download link: %w", err)
	}

	if prefix != "" {
		signedURL, parseErr := url.Parse(out.URL)
		if parseErr != nil {
			return "", fmt.Errorf("failed to parse presigned url: %w", parseErr)
		}
		signedURL.Path = prefix + signedURL.Path
		return signedURL.String(), nil
	}

	return out.URL, nil
}
