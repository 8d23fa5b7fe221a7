package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// minioAPI is the part of *minio.Client the gateway calls.
type minioAPI interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error
	PresignedGetObject(ctx context.Context, bucket, key string, expires time.Duration, params url.Values) (*url.URL, error)
	PresignedPutObject(ctx context.Context, bucket, key string, expires time.Duration) (*url.URL, error)
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

var newMinioClient = func(endpoint string, opts *minio.Options) (minioAPI, error) {
	return minio.New(endpoint, opts)
}

// MinioGateway talks to a MinIO (or other S3-compatible) server via minio-go.
type MinioGateway struct {
	client minioAPI
	bucket string
}

// NewMinioGateway connects to cfg.Endpoint, which may be a bare host:port or
// a URL whose scheme decides TLS.
func NewMinioGateway(cfg Config) (*MinioGateway, error) {
	host, secure, err := splitEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	client, err := newMinioClient(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}
	return &MinioGateway{client: client, bucket: cfg.Bucket}, nil
}

func splitEndpoint(endpoint string) (string, bool, error) {
	if endpoint == "" {
		return "", false, fmt.Errorf("minio driver needs an endpoint")
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		// host:port without a scheme
		return endpoint, false, nil
	}
	return u.Host, u.Scheme == "https", nil
}

func (g *MinioGateway) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := g.client.PutObject(ctx, g.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	return err
}

func (g *MinioGateway) Delete(ctx context.Context, key string) error {
	return g.client.RemoveObject(ctx, g.bucket, key, minio.RemoveObjectOptions{})
}

func (g *MinioGateway) Presign(ctx context.Context, key string, dir Direction, ttl time.Duration) (string, error) {
	var (
		u   *url.URL
		err error
	)
	if dir == Upload {
		u, err = g.client.PresignedPutObject(ctx, g.bucket, key, ttl)
	} else {
		u, err = g.client.PresignedGetObject(ctx, g.bucket, key, ttl, url.Values{})
	}
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (g *MinioGateway) List(ctx context.Context, prefix string) ([]Object, error) {
	// stops the listing goroutine if we return early
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var out []Object
	for info := range g.client.ListObjects(ctx, g.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, info.Err
		}
		out = append(out, Object{Key: info.Key, Size: info.Size, LastModified: info.LastModified})
	}
	return out, nil
}
