// Package objectstore is the gateway to the S3-compatible bucket holding
// track audio. Two drivers are provided: the AWS SDK (default) and minio-go.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Direction selects what a presigned URL allows.
type Direction int

const (
	Download Direction = iota
	Upload
)

func (d Direction) String() string {
	if d == Upload {
		return "upload"
	}
	return "download"
}

// Object is a listed bucket entry.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Gateway is the object store capability used by the track services.
// Every failure is returned to the caller.
type Gateway interface {
	// Put writes size bytes from r under key. Writing an existing key
	// overwrites it.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	Presign(ctx context.Context, key string, dir Direction, ttl time.Duration) (string, error)
	List(ctx context.Context, prefix string) ([]Object, error)
}

// Config describes the bucket and how to reach it.
type Config struct {
	Driver    string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	// Endpoint overrides the provider endpoint, e.g. "http://127.0.0.1:9000".
	Endpoint string
}

// New builds the gateway for cfg.Driver ("s3" or "minio").
func New(ctx context.Context, cfg Config) (Gateway, error) {
	switch cfg.Driver {
	case "", "s3":
		return NewS3Gateway(ctx, cfg)
	case "minio":
		return NewMinioGateway(cfg)
	default:
		return nil, fmt.Errorf("unknown object store driver %q", cfg.Driver)
	}
}
