package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type objectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Store keeps a copy of every export document in a bucket.
type Store struct {
	client     objectPutter
	host       string
	bucketName string
	prefix     string
}

type Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Prefix    string
}

// New buat koneksi MinIO dan pastikan bucket ada
func New(ctx context.Context, opt Options) (*Store, error) {
	cli, err := minio.New(opt.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opt.AccessKey, opt.SecretKey, ""),
		Secure: opt.UseSSL,
		Region: opt.Region,
	})
	if err != nil {
		return nil, err
	}

	exists, err := cli.BucketExists(ctx, opt.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", opt.Bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, opt.Bucket, minio.MakeBucketOptions{Region: opt.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", opt.Bucket, err)
		}
	}

	return newStore(cli, cli.EndpointURL().Host, opt.Bucket, opt.Prefix), nil
}

func newStore(client objectPutter, host, bucket, prefix string) *Store {
	return &Store{client: client, host: host, bucketName: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *Store) objectKey(key string) string {
	key = strings.TrimLeft(key, "/")
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func contentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".json":
		return "application/json"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	}
	return "application/octet-stream"
}

// PutExport uploads data under key and returns its object URL.
func (s *Store) PutExport(ctx context.Context, key string, data []byte) (string, error) {
	object := s.objectKey(key)
	_, err := s.client.PutObject(ctx, s.bucketName, object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:        contentType(object),
		ContentDisposition: mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(object)}),
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", object, err)
	}

	// URL publik kalau bucket public, kalau private pakai presigned URL
	return fmt.Sprintf("http://%s/%s/%s", s.host, s.bucketName, object), nil
}
