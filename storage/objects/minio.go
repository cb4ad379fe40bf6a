// Package objects keeps uploaded files in an S3 compatible object store.
package objects

import (
	"context"
	"io"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/trezcool/alumni/core"
)

type MinioStore struct {
	client *minio.Client
	conf   core.StorageConfig
}

var _ core.ObjectStore = (*MinioStore)(nil)

// NewMinioStore connects to the object store and creates the bucket if needed.
func NewMinioStore(ctx context.Context, conf core.StorageConfig) (*MinioStore, error) {
	client, err := minio.New(conf.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.AccessKeyID, conf.SecretAccessKey, ""),
		Secure: conf.UseSSL,
		Region: conf.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "initializing minio client")
	}

	exists, err := client.BucketExists(ctx, conf.Bucket)
	if err != nil {
		return nil, errors.Wrapf(err, "checking bucket %s", conf.Bucket)
	}
	if !exists {
		if err = client.MakeBucket(ctx, conf.Bucket, minio.MakeBucketOptions{Region: conf.Region}); err != nil {
			return nil, errors.Wrapf(err, "creating bucket %s", conf.Bucket)
		}
	}
	return &MinioStore{client: client, conf: conf}, nil
}

func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.conf.Bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	return errors.Wrapf(err, "uploading %s", key)
}

// URL returns a presigned download URL valid for the configured expiry.
func (s *MinioStore) URL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.conf.Bucket, key, s.conf.URLExpiry, url.Values{})
	if err != nil {
		return "", errors.Wrapf(err, "presigning %s", key)
	}
	return u.String(), nil
}

func (s *MinioStore) Remove(ctx context.Context, key string) error {
	return errors.Wrapf(s.client.RemoveObject(ctx, s.conf.Bucket, key, minio.RemoveObjectOptions{}), "removing %s", key)
}
