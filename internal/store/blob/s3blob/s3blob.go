// Package s3blob implements blob.Backend over an S3-compatible object
// store via github.com/minio/minio-go/v7, grounded on
// other_examples/manifests listing minio-go for themadorg-madmail (a
// real mail server) and on the jarrod-lowe-jmap-service-email example's
// use of an object-store SDK to pull mail content.
package s3blob

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"io"

	"github.com/cuemby/warren/internal/store/blob"
	"github.com/cuemby/warren/internal/store/storeerr"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Backend stores blob content as objects named <hex[0:2]>/<hex> in one bucket.
type Backend struct {
	client *minio.Client
	bucket string
}

// Config names the endpoint and credentials to open a Backend with.
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
}

// Open connects to the object store and ensures Bucket exists.
func Open(ctx context.Context, cfg Config) (*Backend, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, storeerr.Wrap(storeerr.KindIO, "s3blob.Open", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.KindIO, "s3blob.Open", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, storeerr.Wrap(storeerr.KindIO, "s3blob.Open", err)
		}
	}

	return &Backend{client: client, bucket: cfg.Bucket}, nil
}

func objectName(hash blob.Hash) string {
	hexHash := hex.EncodeToString(hash[:])
	return hexHash[:2] + "/" + hexHash
}

// Read implements blob.Backend.
func (b *Backend) Read(ctx context.Context, hash blob.Hash, r blob.ByteRange) ([]byte, error) {
	opts := minio.GetObjectOptions{}
	if r.Length > 0 {
		if err := opts.SetRange(r.Offset, r.Offset+r.Length-1); err != nil {
			return nil, storeerr.Wrap(storeerr.KindInvalid, "s3blob.Read", err)
		}
	}

	obj, err := b.client.GetObject(ctx, b.bucket, objectName(hash), opts)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.KindIO, "s3blob.Read", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil, storeerr.New(storeerr.KindNotFound, "s3blob.Read", "blob not found")
		}
		return nil, storeerr.Wrap(storeerr.KindIO, "s3blob.Read", err)
	}
	return data, nil
}

// Write implements blob.Backend. CAS-by-hash: an existing object of the
// same name is assumed byte-identical and is not rewritten.
func (b *Backend) Write(ctx context.Context, hash blob.Hash, data []byte) error {
	name := objectName(hash)
	if _, err := b.client.StatObject(ctx, b.bucket, name, minio.StatObjectOptions{}); err == nil {
		return nil
	}
	_, err := b.client.PutObject(ctx, b.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return storeerr.Wrap(storeerr.KindIO, "s3blob.Write", err)
	}
	return nil
}

// Delete implements blob.Backend.
func (b *Backend) Delete(ctx context.Context, hash blob.Hash) error {
	err := b.client.RemoveObject(ctx, b.bucket, objectName(hash), minio.RemoveObjectOptions{})
	if err != nil {
		return storeerr.Wrap(storeerr.KindIO, "s3blob.Delete", err)
	}
	return nil
}
