// Package s3cas stores CAS objects in an S3-compatible bucket (MinIO, AWS S3).
//
// Objects live at <prefix><cid>. The CAS never overwrites an existing key and
// re-hashes every object it reads back.
package s3cas

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"xdao.co/canonproof/cidutil"
	"xdao.co/canonproof/storage"
)

const defaultPrefix = "cas/"

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	// Prefix is prepended to every object key. Defaults to "cas/".
	Prefix string
	// CreateBucket makes the bucket on Open when it does not exist.
	CreateBucket bool
}

func (c Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("s3cas: endpoint is required")
	}
	if c.Bucket == "" {
		return errors.New("s3cas: bucket is required")
	}
	return nil
}

// CAS is a storage.CAS backed by an S3 bucket.
type CAS struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ storage.CAS = (*CAS)(nil)

// New builds the client without contacting the server.
func New(cfg Config) (*CAS, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("s3cas: client: %w", err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &CAS{client: client, bucket: cfg.Bucket, prefix: prefix}, nil
}

// Open is New followed by a bucket existence check.
func Open(ctx context.Context, cfg Config) (*CAS, error) {
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}
	exists, err := c.client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("s3cas: bucket exists: %w", err)
	}
	if !exists {
		if !cfg.CreateBucket {
			return nil, fmt.Errorf("s3cas: bucket missing: %s", cfg.Bucket)
		}
		if err := c.client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("s3cas: make bucket: %w", err)
		}
	}
	return c, nil
}

func (c *CAS) objectKey(id cid.Cid) string { return c.prefix + id.String() }

func (c *CAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, err
	}
	existing, err := c.Get(ctx, id)
	switch {
	case err == nil:
		if !bytes.Equal(existing, data) {
			return cid.Undef, storage.ErrImmutable
		}
		return id, nil
	case errors.Is(err, storage.ErrCIDMismatch):
		return cid.Undef, storage.ErrImmutable
	case !storage.IsNotFound(err):
		return cid.Undef, err
	}

	_, err = c.client.PutObject(ctx, c.bucket, c.objectKey(id), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return cid.Undef, fmt.Errorf("s3cas: put %s: %w", id, err)
	}
	return id, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	obj, err := c.client.GetObject(ctx, c.bucket, c.objectKey(id), minio.GetObjectOptions{})
	if err != nil {
		return nil, mapErr(err)
	}
	defer obj.Close()
	// GetObject is lazy; a missing key only surfaces on the first read.
	b, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapErr(err)
	}
	got, err := cidutil.CIDv1RawSHA256CID(b)
	if err != nil {
		return nil, err
	}
	if !got.Equals(id) {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, nil
	}
	_, err := c.client.StatObject(ctx, c.bucket, c.objectKey(id), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	err = mapErr(err)
	if storage.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func mapErr(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return storage.ErrNotFound
	default:
		return err
	}
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
