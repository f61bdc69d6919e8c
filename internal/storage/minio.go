package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioOptions configures a MinioStore.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
	// PublicURL overrides the default "{scheme}://{endpoint}/{bucket}" base.
	PublicURL  string
	HTTPClient *http.Client
}

// MinioStore uploads objects to an S3-compatible bucket.
type MinioStore struct {
	client     *minio.Client
	bucket     string
	region     string
	publicBase string
	httpClient *http.Client
}

// NewMinioStore connects a client for the configured bucket.
func NewMinioStore(opts MinioOptions) (*MinioStore, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("storage: bucket is required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: minio connection: %w", err)
	}
	base := strings.TrimRight(opts.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if opts.UseSSL {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s/%s", scheme, opts.Endpoint, opts.Bucket)
	}
	return &MinioStore{
		client:     client,
		bucket:     opts.Bucket,
		region:     opts.Region,
		publicBase: base,
		httpClient: opts.HTTPClient,
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("storage: check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("storage: create bucket: %w", err)
	}
	return nil
}

// Upload stores the input under in.Key, overwriting any previous object.
func (s *MinioStore) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	key, err := sanitizeKey(in.Key)
	if err != nil {
		return nil, err
	}
	opts := minio.PutObjectOptions{
		ContentType:  in.ContentType,
		UserTags:     in.Tags,
		UserMetadata: in.Metadata,
	}

	var info minio.UploadInfo
	switch {
	case len(in.Data) > 0:
		if opts.ContentType == "" {
			opts.ContentType = http.DetectContentType(in.Data)
		}
		info, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(in.Data), int64(len(in.Data)), opts)
	case in.Path != "":
		if opts.ContentType == "" {
			opts.ContentType = ContentTypeFor(in.Path)
		}
		info, err = s.client.FPutObject(ctx, s.bucket, key, in.Path, opts)
	case in.URL != "":
		var (
			body        io.ReadCloser
			size        int64
			contentType string
		)
		body, size, contentType, err = fetchRemote(ctx, s.httpClient, in.URL)
		if err != nil {
			return nil, err
		}
		defer body.Close()
		if opts.ContentType == "" {
			opts.ContentType = contentType
		}
		if size <= 0 {
			size = -1
		}
		info, err = s.client.PutObject(ctx, s.bucket, key, body, size, opts)
	default:
		return nil, errNoSource
	}
	if err != nil {
		return nil, fmt.Errorf("storage: put object %s: %w", key, err)
	}
	return &UploadResult{PublicID: key, SecureURL: s.publicBase + "/" + key, Size: info.Size}, nil
}

func (s *MinioStore) KeyFromURL(rawURL string) (string, bool) {
	return keyUnderBase(s.publicBase, rawURL)
}

func (s *MinioStore) URLForKey(ctx context.Context, key string) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", ErrObjectNotFound
	}
	if _, err := s.client.StatObject(ctx, s.bucket, cleanKey, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", ErrObjectNotFound
		}
		return "", fmt.Errorf("storage: stat object %s: %w", cleanKey, err)
	}
	return s.publicBase + "/" + cleanKey, nil
}

var _ Uploader = (*MinioStore)(nil)
