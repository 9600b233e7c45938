package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

// AttachmentStore keeps uploaded ticket, note and announcement files under opaque keys.
type AttachmentStore interface {
	Save(ctx context.Context, originalName, contentType string, r io.Reader) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes a stored attachment; a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

var attachmentKeyPattern = regexp.MustCompile(`^FILE_[0-9a-f]{32}(\.[a-z0-9]{1,10})?$`)

// newAttachmentKey builds FILE_<uuid><ext>, keeping only a short alphanumeric extension of the original name.
func newAttachmentKey(originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	if len(ext) < 2 || len(ext) > 11 || !isAlnum(ext[1:]) {
		ext = ""
	}
	return "FILE_" + strings.ReplaceAll(uuid.NewString(), "-", "") + ext
}

func isAlnum(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// ValidAttachmentKey reports whether key has the shape produced by Save; anything else is rejected before touching storage.
func ValidAttachmentKey(key string) bool {
	return attachmentKeyPattern.MatchString(key)
}

// NewAttachmentStore picks the backend named in cfg.AttachmentBackend.
func NewAttachmentStore(ctx context.Context, cfg Config) (AttachmentStore, error) {
	switch cfg.AttachmentBackend {
	case "", "local":
		return NewLocalAttachmentStore(cfg.AttachmentDir)
	case "s3":
		return NewS3AttachmentStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown attachment backend %q", cfg.AttachmentBackend)
	}
}

// LocalAttachmentStore writes attachments into a single directory.
type LocalAttachmentStore struct {
	dir string
}

func NewLocalAttachmentStore(dir string) (*LocalAttachmentStore, error) {
	if dir == "" {
		return nil, errors.New("attachment dir path is empty")
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure attachment dir %s: %w", dir, err)
	}
	return &LocalAttachmentStore{dir: dir}, nil
}

func (s *LocalAttachmentStore) Save(_ context.Context, originalName, _ string, r io.Reader) (string, error) {
	key := newAttachmentKey(originalName)
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, key)); err != nil {
		return "", err
	}
	return key, nil
}

func (s *LocalAttachmentStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if !ValidAttachmentKey(key) {
		return nil, ErrNotFound
	}
	f, err := os.Open(filepath.Join(s.dir, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (s *LocalAttachmentStore) Delete(_ context.Context, key string) error {
	if !ValidAttachmentKey(key) {
		return ErrNotFound
	}
	if err := os.Remove(filepath.Join(s.dir, key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// s3ObjectAPI is the part of *s3.Client the store needs.
type s3ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3AttachmentStore keeps attachments in an S3-compatible bucket.
type S3AttachmentStore struct {
	client s3ObjectAPI
	bucket string
}

// NewS3AttachmentStore uses static credentials when both keys are set and the default AWS chain otherwise.
// S3Endpoint points the client at MinIO or another S3-compatible service.
func NewS3AttachmentStore(ctx context.Context, cfg Config) (*S3AttachmentStore, error) {
	if cfg.S3Bucket == "" {
		return nil, errors.New("S3_BUCKET is required for the s3 attachment backend")
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3AttachmentStore{client: client, bucket: cfg.S3Bucket}, nil
}

func (s *S3AttachmentStore) Save(ctx context.Context, originalName, contentType string, r io.Reader) (string, error) {
	// the upload size is already capped by the HTTP layer; a seekable body lets the SDK sign the payload
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	key := newAttachmentKey(originalName)
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("put attachment %s: %w", key, err)
	}
	return key, nil
}

func (s *S3AttachmentStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if !ValidAttachmentKey(key) {
		return nil, ErrNotFound
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get attachment %s: %w", key, err)
	}
	return out.Body, nil
}

func (s *S3AttachmentStore) Delete(ctx context.Context, key string) error {
	if !ValidAttachmentKey(key) {
		return ErrNotFound
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete attachment %s: %w", key, err)
	}
	return nil
}
