package capture

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/menta2k/face-capture/internal/utils"
)

// Store persists artifacts and returns where each one went
type Store interface {
	Save(ctx context.Context, a *Artifact) (string, error)
}

// LocalStore writes artifacts to a directory as <id><ext>
type LocalStore struct {
	basePath string
}

// NewLocalStore creates the directory if needed
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStore{basePath: basePath}, nil
}

// Save writes the artifact and returns its full path
func (ls *LocalStore) Save(ctx context.Context, a *Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := filepath.Clean(a.Filename())
	if strings.Contains(name, "..") || strings.ContainsRune(name, os.PathSeparator) {
		return "", fmt.Errorf("invalid artifact name %q", a.Filename())
	}

	fullPath := filepath.Join(ls.basePath, name)
	if err := utils.WriteFileAtomic(fullPath, a.Data); err != nil {
		return "", fmt.Errorf("failed to save artifact: %w", err)
	}
	return fullPath, nil
}

// S3Config holds the bucket and credentials for S3Store.
// Empty credentials fall back to the SDK's default chain.
type S3Config struct {
	Bucket          string
	Region          string
	Prefix          string
	Endpoint        string // for S3-compatible services
	AccessKeyID     string
	SecretAccessKey string
}

// S3Store uploads artifacts to an S3 bucket
type S3Store struct {
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Store creates an AWS session for the configured bucket
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket not configured")
	}

	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}

	return &S3Store{
		uploader: s3manager.NewUploader(sess),
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Key returns the object key an artifact is stored under
func (s *S3Store) Key(a *Artifact) string {
	return path.Join(s.prefix, string(a.Kind), a.Filename())
}

// Save uploads the artifact and returns the object location
func (s *S3Store) Save(ctx context.Context, a *Artifact) (string, error) {
	out, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.Key(a)),
		Body:        bytes.NewReader(a.Data),
		ContentType: aws.String(a.ContentType),
		ACL:         aws.String(s3.ObjectCannedACLPrivate),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload artifact: %w", err)
	}
	return out.Location, nil
}
