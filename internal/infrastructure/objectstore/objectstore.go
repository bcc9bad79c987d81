package objectstore

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/nerrad567/librarium-core/internal/infrastructure/config"
)

// defaultExpiry applies when the configured presign expiry is not positive.
const defaultExpiry = 15 * time.Minute

// allowedCoverTypes maps accepted cover content types to file extensions.
var allowedCoverTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9/._-]{0,255}$`)

// loadDefaultAWSConfig is a seam for tests.
var loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

// Store issues presigned URLs against an S3-compatible bucket.
//
// The API never proxies image bytes: staff upload covers straight to the
// bucket with a short-lived PUT URL and clients fetch them with a GET URL.
type Store struct {
	presign *s3.PresignClient
	bucket  string
	expiry  time.Duration
}

// PresignedURL is a time-limited request the caller may perform directly.
type PresignedURL struct {
	URL       string      `json:"url"`
	Method    string      `json:"method"`
	Key       string      `json:"key"`
	ExpiresAt time.Time   `json:"expires_at"`
	Headers   http.Header `json:"headers,omitempty"`
}

// New builds a Store from the storage section of the configuration.
//
// Returns ErrDisabled when storage is turned off. Credentials are static
// when provided in config, otherwise the default AWS chain applies.
func New(ctx context.Context, cfg config.StorageConfig, expiry time.Duration) (*Store, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("objectstore: bucket is required")
	}
	if expiry <= 0 {
		expiry = defaultExpiry
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("objectstore: loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Store{
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		expiry:  expiry,
	}, nil
}

// CoverKey returns the object key for a book cover of the given content type.
func CoverKey(bookID, contentType string) (string, error) {
	ext, ok := allowedCoverTypes[strings.ToLower(contentType)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}
	key := path.Join("covers", bookID+ext)
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// ValidateKey rejects empty, absolute or traversing keys.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) || strings.Contains(key, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// PresignUpload returns a PUT URL for uploading key with the given content type.
func (s *Store) PresignUpload(ctx context.Context, key, contentType string) (*PresignedURL, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return nil, fmt.Errorf("objectstore: presign put: %w", err)
	}

	return &PresignedURL{
		URL:       req.URL,
		Method:    req.Method,
		Key:       key,
		ExpiresAt: time.Now().Add(s.expiry).UTC(),
		Headers:   req.SignedHeader,
	}, nil
}

// PresignDownload returns a GET URL for key.
func (s *Store) PresignDownload(ctx context.Context, key string) (*PresignedURL, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return nil, fmt.Errorf("objectstore: presign get: %w", err)
	}

	return &PresignedURL{
		URL:       req.URL,
		Method:    req.Method,
		Key:       key,
		ExpiresAt: time.Now().Add(s.expiry).UTC(),
	}, nil
}
