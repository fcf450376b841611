package identity

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// S3Client is the slice of the S3 API the profile store needs.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config holds connection settings for the profile picture bucket.
// Endpoint and ForcePathStyle support S3-compatible services like MinIO.
type S3Config struct {
	Bucket         string
	Region         string
	AccessKeyID    string
	SecretKey      string
	Endpoint       string
	BaseURL        string
	Prefix         string
	ForcePathStyle bool
}

// S3ProfileStore keeps profile pictures in an S3 bucket and returns the
// public URL as the stored reference.
type S3ProfileStore struct {
	client  S3Client
	bucket  string
	baseURL string
	prefix  string
}

var _ ProfileStore = (*S3ProfileStore)(nil)

// NewS3ProfileStore creates the store, building an S3 client from the
// config unless one is injected through WithS3Client.
func NewS3ProfileStore(ctx context.Context, cfg S3Config) (*S3ProfileStore, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, goerrors.New("bucket and region are required", goerrors.CategoryValidation)
	}

	awsOptions := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}

	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		awsOptions = append(awsOptions,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretKey,
				"",
			)),
		)
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, awsOptions...)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load aws configuration")
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return newS3ProfileStore(client, cfg), nil
}

// WithS3Client builds the store around a pre-configured client, mainly
// for tests and S3-compatible local stacks.
func WithS3Client(client S3Client, cfg S3Config) *S3ProfileStore {
	return newS3ProfileStore(client, cfg)
}

func newS3ProfileStore(client S3Client, cfg S3Config) *S3ProfileStore {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		if cfg.Endpoint != "" {
			baseURL = fmt.Sprintf("%s/%s", strings.TrimSuffix(cfg.Endpoint, "/"), cfg.Bucket)
		} else {
			baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = "profiles"
	}

	return &S3ProfileStore{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: baseURL,
		prefix:  prefix,
	}
}

// Store uploads the picture under a random key, keeping the original
// extension so content negotiation stays simple.
func (s *S3ProfileStore) Store(ctx context.Context, upload ProfileUpload) (string, error) {
	if len(upload.Data) == 0 {
		return "", goerrors.New("upload is empty", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	key := s.prefix + "/" + uuid.New().String() + path.Ext(upload.Name)

	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(upload.Data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to upload profile picture")
	}

	return s.baseURL + "/" + key, nil
}
