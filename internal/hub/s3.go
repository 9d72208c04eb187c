package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Client is the subset of the S3 API the source uses.
// *s3.Client satisfies it.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Options configures the client built by NewS3Client.
type S3Options struct {
	Region    string // default: $AWS_REGION, then us-east-1
	Endpoint  string // S3-compatible endpoint (MinIO, R2); empty for AWS
	PathStyle bool
}

// S3Source serves files from {prefix}/{model_id}/{file} in a bucket.
type S3Source struct {
	client S3Client
	bucket string
	prefix string
}

// NewS3Source creates an S3-backed source. prefix may be empty.
func NewS3Source(client S3Client, bucket, prefix string) *S3Source {
	return &S3Source{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// ParseS3URL splits "s3://bucket/some/prefix" into bucket and prefix.
func ParseS3URL(u string) (string, string, error) {
	rest, ok := strings.CutPrefix(u, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownScheme, u)
	}
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("%w: missing bucket in %q", ErrUnknownScheme, u)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}

// NewS3Client builds a client from opts and the standard AWS environment
// variables. Requests are attempted once.
func NewS3Client(_ context.Context, opts S3Options) *s3.Client {
	region := opts.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}

	o := s3.Options{
		Region:       region,
		UsePathStyle: opts.PathStyle,
		Retryer:      aws.NopRetryer{},
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
				SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
				SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
				Source:          "environment",
			}, nil
		}),
	}
	if opts.Endpoint != "" {
		o.BaseEndpoint = aws.String(opts.Endpoint)
	}
	return s3.New(o)
}

func (s *S3Source) key(modelID, file string) string {
	key := modelID + "/" + file
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// Open fetches the object with GetObject.
func (s *S3Source) Open(ctx context.Context, modelID, file string) (io.ReadCloser, int64, error) {
	key := s.key(modelID, file)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, 0, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, s.bucket, key)
		}
		return nil, 0, fmt.Errorf("hub: get s3://%s/%s: %w", s.bucket, key, err)
	}

	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return out.Body, size, nil
}

func (s *S3Source) String() string {
	if s.prefix == "" {
		return "s3://" + s.bucket
	}
	return "s3://" + s.bucket + "/" + s.prefix
}

// isS3NotFound reports whether err indicates the S3 object does not exist.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

var _ S3Client = (*s3.Client)(nil)
