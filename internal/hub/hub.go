// Package hub fetches pretrained model files from a weight repository into
// a local cache directory.
//
// A Source serves files addressed by model id and file name. Two sources
// exist: HTTPSource for Hugging Face style hubs and S3Source for buckets.
// Cache puts a Source behind a directory so each file is fetched once:
//
//	src, _ := hub.NewSource(ctx, "https://huggingface.co", hub.SourceOptions{})
//	cache := hub.NewCache("models/cache", src)
//	path, err := cache.Fetch(ctx, "speechbrain/spkrec-ecapa-voxceleb", "hyperparams.yaml")
package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Errors returned by sources and the cache.
var (
	ErrNotFound       = errors.New("hub: file not found")
	ErrInvalidModelID = errors.New("hub: invalid model id")
	ErrUnknownScheme  = errors.New("hub: unsupported source url")
)

// Source serves model files.
type Source interface {
	// Open returns the file contents and their size, or -1 if unknown.
	// A missing file yields an error wrapping ErrNotFound.
	Open(ctx context.Context, modelID, file string) (io.ReadCloser, int64, error)

	// String describes the source for logs.
	String() string
}

// SourceOptions configures NewSource.
type SourceOptions struct {
	HTTPClient *http.Client // HTTP sources; nil means http.DefaultClient
	S3         S3Options    // S3 sources
}

// NewSource picks a Source for url: "s3://bucket/prefix" or an http(s) base.
func NewSource(ctx context.Context, url string, opts SourceOptions) (Source, error) {
	switch {
	case strings.HasPrefix(url, "s3://"):
		bucket, prefix, err := ParseS3URL(url)
		if err != nil {
			return nil, err
		}
		return NewS3Source(NewS3Client(ctx, opts.S3), bucket, prefix), nil
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		return NewHTTPSource(url, opts.HTTPClient), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, url)
	}
}

// ValidateModelID checks that id is a relative "owner/name" style path
// that cannot escape the cache directory.
func ValidateModelID(id string) error {
	if id == "" || strings.HasPrefix(id, "/") || strings.HasSuffix(id, "/") || strings.Contains(id, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidModelID, id)
	}
	for _, part := range strings.Split(id, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidModelID, id)
		}
	}
	return nil
}
