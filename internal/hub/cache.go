package hub

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"go.uber.org/multierr"
)

// Cache stores fetched files under
//
//	{dir}/{model_id with "/" replaced by "--"}/{file}
//
// A file present on disk is never fetched again. Downloads stream into
// {file}.part and are renamed into place when complete, so an interrupted
// fetch never looks like a cached file.
type Cache struct {
	dir      string
	source   Source
	progress io.Writer
}

// NewCache creates a cache rooted at dir backed by source.
func NewCache(dir string, source Source) *Cache {
	return &Cache{dir: dir, source: source}
}

// WithProgress shows a download progress bar on w. Nil disables it.
func (c *Cache) WithProgress(w io.Writer) *Cache {
	c.progress = w
	return c
}

// Dir returns the cache root.
func (c *Cache) Dir() string {
	return c.dir
}

// ModelDir returns the directory holding a model's files.
func (c *Cache) ModelDir(modelID string) string {
	return filepath.Join(c.dir, strings.ReplaceAll(modelID, "/", "--"))
}

// Path returns where file of modelID lives in the cache.
func (c *Cache) Path(modelID, file string) string {
	return filepath.Join(c.ModelDir(modelID), file)
}

// Has reports whether the file is cached.
func (c *Cache) Has(modelID, file string) bool {
	info, err := os.Stat(c.Path(modelID, file))
	return err == nil && info.Mode().IsRegular()
}

// Fetch returns the local path of file, downloading it first on a miss.
// There is a single attempt per miss.
func (c *Cache) Fetch(ctx context.Context, modelID, file string) (string, error) {
	if err := ValidateModelID(modelID); err != nil {
		return "", err
	}
	if file == "" || file != filepath.Base(file) {
		return "", fmt.Errorf("hub: invalid file name %q", file)
	}

	path := c.Path(modelID, file)
	if c.Has(modelID, file) {
		slog.Debug("cache hit", "model", modelID, "file", file, "path", path)
		return path, nil
	}
	if c.source == nil {
		return "", fmt.Errorf("%w: %s not cached and no source configured", ErrNotFound, path)
	}

	slog.Info("downloading", "model", modelID, "file", file, "source", c.source.String())
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("hub: create cache dir: %w", err)
	}

	body, size, err := c.source.Open(ctx, modelID, file)
	if err != nil {
		return "", err
	}
	n, err := c.store(path, body, size)
	if err != nil {
		return "", err
	}
	slog.Debug("cached", "path", path, "bytes", n)
	return path, nil
}

func (c *Cache) store(path string, body io.ReadCloser, size int64) (n int64, err error) {
	defer func() {
		err = multierr.Append(err, body.Close())
	}()

	var src io.Reader = body
	if c.progress != nil {
		bar := pb.Full.New(0).SetTotal(size).SetWriter(c.progress).Set(pb.Bytes, true).Start()
		defer bar.Finish()
		src = bar.NewProxyReader(body)
	}

	part := path + ".part"
	//nolint:gosec // G304: path is derived from the cache layout.
	f, err := os.Create(part)
	if err != nil {
		return 0, fmt.Errorf("hub: create %s: %w", part, err)
	}

	n, err = io.Copy(f, src)
	err = multierr.Append(err, f.Close())
	if err == nil && size >= 0 && n != size {
		err = fmt.Errorf("hub: short download: got %d of %d bytes", n, size)
	}
	if err != nil {
		_ = os.Remove(part)
		return n, fmt.Errorf("hub: download %s: %w", filepath.Base(path), err)
	}

	if err := os.Rename(part, path); err != nil {
		_ = os.Remove(part)
		return n, fmt.Errorf("hub: %w", err)
	}
	return n, nil
}
