// Package fs implements a local-filesystem articleref.BlobStore.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/tendant/article-assets/pkg/articleref"
	"github.com/tendant/article-assets/pkg/articleref/presigned"
)

// Backend is a filesystem implementation of the articleref.BlobStore
// interface. Writes go through a temp file plus rename, so a failed write
// never leaves a partially written object retrievable as complete.
type Backend struct {
	baseDir   string
	urlPrefix string
	signer    *presigned.Signer
}

// Config options for the filesystem backend
type Config struct {
	// BaseDir is the root directory for stored files (required).
	BaseDir string

	// URLPrefix is the base under which stored files are served. When
	// empty, GetDownloadURL reports ErrDirectDownloadUnsupported and the
	// service proxies the bytes instead.
	URLPrefix string

	// Signer, when set together with URLPrefix, turns download URLs into
	// time-limited HMAC-signed links validated by the HTTP layer. Local
	// files have no native signed-URL mechanism, so this stands in for
	// object-storage presigning.
	Signer *presigned.Signer
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{
		baseDir:   config.BaseDir,
		urlPrefix: strings.TrimSuffix(config.URLPrefix, "/"),
		signer:    config.Signer,
	}, nil
}

// Upload streams content into a temp file next to the target and renames
// it into place once the copy completed.
func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader) error {
	filePath := filepath.Join(b.baseDir, objectKey)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create staging file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close staging file: %w", err)
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize file: %w", err)
	}

	return nil
}

// UploadWithParams uploads content with additional parameters. The
// filesystem does not store MIME types separately; they are detected on
// read.
func (b *Backend) UploadWithParams(ctx context.Context, reader io.Reader, params articleref.UploadParams) error {
	return b.Upload(ctx, params.ObjectKey, reader)
}

// Download returns a read stream for the object
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(b.baseDir, objectKey))
	if os.IsNotExist(err) {
		return nil, articleref.ErrObjectNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Exists reports whether an object is present under the key
func (b *Backend) Exists(ctx context.Context, objectKey string) (bool, error) {
	_, err := os.Stat(filepath.Join(b.baseDir, objectKey))
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
	return true, nil
}

// Delete removes the object from the filesystem
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	filePath := filepath.Join(b.baseDir, objectKey)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return articleref.ErrObjectNotFound
	}

	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	b.cleanupEmptyDirectories(filepath.Dir(filePath))

	return nil
}

// GetDownloadURL builds an access URL for the object. With a signer the
// URL is time limited; with a bare prefix it is a stable static link;
// with neither the caller must proxy the bytes.
func (b *Backend) GetDownloadURL(ctx context.Context, objectKey string, opts articleref.DownloadURLOptions) (string, error) {
	if b.urlPrefix == "" {
		return "", articleref.ErrDirectDownloadUnsupported
	}

	path := "/" + objectKey
	if opts.Filename != "" {
		path += "?filename=" + url.QueryEscape(opts.Filename)
	}

	if b.signer == nil {
		return b.urlPrefix + path, nil
	}

	return b.signer.SignURLWithBase(b.urlPrefix, http.MethodGet, path, opts.ExpiresIn)
}

// GetObjectMeta retrieves metadata for an object in the filesystem
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*articleref.ObjectMeta, error) {
	filePath := filepath.Join(b.baseDir, objectKey)

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return nil, articleref.ErrObjectNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	// Detect content type from leading bytes
	contentType := "application/octet-stream"
	if file, err := os.Open(filePath); err == nil {
		defer file.Close()
		buffer := make([]byte, 512)
		if n, err := file.Read(buffer); err == nil {
			contentType = http.DetectContentType(buffer[:n])
		}
	}

	return &articleref.ObjectMeta{
		Key:         objectKey,
		Size:        info.Size(),
		ContentType: contentType,
		UpdatedAt:   info.ModTime(),
	}, nil
}

// cleanupEmptyDirectories recursively removes empty directories up to baseDir
func (b *Backend) cleanupEmptyDirectories(dir string) {
	if dir == b.baseDir {
		return
	}

	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			b.cleanupEmptyDirectories(filepath.Dir(dir))
		}
	}
}
