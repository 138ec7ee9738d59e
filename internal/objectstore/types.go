// Package objectstore provides uniform upload/download/exists/metadata and
// presigned-URL operations over pluggable storage backends.
package objectstore

import (
	"context"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"
)

// Provider identifies a concrete object store backend implementation.
type Provider string

const (
	// ProviderFilesystem is the local filesystem backend (default, dev).
	ProviderFilesystem Provider = "fs"
	// ProviderS3 is the S3 / MinIO compatible backend.
	ProviderS3 Provider = "s3"
	// ProviderMemory is the in-memory backend used in tests.
	ProviderMemory Provider = "memory"
)

// Source is the payload of an upload: either an in-memory reader or a local
// file path. Exactly one of the two should be set.
type Source struct {
	Reader io.Reader
	Path   string
}

// FromFile builds a Source reading from a local file path.
func FromFile(path string) Source {
	return Source{Path: path}
}

// FromReader builds a Source reading from an in-memory stream.
func FromReader(r io.Reader) Source {
	return Source{Reader: r}
}

// UploadOptions specifies optional parameters for Upload.
type UploadOptions struct {
	ContentType string            // inferred from the key extension when empty
	Tags        map[string]string // object metadata for out-of-band auditing
}

// Info describes a stored object.
type Info struct {
	Key         string            `json:"key"`
	Size        int64             `json:"size_bytes"`
	ContentType string            `json:"content_type,omitempty"`
	Modified    time.Time         `json:"modified"`
	Tags        map[string]string `json:"tags,omitempty"`
	URL         string            `json:"url,omitempty"`
}

// Store is the backend-agnostic object storage contract. All backends must
// satisfy it identically.
type Store interface {
	// Upload stores the source under key and returns the object URL.
	Upload(ctx context.Context, key string, src Source, opts UploadOptions) (string, error)
	// Download opens a read stream for the object.
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	// Exists reports whether the object is present.
	Exists(ctx context.Context, key string) (bool, error)
	// PresignedURL returns a time-limited download URL for the object.
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Metadata returns size, modification time, content type and tags.
	Metadata(ctx context.Context, key string) (Info, error)
	// Provider identifies the backend.
	Provider() Provider
}

// contentTypeFor infers a MIME type from the key's file extension.
func contentTypeFor(key string) string {
	ext := strings.ToLower(filepath.Ext(key))
	if ext == "" {
		return "application/octet-stream"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func cloneTags(tags map[string]string) map[string]string {
	if tags == nil {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
