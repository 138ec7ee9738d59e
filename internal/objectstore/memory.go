package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/phenobase/fieldstore/internal/errors"
)

// memoryStore implements Store entirely in memory. Used in tests.
type memoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
	tags        map[string]string
	modified    time.Time
}

// NewMemory returns an in-memory object store.
func NewMemory() Store {
	return &memoryStore{objects: make(map[string]memoryObject)}
}

func (s *memoryStore) Provider() Provider { return ProviderMemory }

func (s *memoryStore) Upload(ctx context.Context, key string, src Source, opts UploadOptions) (string, error) {
	if _, err := sanitizeKey(key); err != nil {
		return "", err
	}
	reader, err := openSource(src)
	if err != nil {
		return "", err
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", uploadErr(err, key)
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = contentTypeFor(key)
	}

	s.mu.Lock()
	s.objects[key] = memoryObject{
		data:        data,
		contentType: contentType,
		tags:        cloneTags(opts.Tags),
		modified:    time.Now().UTC(),
	}
	s.mu.Unlock()

	return s.urlFor(key), nil
}

func (s *memoryStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NotFoundError("object", key)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *memoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	_, ok := s.objects[key]
	s.mu.RUnlock()
	return ok, nil
}

func (s *memoryStore) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	_, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return "", errors.NotFoundError("object", key)
	}
	return fmt.Sprintf("%s?ttl=%s", s.urlFor(key), ttl), nil
}

func (s *memoryStore) Metadata(ctx context.Context, key string) (Info, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return Info{}, errors.NotFoundError("object", key)
	}
	return Info{
		Key:         key,
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
		Modified:    obj.modified,
		Tags:        cloneTags(obj.tags),
		URL:         s.urlFor(key),
	}, nil
}

func (s *memoryStore) urlFor(key string) string {
	return "memory://" + key
}
