package objectstore

import (
	"context"
	"encoding/json"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phenobase/fieldstore/internal/errors"
)

// fsStore implements Store using the local filesystem. Keys map to relative
// file paths under the root. The filesystem has no native key/value tag
// store, so a JSON sidecar (filename + ".meta") carries content type and tags.
type fsStore struct {
	root    string
	baseURL string
}

// NewFilesystem returns a filesystem-backed object store rooted at path,
// creating the root directory if needed.
func NewFilesystem(root, baseURL string) (Store, error) {
	if root == "" {
		root = "fieldstore-data"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.New(err).
			Component("objectstore").
			Category(errors.CategoryConfiguration).
			Context("root", root).
			Build()
	}
	return &fsStore{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (s *fsStore) Provider() Provider { return ProviderFilesystem }

// sanitizeKey forbids path traversal and absolute keys.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.Newf("empty object key").
			Component("objectstore").
			Category(errors.CategoryValidation).
			Build()
	}
	if strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return "", errors.Newf("invalid object key %q", key).
			Component("objectstore").
			Category(errors.CategoryValidation).
			Build()
	}
	return filepath.ToSlash(filepath.Clean(key)), nil
}

func (s *fsStore) pathFor(key string) (dataPath, metaPath string, err error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", "", err
	}
	dataPath = filepath.Join(s.root, filepath.FromSlash(k))
	metaPath = dataPath + ".meta"
	return dataPath, metaPath, nil
}

type metaFile struct {
	ContentType string            `json:"content_type,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	Size        int64             `json:"size"`
	CreatedAt   time.Time         `json:"created_at"`
}

func (s *fsStore) Upload(ctx context.Context, key string, src Source, opts UploadOptions) (string, error) {
	dataPath, metaPath, err := s.pathFor(key)
	if err != nil {
		return "", err
	}
	reader, err := openSource(src)
	if err != nil {
		return "", err
	}
	defer func() { _ = reader.Close() }()

	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return "", uploadErr(err, key)
	}

	// Stream to a temp file, then move into place so readers never observe a
	// partially written object.
	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".tmp-*")
	if err != nil {
		return "", uploadErr(err, key)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	size, err := io.Copy(tmp, reader)
	if err != nil {
		_ = tmp.Close()
		return "", uploadErr(err, key)
	}
	if err := tmp.Close(); err != nil {
		return "", uploadErr(err, key)
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		return "", uploadErr(err, key)
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = contentTypeFor(key)
	}
	mf := metaFile{
		ContentType: contentType,
		Tags:        cloneTags(opts.Tags),
		Size:        size,
		CreatedAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(mf)
	if err != nil {
		return "", uploadErr(err, key)
	}
	if err := os.WriteFile(metaPath, data, 0o644); err != nil {
		return "", uploadErr(err, key)
	}

	return s.localURL(key), nil
}

func (s *fsStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	dataPath, _, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(dataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundError("object", key)
		}
		return nil, errors.New(err).
			Component("objectstore").
			Category(errors.CategoryStorageDownload).
			Context("key", key).
			Build()
	}
	return f, nil
}

func (s *fsStore) Exists(ctx context.Context, key string) (bool, error) {
	dataPath, _, err := s.pathFor(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(dataPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.New(err).
			Component("objectstore").
			Category(errors.CategoryStorageConnection).
			Context("key", key).
			Build()
	}
	return true, nil
}

// PresignedURL returns a local URL for the object. The filesystem cannot
// enforce expiry, so the TTL is advisory only.
func (s *fsStore) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	dataPath, _, err := s.pathFor(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(dataPath); err != nil {
		if os.IsNotExist(err) {
			return "", errors.NotFoundError("object", key)
		}
		return "", errors.New(err).
			Component("objectstore").
			Category(errors.CategoryStorageConnection).
			Context("key", key).
			Build()
	}
	return s.localURL(key), nil
}

func (s *fsStore) Metadata(ctx context.Context, key string) (Info, error) {
	dataPath, metaPath, err := s.pathFor(key)
	if err != nil {
		return Info{}, err
	}
	st, err := os.Stat(dataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, errors.NotFoundError("object", key)
		}
		return Info{}, errors.New(err).
			Component("objectstore").
			Category(errors.CategoryStorageConnection).
			Context("key", key).
			Build()
	}

	info := Info{
		Key:      key,
		Size:     st.Size(),
		Modified: st.ModTime().UTC(),
		URL:      s.localURL(key),
	}

	// The sidecar may be missing for objects written by other tools.
	if data, err := os.ReadFile(metaPath); err == nil {
		var mf metaFile
		if err := json.Unmarshal(data, &mf); err == nil {
			info.ContentType = mf.ContentType
			info.Tags = cloneTags(mf.Tags)
		}
	}
	if info.ContentType == "" {
		info.ContentType = contentTypeFor(key)
	}
	return info, nil
}

func (s *fsStore) localURL(key string) string {
	if s.baseURL != "" {
		return s.baseURL + "/" + key
	}
	abs, err := filepath.Abs(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil {
		abs = filepath.Join(s.root, filepath.FromSlash(key))
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String()
}

func uploadErr(err error, key string) error {
	return errors.New(err).
		Component("objectstore").
		Category(errors.CategoryStorageUpload).
		Context("key", key).
		Build()
}
