package objectstore

import (
	"io"
	"os"

	"github.com/phenobase/fieldstore/internal/errors"
)

// openSource resolves an upload source into a readable stream. A missing
// local source file is reported as not-found so callers never retry it.
func openSource(src Source) (io.ReadCloser, error) {
	switch {
	case src.Path != "":
		f, err := os.Open(src.Path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.New(err).
					Component("objectstore").
					Category(errors.CategoryNotFound).
					Context("source_path", src.Path).
					Build()
			}
			return nil, errors.New(err).
				Component("objectstore").
				Category(errors.CategoryStorageUpload).
				Context("source_path", src.Path).
				Build()
		}
		return f, nil
	case src.Reader != nil:
		return io.NopCloser(src.Reader), nil
	default:
		return nil, errors.Newf("upload source has neither reader nor path").
			Component("objectstore").
			Category(errors.CategoryValidation).
			Build()
	}
}
