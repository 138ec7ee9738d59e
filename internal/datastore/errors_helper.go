// errors_helper.go: shared error wrapping for datastore operations.
package datastore

import (
	"strconv"

	"github.com/phenobase/fieldstore/internal/errors"
)

// dbError wraps a database failure with the datastore component and the
// operation that failed, plus optional key/value context pairs.
func dbError(err error, operation string, keyvals ...any) error {
	eb := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)
	for i := 0; i+1 < len(keyvals); i += 2 {
		if key, ok := keyvals[i].(string); ok {
			eb = eb.Context(key, keyvals[i+1])
		}
	}
	return eb.Build()
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
