// Package validate checks a decoded migration cache before it is trusted.
// It is not a JSON-Schema validator; it checks the structural constraints the
// rewriter relies on and aggregates every issue into a single error.
package validate

import (
	"fmt"
	"sort"
	"strings"

	"gitlab.com/tozd/go/errors"

	"field-migrator/internal/descriptor"
)

// Migrations validates a raw cache object and returns its entries sorted by
// key:
//
//   - each key is "<owner>#<field>" with exactly one '#' and non-empty parts
//   - each value is a single field descriptor
//
// All problems are reported together, one per line.
func Migrations(raw map[string]string) ([]descriptor.Entry, error) {
	var errs errlist

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]descriptor.Entry, 0, len(raw))
	for _, k := range keys {
		key, err := descriptor.ParseFieldKey(k)
		if err != nil {
			errs.add("key %q: %v", k, err)
			continue
		}
		e, err := descriptor.NewEntry(key, raw[k])
		if err != nil {
			errs.add("value for %q: %v", k, err)
			continue
		}
		entries = append(entries, e)
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// errlist aggregates multiple validation issues into a single error.
type errlist struct {
	msgs []string
}

func (e *errlist) add(format string, args ...any) {
	if e == nil {
		return
	}
	e.msgs = append(e.msgs, fmt.Sprintf(format, args...))
}

func (e *errlist) err() error {
	if e == nil || len(e.msgs) == 0 {
		return nil
	}
	// Join with newline for readability.
	return errors.New(strings.Join(e.msgs, "\n"))
}
