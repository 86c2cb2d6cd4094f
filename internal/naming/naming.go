// Package naming resolves the static lookup files shipped alongside the
// cache store: per-index instrument lists (rics_{index}.json) and the map
// from short field names to vendor field codes (fields.json).
package naming

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/rxtech-lab/histcache/pkg/errors"
)

const fieldsFile = "fields.json"

// Field pairs a short field name with the vendor code requested on the wire.
type Field struct {
	Name string
	Code string
}

// Lookup reads instrument lists and field codes from a naming directory.
// The field map is loaded eagerly; instrument lists are read per request.
type Lookup struct {
	dir    string
	fields map[string]string
}

// NewLookup creates a lookup over the given naming directory. A missing or
// malformed fields.json is a configuration error.
func NewLookup(dir string) (*Lookup, error) {
	data, err := os.ReadFile(filepath.Join(dir, fieldsFile))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read %s in %s", fieldsFile, dir)
	}

	var fields map[string]string
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to parse %s", fieldsFile)
	}

	return &Lookup{
		dir:    dir,
		fields: fields,
	}, nil
}

// Resolve returns the ordered instrument list for a named index.
func (l *Lookup) Resolve(index string) ([]string, error) {
	path := filepath.Join(l.dir, fmt.Sprintf("rics_%s.json", index))

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrCodeDataNotFound, "no instrument list for index %q", index)
		}

		return nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to read instrument list for index %q", index)
	}

	var rics []string
	if err := json.Unmarshal(data, &rics); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to parse instrument list for index %q", index)
	}

	return rics, nil
}

// Field resolves one short field name to its vendor code.
func (l *Lookup) Field(name string) (Field, error) {
	code, ok := l.fields[name]
	if !ok {
		return Field{}, errors.Newf(errors.ErrCodeUnknownField, "field %q has no vendor code", name)
	}

	return Field{Name: name, Code: code}, nil
}

// Fields resolves a set of short field names, preserving order.
func (l *Lookup) Fields(names []string) ([]Field, error) {
	fields := make([]Field, 0, len(names))

	for _, name := range names {
		field, err := l.Field(name)
		if err != nil {
			return nil, err
		}

		fields = append(fields, field)
	}

	return fields, nil
}

// Known reports whether a short field name has a vendor code.
func (l *Lookup) Known(name string) bool {
	_, ok := l.fields[name]

	return ok
}

// Available returns all known short field names, sorted.
func (l *Lookup) Available() []string {
	names := make([]string, 0, len(l.fields))
	for name := range l.fields {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}
