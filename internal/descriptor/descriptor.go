// Package descriptor holds the value types that identify a field across the
// mapping pipeline and the helpers that validate and rewrite JVM type
// descriptors.
//
// A descriptor is kept as a plain string in the standard bytecode form:
//
//	I                   int
//	[I                  int[]
//	Lnet/minecraft/A;   object reference
//	(Lx;I)V             method (only rewritten, never stored as a migration)
package descriptor

import (
	"strings"

	"gitlab.com/tozd/go/errors"
)

// Separator joins owner and field in the persisted cache key.
const Separator = "#"

// maxArrayDims is the JVM limit on array dimensions in a descriptor.
const maxArrayDims = 255

// FieldKey identifies a field by owning class and field name. The namespace
// both names are drawn from is carried by context.
type FieldKey struct {
	Owner string
	Field string
}

// NewFieldKey validates and builds a key.
func NewFieldKey(owner, field string) (FieldKey, error) {
	if owner == "" {
		return FieldKey{}, errors.Errorf("field key: empty owner (field %q)", field)
	}
	if field == "" {
		return FieldKey{}, errors.Errorf("field key: empty field name (owner %q)", owner)
	}
	if strings.Contains(owner, Separator) || strings.Contains(field, Separator) {
		return FieldKey{}, errors.Errorf("field key: %q/%q contains separator %q", owner, field, Separator)
	}
	return FieldKey{Owner: owner, Field: field}, nil
}

// ParseFieldKey reverses FieldKey.String.
func ParseFieldKey(s string) (FieldKey, error) {
	if strings.Count(s, Separator) != 1 {
		return FieldKey{}, errors.Errorf("field key %q: want exactly one %q", s, Separator)
	}
	owner, field, _ := strings.Cut(s, Separator)
	return NewFieldKey(owner, field)
}

// String renders owner#field.
func (k FieldKey) String() string {
	return k.Owner + Separator + k.Field
}

// Entry pairs a field with its corrected descriptor (a MigrationEntry).
type Entry struct {
	Key  FieldKey
	Desc string
}

// NewEntry validates desc as a field descriptor.
func NewEntry(key FieldKey, desc string) (Entry, error) {
	if err := ValidateField(desc); err != nil {
		return Entry{}, errors.Errorf("entry %s: %w", key, err)
	}
	return Entry{Key: key, Desc: desc}, nil
}

func isPrimitive(c byte) bool {
	switch c {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return true
	}
	return false
}

// ValidateField checks that desc is exactly one field type.
func ValidateField(desc string) error {
	if desc == "" {
		return errors.New("empty descriptor")
	}
	dims := 0
	for dims < len(desc) && desc[dims] == '[' {
		dims++
	}
	if dims > maxArrayDims {
		return errors.Errorf("descriptor %q: %d array dimensions exceeds %d", desc, dims, maxArrayDims)
	}
	rest := desc[dims:]
	switch {
	case rest == "":
		return errors.Errorf("descriptor %q: missing element type", desc)
	case len(rest) == 1 && isPrimitive(rest[0]):
		return nil
	case rest[0] == 'L':
		end := strings.IndexByte(rest, ';')
		if end < 0 {
			return errors.Errorf("descriptor %q: unterminated class reference", desc)
		}
		if end == 1 {
			return errors.Errorf("descriptor %q: empty class name", desc)
		}
		if end != len(rest)-1 {
			return errors.Errorf("descriptor %q: trailing characters after class reference", desc)
		}
		if strings.ContainsAny(rest[1:end], ".[") {
			return errors.Errorf("descriptor %q: invalid internal class name", desc)
		}
		return nil
	default:
		return errors.Errorf("descriptor %q: unknown type tag %q", desc, rest[0])
	}
}

// Remap rewrites every L...; class reference in desc through fn. Primitive
// tags, array shells and method parentheses are copied verbatim. An
// unterminated reference is copied unchanged.
func Remap(desc string, fn func(name string) string) string {
	if strings.IndexByte(desc, 'L') < 0 {
		return desc
	}
	var b strings.Builder
	b.Grow(len(desc))
	for i := 0; i < len(desc); i++ {
		c := desc[i]
		if c != 'L' {
			b.WriteByte(c)
			continue
		}
		end := strings.IndexByte(desc[i:], ';')
		if end < 0 {
			b.WriteString(desc[i:])
			break
		}
		b.WriteByte('L')
		b.WriteString(fn(desc[i+1 : i+end]))
		b.WriteByte(';')
		i += end
	}
	return b.String()
}

// ClassRefs lists the internal class names referenced by desc, in order.
func ClassRefs(desc string) []string {
	var refs []string
	Remap(desc, func(name string) string {
		refs = append(refs, name)
		return name
	})
	return refs
}
