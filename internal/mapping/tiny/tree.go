// Package tiny is an in-memory mapping tree backed by the Tiny v2 text
// format, and implements mapping.Tree for the field migration.
//
// Methods, parameters, local variables, comments and header properties are
// kept. Writing is normalised: within a class, fields are written before
// methods, and sections the reader does not know are dropped.
package tiny

import (
	"field-migrator/internal/descriptor"
	"field-migrator/internal/mapping"
)

// EscapedNamesProperty switches name escaping on for a file.
const EscapedNamesProperty = "escaped-names"

// Property is a header property line. Value may be empty.
type Property struct {
	Key   string
	Value string
}

// Tree is a Tiny v2 mapping tree.
type Tree struct {
	Minor      int
	Properties []Property

	src     string
	dst     []string
	classes []*Class

	// byName[ns+1] indexes classes by their name in ns; built lazily.
	byName []map[string]*Class
}

var _ mapping.Tree = (*Tree)(nil)

// New returns an empty tree with the given namespaces.
func New(src string, dst ...string) *Tree {
	return &Tree{src: src, dst: append([]string(nil), dst...)}
}

func (t *Tree) SrcNamespace() string { return t.src }

func (t *Tree) DstNamespaces() []string { return append([]string(nil), t.dst...) }

func (t *Tree) NamespaceID(ns string) int {
	if ns == t.src {
		return mapping.SrcNamespaceID
	}
	for i, d := range t.dst {
		if d == ns {
			return i
		}
	}
	return mapping.NullNamespaceID
}

// Escaped reports whether names are written escaped.
func (t *Tree) Escaped() bool {
	for _, p := range t.Properties {
		if p.Key == EscapedNamesProperty {
			return true
		}
	}
	return false
}

func (t *Tree) width() int { return 1 + len(t.dst) }

func (t *Tree) names(in []string) []string {
	out := make([]string, t.width())
	copy(out, in)
	return out
}

// AddClass appends a class with names in namespace order (src first).
// Missing trailing names are left empty.
func (t *Tree) AddClass(names ...string) *Class {
	c := &Class{tree: t, names: t.names(names)}
	t.classes = append(t.classes, c)
	t.byName = nil
	return c
}

func (t *Tree) Classes() []mapping.Class {
	out := make([]mapping.Class, len(t.classes))
	for i, c := range t.classes {
		out[i] = c
	}
	return out
}

// ClassList returns the concrete classes in file order.
func (t *Tree) ClassList() []*Class { return t.classes }

// Class looks a class up by its name in ns.
func (t *Tree) Class(name string, ns int) *Class {
	if ns < mapping.SrcNamespaceID || ns >= len(t.dst) {
		return nil
	}
	if t.byName == nil {
		t.byName = make([]map[string]*Class, t.width())
	}
	idx := t.byName[ns+1]
	if idx == nil {
		idx = make(map[string]*Class, len(t.classes))
		for _, c := range t.classes {
			if n := c.Name(ns); n != "" {
				if _, dup := idx[n]; !dup {
					idx[n] = c
				}
			}
		}
		t.byName[ns+1] = idx
	}
	return idx[name]
}

func (t *Tree) MapDesc(desc string, from, to int) string {
	if from == to {
		return desc
	}
	return descriptor.Remap(desc, func(name string) string {
		c := t.Class(name, from)
		if c == nil {
			return name
		}
		if mapped := c.Name(to); mapped != "" {
			return mapped
		}
		return name
	})
}

func nameAt(names []string, ns int) string {
	if ns+1 < 0 || ns+1 >= len(names) {
		return ""
	}
	return names[ns+1]
}

// Class is a class row.
type Class struct {
	tree    *Tree
	names   []string
	Comment string
	fields  []*Field
	methods []*Method
}

func (c *Class) Name(ns int) string { return nameAt(c.names, ns) }

// AddField appends a field with its source descriptor.
func (c *Class) AddField(desc string, names ...string) *Field {
	f := &Field{owner: c, desc: desc, names: c.tree.names(names)}
	c.fields = append(c.fields, f)
	return f
}

// AddMethod appends a method with its source descriptor.
func (c *Class) AddMethod(desc string, names ...string) *Method {
	m := &Method{desc: desc, names: c.tree.names(names)}
	c.methods = append(c.methods, m)
	return m
}

func (c *Class) Fields() []mapping.Field {
	out := make([]mapping.Field, len(c.fields))
	for i, f := range c.fields {
		out[i] = f
	}
	return out
}

// FieldList returns the concrete fields in file order.
func (c *Class) FieldList() []*Field { return c.fields }

// Methods returns the methods in file order.
func (c *Class) Methods() []*Method { return c.methods }

// Field is a field row. Its descriptor is stored in the source namespace.
type Field struct {
	owner   *Class
	names   []string
	desc    string
	Comment string
}

func (f *Field) Name(ns int) string { return nameAt(f.names, ns) }

func (f *Field) Desc(ns int) string {
	if ns == mapping.SrcNamespaceID {
		return f.desc
	}
	if ns < 0 || ns >= len(f.owner.tree.dst) {
		return ""
	}
	return f.owner.tree.MapDesc(f.desc, mapping.SrcNamespaceID, ns)
}

func (f *Field) SetSrcDesc(desc string) { f.desc = desc }

// Method is a method row with its parameters and local variables.
type Method struct {
	names   []string
	desc    string
	Comment string
	Params  []*Param
	Vars    []*Var
}

func (m *Method) Name(ns int) string { return nameAt(m.names, ns) }

// SrcDesc is the method descriptor in the source namespace.
func (m *Method) SrcDesc() string { return m.desc }

// Param is a method parameter row.
type Param struct {
	LvIndex int
	names   []string
	Comment string
}

func (p *Param) Name(ns int) string { return nameAt(p.names, ns) }

// Var is a method local variable row.
type Var struct {
	LvIndex     int
	StartOpIdx  int
	LvtRowIndex int
	names       []string
	Comment     string
}

func (v *Var) Name(ns int) string { return nameAt(v.names, ns) }
