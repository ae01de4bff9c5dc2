// Package mapping defines the narrow view of a multi-namespace mapping tree
// that the field migration needs. Implementations live in subpackages
// (see mapping/tiny) so the on-disk format can be swapped.
package mapping

import "io"

// Well-known namespace names.
const (
	Official     = "official"
	Intermediary = "intermediary"
	Srg          = "srg"
	Named        = "named"
)

// Namespace IDs. Destination namespaces are numbered from 0.
const (
	SrcNamespaceID  = -1
	NullNamespaceID = -2
)

// Tree is a labelled mapping of classes and fields across namespaces.
type Tree interface {
	SrcNamespace() string
	DstNamespaces() []string
	// NamespaceID returns SrcNamespaceID, a destination index, or
	// NullNamespaceID when ns is unknown.
	NamespaceID(ns string) int
	Classes() []Class
	// MapDesc rewrites the class references of desc from namespace from to
	// namespace to. Unknown classes are left unchanged.
	MapDesc(desc string, from, to int) string
	WriteTo(w io.Writer) (int64, error)
}

// Class is one class row.
type Class interface {
	// Name returns "" when the class has no name in ns.
	Name(ns int) string
	Fields() []Field
}

// Field is one field row.
type Field interface {
	Name(ns int) string
	Desc(ns int) string
	SetSrcDesc(desc string)
}
