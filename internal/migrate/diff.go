// Package migrate finds fields whose descriptors changed when the game was
// patched and rewrites the mapping tree so downstream remapping links against
// the patched types.
//
// Diff joins the scanner's srg-keyed descriptors with the mapping tree and
// produces intermediary-keyed entries; Rewrite applies entries to a tree;
// Provider ties both to the on-disk cache.
package migrate

import (
	"context"
	"fmt"

	slogctx "github.com/veqryn/slog-context"

	"field-migrator/internal/descriptor"
	"field-migrator/internal/mapping"
)

// NamespaceError reports a namespace the tree does not carry.
type NamespaceError struct {
	Namespace string
	Have      []string
}

func (e *NamespaceError) Error() string {
	return fmt.Sprintf("mapping tree has no %q namespace (have %v)", e.Namespace, e.Have)
}

func namespaceID(tree mapping.Tree, ns string) (int, error) {
	id := tree.NamespaceID(ns)
	if id == mapping.NullNamespaceID {
		have := append([]string{tree.SrcNamespace()}, tree.DstNamespaces()...)
		return 0, &NamespaceError{Namespace: ns, Have: have}
	}
	return id, nil
}

// Diff returns, in tree order, every field whose scanned descriptor differs
// from the tree's srg descriptor. Keys and descriptors are in the
// intermediary namespace.
func Diff(ctx context.Context, scanned map[descriptor.FieldKey]string, tree mapping.Tree) ([]descriptor.Entry, error) {
	srg, err := namespaceID(tree, mapping.Srg)
	if err != nil {
		return nil, err
	}
	inter, err := namespaceID(tree, mapping.Intermediary)
	if err != nil {
		return nil, err
	}
	log := slogctx.FromCtx(ctx)

	classes := tree.Classes()
	srgToIntermediary := make(map[string]string, len(classes))
	for _, c := range classes {
		if s, i := c.Name(srg), c.Name(inter); s != "" && i != "" {
			srgToIntermediary[s] = i
		}
	}
	toIntermediary := func(name string) string {
		if mapped, ok := srgToIntermediary[name]; ok {
			return mapped
		}
		log.Debug("class reference has no intermediary name, keeping srg name", "class", name)
		return name
	}

	var out []descriptor.Entry
	for _, c := range classes {
		ownerSrg := c.Name(srg)
		if ownerSrg == "" {
			continue
		}
		ownerInter := c.Name(inter)
		for _, f := range c.Fields() {
			fieldSrg := f.Name(srg)
			if fieldSrg == "" {
				continue
			}
			descSrg := f.Desc(srg)
			newDesc, ok := scanned[descriptor.FieldKey{Owner: ownerSrg, Field: fieldSrg}]
			if !ok || newDesc == descSrg {
				continue
			}
			if ownerInter == "" {
				log.Warn("class has no intermediary name, skipping migrated field",
					"class", ownerSrg, "field", fieldSrg)
				continue
			}
			fieldInter := f.Name(inter)
			if fieldInter == "" {
				log.Warn("field has no intermediary name, skipping",
					"class", ownerSrg, "field", fieldSrg)
				continue
			}
			key, err := descriptor.NewFieldKey(ownerInter, fieldInter)
			if err != nil {
				return nil, err
			}
			entry, err := descriptor.NewEntry(key, descriptor.Remap(newDesc, toIntermediary))
			if err != nil {
				return nil, err
			}
			log.Info("migrated field descriptor", "field", key.String(), "from", f.Desc(inter), "to", entry.Desc)
			out = append(out, entry)
		}
	}
	return out, nil
}
