package migrate

import (
	"field-migrator/internal/descriptor"
	"field-migrator/internal/mapping"
)

// Rewrite sets the source descriptor of every field named by entries
// (intermediary owner and field) to the entry's descriptor mapped back into
// the tree's source namespace. It returns the number of fields changed.
func Rewrite(tree mapping.Tree, entries []descriptor.Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	inter, err := namespaceID(tree, mapping.Intermediary)
	if err != nil {
		return 0, err
	}

	table := make(map[string]map[string]string)
	for _, e := range entries {
		row := table[e.Key.Owner]
		if row == nil {
			row = make(map[string]string)
			table[e.Key.Owner] = row
		}
		row[e.Key.Field] = e.Desc
	}

	changed := 0
	for _, c := range tree.Classes() {
		row := table[c.Name(inter)]
		if len(row) == 0 {
			continue
		}
		for _, f := range c.Fields() {
			desc, ok := row[f.Name(inter)]
			if !ok {
				continue
			}
			f.SetSrcDesc(tree.MapDesc(desc, inter, mapping.SrcNamespaceID))
			changed++
		}
	}
	return changed, nil
}
