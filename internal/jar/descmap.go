package jar

import (
	"hash/maphash"
	"sync"

	"field-migrator/internal/classfile"
	"field-migrator/internal/descriptor"
)

const shardCount = 64

type located struct {
	path   string
	fields []classfile.Field
}

// classMap is a shard-locked map from class self-name to the field table of
// the archive entry that declared it. Safe for concurrent puts.
type classMap struct {
	seed   maphash.Seed
	shards [shardCount]struct {
		sync.Mutex
		m map[string]located
	}
}

func newClassMap() *classMap {
	d := &classMap{seed: maphash.MakeSeed()}
	for i := range d.shards {
		d.shards[i].m = make(map[string]located)
	}
	return d
}

// put records the fields of class name as declared by the entry at path.
// When two entries declare the same class (multi-release jars), the entry
// with the smallest path wins as a whole, so the result does not depend on
// scheduling and never mixes fields of two versions.
func (d *classMap) put(name, path string, fields []classfile.Field) {
	s := &d.shards[maphash.String(d.seed, name)%shardCount]
	s.Lock()
	defer s.Unlock()
	if prev, ok := s.m[name]; ok && prev.path < path {
		return
	}
	s.m[name] = located{path: path, fields: fields}
}

// snapshot flattens the shards into (class, field) -> descriptor. Call only
// after all writers are done.
func (d *classMap) snapshot() map[descriptor.FieldKey]string {
	n := 0
	for i := range d.shards {
		for _, c := range d.shards[i].m {
			n += len(c.fields)
		}
	}
	out := make(map[descriptor.FieldKey]string, n)
	for i := range d.shards {
		for name, c := range d.shards[i].m {
			for _, f := range c.fields {
				out[descriptor.FieldKey{Owner: name, Field: f.Name}] = f.Descriptor
			}
		}
	}
	return out
}
