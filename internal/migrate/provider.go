package migrate

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	slogctx "github.com/veqryn/slog-context"
	"gitlab.com/tozd/go/errors"

	"field-migrator/internal/cache"
	"field-migrator/internal/descriptor"
	"field-migrator/internal/mapping/tiny"
)

// OutputFileName is the rewritten mapping file inside the cache directory.
const OutputFileName = "mappings-field-migrated.tiny"

// Scanner produces srg-keyed field descriptors from a patched jar.
type Scanner interface {
	Scan(ctx context.Context, jarPath string) (map[descriptor.FieldKey]string, error)
}

// Inputs are the paths and flags supplied by the build.
type Inputs struct {
	PatchedJar string
	// Mappings is the Tiny v2 tree that gets rewritten.
	Mappings string
	// SrgMappings is the tree carrying srg and intermediary names used for
	// diffing. Empty means Mappings.
	SrgMappings string
	CacheDir    string
	Refresh     bool
}

// Provider runs the two-phase migration against the cache directory.
type Provider struct {
	Inputs
	Scanner Scanner
}

// Result describes what a run did.
type Result struct {
	Entries     []descriptor.Entry
	Scanned     bool // phase A regenerated the cache
	CacheLoaded bool // phase A reused the cache
	Rewritten   bool // phase B wrote the output mapping
	Changed     int  // fields whose source descriptor was rewritten
	CachePath   string
	OutputPath  string
}

// cachePath is where phase A stores the computed entries.
func (p *Provider) cachePath() string { return cache.Path(p.CacheDir) }

// outputPath is where phase B publishes the rewritten mappings.
func (p *Provider) outputPath() string { return filepath.Join(p.CacheDir, OutputFileName) }

func (p *Provider) srgMappings() string {
	if p.SrgMappings != "" {
		return p.SrgMappings
	}
	return p.Mappings
}

// Run loads or regenerates the migration set (phase A) and writes the
// rewritten mapping file if it is missing (phase B). Nothing is published
// on failure.
func (p *Provider) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	if p.Mappings == "" {
		return nil, errors.New("no source mappings configured")
	}
	if p.CacheDir == "" {
		return nil, errors.New("no cache directory configured")
	}
	res := &Result{CachePath: p.cachePath(), OutputPath: p.outputPath()}

	if p.Refresh {
		slogctx.Debug(ctx, "refresh requested, deleting migrated field cache", "cache", res.CachePath)
		if err := cache.Clear(res.CachePath); err != nil {
			return nil, err
		}
	}

	entries, ok, err := cache.Load(res.CachePath)
	if err != nil {
		return nil, err
	}
	if ok {
		res.CacheLoaded = true
	} else {
		if entries, err = p.generate(ctx); err != nil {
			return nil, err
		}
		if err := cache.Save(res.CachePath, entries); err != nil {
			return nil, err
		}
		// A fresh migration set invalidates any earlier rewrite.
		if err := removeIfExists(res.OutputPath); err != nil {
			return nil, err
		}
		res.Scanned = true
	}
	res.Entries = entries

	exists, err := fileExists(res.OutputPath)
	if err != nil {
		return nil, err
	}
	if !exists {
		if res.Changed, err = p.apply(ctx, entries, res.OutputPath); err != nil {
			return nil, err
		}
		res.Rewritten = true
	}

	slogctx.Info(ctx, "migrated srg fields in "+time.Since(start).String(),
		"migrations", len(entries),
		"scanned", res.Scanned,
		"rewritten", res.Rewritten)
	return res, nil
}

func (p *Provider) generate(ctx context.Context) ([]descriptor.Entry, error) {
	if p.Scanner == nil {
		return nil, errors.New("no scanner configured")
	}
	if p.PatchedJar == "" {
		return nil, errors.New("no patched jar configured")
	}
	scanned, err := p.Scanner.Scan(ctx, p.PatchedJar)
	if err != nil {
		return nil, err
	}
	tree, err := tiny.ReadFile(p.srgMappings())
	if err != nil {
		return nil, err
	}
	entries, err := Diff(ctx, scanned, tree)
	if err != nil {
		return nil, errors.Errorf("diff %s: %w", p.srgMappings(), err)
	}
	return entries, nil
}

func (p *Provider) apply(ctx context.Context, entries []descriptor.Entry, out string) (int, error) {
	tree, err := tiny.ReadFile(p.Mappings)
	if err != nil {
		return 0, err
	}
	changed, err := Rewrite(tree, entries)
	if err != nil {
		return 0, errors.Errorf("rewrite %s: %w", p.Mappings, err)
	}
	data := tree.Bytes()
	if err := cache.WriteFileAtomic(out, data); err != nil {
		return 0, errors.Errorf("write migrated mappings %s: %w", out, err)
	}
	slogctx.Debug(ctx, "wrote migrated mappings",
		"path", out,
		"size", humanize.Bytes(uint64(len(data))),
		"changed", changed)
	return changed, nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, errors.Errorf("stat %s: %w", path, err)
	}
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Errorf("delete %s: %w", path, err)
	}
	return nil
}
