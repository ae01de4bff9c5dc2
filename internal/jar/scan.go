// Package jar scans a patched class archive and records the descriptor of
// every declared field, keyed by the owning class's self-name and the field
// name.
//
// The archive is identified with github.com/mholt/archives and read in a
// single Extract pass. Each .class entry's bytes are read on the extracting
// goroutine and parsed on a bounded errgroup pool. The only shared mutable
// state is a shard-locked class map; nobody reads it until the pool has
// drained.
package jar

import (
	"context"
	"io"
	"os"
	"path"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mholt/archives"
	slogctx "github.com/veqryn/slog-context"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"

	"field-migrator/internal/classfile"
	"field-migrator/internal/descriptor"
)

// ClassError names the archive entry that failed to read or parse.
type ClassError struct {
	Path string
	Err  error
}

func (e *ClassError) Error() string {
	return "parse class " + e.Path + ": " + e.Err.Error()
}

func (e *ClassError) Unwrap() error { return e.Err }

// Scanner reads field descriptors from a class archive.
type Scanner struct {
	// Workers bounds the pool; <= 0 means runtime.NumCPU().
	Workers int
}

// archiveFile is what the zip reader needs: random access plus a size.
type archiveFile interface {
	io.Reader
	io.ReaderAt
	io.Seeker
}

// Scan returns (class, field) -> descriptor for every field declared in the
// archive at jarPath. On any failure, cancellation included, no partial
// result is returned.
func (s *Scanner) Scan(ctx context.Context, jarPath string) (map[descriptor.FieldKey]string, error) {
	start := time.Now()
	f, err := os.Open(jarPath)
	if err != nil {
		return nil, errors.Errorf("open patched jar %s: %w", jarPath, err)
	}
	// Released once, after every task has drained.
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Errorf("stat patched jar %s: %w", jarPath, err)
	}
	result, classes, err := s.scan(ctx, jarPath, f)
	if err != nil {
		return nil, err
	}
	slogctx.Debug(ctx, "scanned patched jar",
		"jar", jarPath,
		"size", humanize.Bytes(uint64(info.Size())),
		"classes", classes,
		"fields", len(result),
		"took", time.Since(start))
	return result, nil
}

func (s *Scanner) workers() int {
	if s.Workers <= 0 {
		return runtime.NumCPU()
	}
	return s.Workers
}

// scan reads archive in one pass. It returns the field map and the number of
// class entries seen.
func (s *Scanner) scan(ctx context.Context, name string, archive archiveFile) (map[descriptor.FieldKey]string, int, error) {
	format, _, err := archives.Identify(ctx, name, archive)
	if err != nil {
		return nil, 0, errors.Errorf("identify patched jar %s: %w", name, err)
	}
	extractor, ok := format.(archives.Extractor)
	if !ok {
		return nil, 0, errors.Errorf("patched jar %s is not an archive (%s)", name, format.Extension())
	}
	if _, err := archive.Seek(0, io.SeekStart); err != nil {
		return nil, 0, errors.Errorf("rewind patched jar %s: %w", name, err)
	}

	out := newClassMap()
	classes := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())
	extractErr := extractor.Extract(gctx, archive, func(ctx context.Context, info archives.FileInfo) error {
		if !info.Mode().IsRegular() || !strings.HasSuffix(info.NameInArchive, ".class") {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		p := entryPath(info.NameInArchive)
		data, err := readEntry(info)
		if err != nil {
			return &ClassError{Path: p, Err: err}
		}
		classes++
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return parseClass(p, data, out)
		})
		return nil
	})
	// A task error cancels gctx and stops extraction, so report it first.
	if err := g.Wait(); err != nil {
		return nil, 0, errors.Errorf("scan patched jar %s: %w", name, err)
	}
	if extractErr != nil {
		return nil, 0, errors.Errorf("scan patched jar %s: %w", name, extractErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, errors.Errorf("scan patched jar %s: %w", name, err)
	}
	return out.snapshot(), classes, nil
}

// entryPath normalizes an archive entry name to a clean slash path.
func entryPath(name string) string {
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}

func readEntry(info archives.FileInfo) ([]byte, error) {
	rc, err := info.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// parseClass decodes one class file; nothing about it outlives the call
// except the entry handed to out.
func parseClass(p string, data []byte, out *classMap) error {
	c, err := classfile.Read(data)
	if err != nil {
		return &ClassError{Path: p, Err: err}
	}
	out.put(c.Name, p, c.Fields)
	return nil
}
