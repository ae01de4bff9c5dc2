package jar

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
	"go.uber.org/goleak"

	"field-migrator/internal/classfile"
	"field-migrator/internal/classfile/classfiletest"
	"field-migrator/internal/descriptor"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func key(owner, field string) descriptor.FieldKey {
	return descriptor.FieldKey{Owner: owner, Field: field}
}

func TestScanRecordsEveryField(t *testing.T) {
	entries := classfiletest.EntriesFor(
		classfiletest.Class{
			Name:  "net/A/C",
			Super: "java/lang/Object",
			Fields: []classfile.Field{
				{Name: "field_123", Descriptor: "Lnet/A/Bar;"},
				{Name: "field_124", Descriptor: "[I"},
			},
			Methods: 2,
		},
		classfiletest.Class{Name: "net/A/Bar"},
	)
	// Self-name wins over the archive path.
	entries = append(entries,
		classfiletest.Entry{
			Path: "obf/zz.class",
			Data: classfiletest.Bytes(classfiletest.Class{
				Name:   "net/A/Hidden",
				Fields: []classfile.Field{{Name: "field_9", Descriptor: "J"}},
			}),
		},
		classfiletest.Entry{Path: "META-INF/MANIFEST.MF", Data: []byte("Manifest-Version: 1.0\n")},
		classfiletest.Entry{Path: "assets/readme.txt", Data: []byte("not a class")},
	)
	jarPath := classfiletest.WriteJar(t, t.TempDir(), "patched.jar", entries)

	got, err := (&Scanner{Workers: 2}).Scan(context.Background(), jarPath)
	require.NoError(t, err)
	assert.Equal(t, map[descriptor.FieldKey]string{
		key("net/A/C", "field_123"):    "Lnet/A/Bar;",
		key("net/A/C", "field_124"):    "[I",
		key("net/A/Hidden", "field_9"): "J",
	}, got)
}

func TestScanThousandClassesAnyPoolSize(t *testing.T) {
	classes := make([]classfiletest.Class, 0, 1000)
	for i := range 1000 {
		classes = append(classes, classfiletest.Class{
			Name:   fmt.Sprintf("net/gen/p%02d/C%04d", i%17, i),
			Fields: []classfile.Field{{Name: "field_0", Descriptor: fmt.Sprintf("Lnet/gen/T%04d;", i)}},
		})
	}
	jarPath := classfiletest.WriteJar(t, t.TempDir(), "big.jar", classfiletest.EntriesFor(classes...))

	for _, workers := range []int{1, 2, 8, 64} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			got, err := (&Scanner{Workers: workers}).Scan(context.Background(), jarPath)
			require.NoError(t, err)
			require.Len(t, got, 1000)
			for i := range 1000 {
				k := key(fmt.Sprintf("net/gen/p%02d/C%04d", i%17, i), "field_0")
				require.Equal(t, fmt.Sprintf("Lnet/gen/T%04d;", i), got[k], k.String())
			}
		})
	}
}

func TestScanDuplicateClassSmallestPathWins(t *testing.T) {
	base := classfiletest.Class{Name: "a/B", Fields: []classfile.Field{{Name: "f", Descriptor: "I"}}}
	versioned := classfiletest.Class{Name: "a/B", Fields: []classfile.Field{{Name: "f", Descriptor: "J"}}}
	jarPath := classfiletest.WriteJar(t, t.TempDir(), "mr.jar", []classfiletest.Entry{
		{Path: "a/B.class", Data: classfiletest.Bytes(base)},
		{Path: "META-INF/versions/17/a/B.class", Data: classfiletest.Bytes(versioned)},
	})
	for range 5 {
		got, err := (&Scanner{Workers: 4}).Scan(context.Background(), jarPath)
		require.NoError(t, err)
		assert.Equal(t, "J", got[key("a/B", "f")], "META-INF/... sorts before a/...")
	}
}

func TestScanDuplicateClassWinsAsAWhole(t *testing.T) {
	base := classfiletest.Class{Name: "a/B", Fields: []classfile.Field{
		{Name: "f", Descriptor: "I"},
		{Name: "g", Descriptor: "I"},
	}}
	versioned := classfiletest.Class{Name: "a/B", Fields: []classfile.Field{{Name: "f", Descriptor: "J"}}}
	jarPath := classfiletest.WriteJar(t, t.TempDir(), "mr.jar", []classfiletest.Entry{
		{Path: "a/B.class", Data: classfiletest.Bytes(base)},
		{Path: "META-INF/versions/17/a/B.class", Data: classfiletest.Bytes(versioned)},
	})
	for _, workers := range []int{1, 4} {
		got, err := (&Scanner{Workers: workers}).Scan(context.Background(), jarPath)
		require.NoError(t, err)
		assert.Equal(t, map[descriptor.FieldKey]string{key("a/B", "f"): "J"}, got,
			"fields of the losing entry must not leak in")
	}
}

func TestScanFailsOnBrokenClass(t *testing.T) {
	entries := classfiletest.EntriesFor(classfiletest.Class{Name: "ok/A"}, classfiletest.Class{Name: "ok/B"})
	entries = append(entries, classfiletest.Entry{Path: "bad/Broken.class", Data: []byte{0xCA, 0xFE, 0xBA, 0xBE, 0x00}})
	jarPath := classfiletest.WriteJar(t, t.TempDir(), "broken.jar", entries)

	got, err := (&Scanner{Workers: 3}).Scan(context.Background(), jarPath)
	require.Error(t, err)
	assert.Nil(t, got)
	var ce *ClassError
	require.True(t, errors.As(err, &ce), "%v", err)
	assert.Equal(t, "bad/Broken.class", ce.Path)
	assert.True(t, errors.Is(err, classfile.ErrTruncated))
	assert.ErrorContains(t, err, jarPath)
}

func TestScanMissingJar(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.jar")
	_, err := (&Scanner{}).Scan(context.Background(), missing)
	assert.ErrorContains(t, err, missing)
}

func TestScanNotAnArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.jar")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a zip file\n"), 0o644))
	_, err := (&Scanner{}).Scan(context.Background(), path)
	assert.ErrorContains(t, err, path)
}

func TestClassMapConcurrentPuts(t *testing.T) {
	d := newClassMap()
	done := make(chan struct{})
	for w := range 8 {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := range 500 {
				fields := []classfile.Field{{Name: "f", Descriptor: fmt.Sprintf("Lw%d;", w)}}
				d.put(fmt.Sprintf("c%d", i), fmt.Sprintf("p%d", w), fields)
			}
		}()
	}
	for range 8 {
		<-done
	}
	snap := d.snapshot()
	require.Len(t, snap, 500)
	for _, v := range snap {
		assert.Equal(t, "Lw0;", v, "smallest path p0 wins")
	}
}

// trackedFile observes how the scanner reads the archive.
type trackedFile struct {
	*os.File
	size      int64
	tailReads atomic.Int32
	onReadAt  func(off int64)
}

func openTracked(t *testing.T, path string) *trackedFile {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	info, err := f.Stat()
	require.NoError(t, err)
	return &trackedFile{File: f, size: info.Size()}
}

// ReadAt counts reads that touch the end-of-central-directory record, which
// happens once per parse of the zip directory.
func (f *trackedFile) ReadAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > f.size-22 {
		f.tailReads.Add(1)
	}
	if f.onReadAt != nil {
		f.onReadAt(off)
	}
	return f.File.ReadAt(p, off)
}

func manyClasses(n int) []classfiletest.Entry {
	classes := make([]classfiletest.Class, 0, n)
	for i := range n {
		classes = append(classes, classfiletest.Class{
			Name:   fmt.Sprintf("net/gen/C%04d", i),
			Fields: []classfile.Field{{Name: "field_0", Descriptor: "J"}},
		})
	}
	return classfiletest.EntriesFor(classes...)
}

func TestScanReadsDirectoryOnce(t *testing.T) {
	jarPath := classfiletest.WriteJar(t, t.TempDir(), "big.jar", manyClasses(500))
	f := openTracked(t, jarPath)

	got, classes, err := (&Scanner{Workers: 4}).scan(context.Background(), jarPath, f)
	require.NoError(t, err)
	assert.Len(t, got, 500)
	assert.Equal(t, 500, classes)
	assert.LessOrEqual(t, f.tailReads.Load(), int32(5), "central directory parsed once, not per entry")
}

func TestScanCancelledMidwayReturnsNothing(t *testing.T) {
	jarPath := classfiletest.WriteJar(t, t.TempDir(), "big.jar", manyClasses(500))
	f := openTracked(t, jarPath)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var once sync.Once
	// Entry data sits in the front of the file, the directory at the back.
	f.onReadAt = func(off int64) {
		if off > f.size/4 && off < f.size/2 {
			once.Do(cancel)
		}
	}

	got, _, err := (&Scanner{Workers: 1}).scan(ctx, jarPath, f)
	require.Error(t, err)
	assert.Nil(t, got)
	assert.True(t, errors.Is(err, context.Canceled), "%v", err)
}

func TestScanCancelledBeforeStart(t *testing.T) {
	jarPath := classfiletest.WriteJar(t, t.TempDir(), "small.jar", manyClasses(10))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got, err := (&Scanner{Workers: 1}).Scan(ctx, jarPath)
	require.Error(t, err)
	assert.Nil(t, got)
}
