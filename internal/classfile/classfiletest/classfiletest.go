// Package classfiletest builds synthetic class files and jars for tests.
package classfiletest

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"field-migrator/internal/classfile"
)

// FixedZipTime keeps generated jars byte-for-byte reproducible.
var FixedZipTime = time.Unix(315532800, 0).UTC()

// Class describes a class file to generate.
type Class struct {
	Name       string
	Super      string
	Interfaces []string
	Fields     []classfile.Field
	// Methods adds that many methods carrying a Code attribute with
	// undecodable bytes, so readers that touch the method table fail.
	Methods int
}

type pool struct {
	buf   bytes.Buffer
	count uint16
	utf8  map[string]uint16
	class map[string]uint16
}

func newPool() *pool {
	return &pool{count: 1, utf8: map[string]uint16{}, class: map[string]uint16{}}
}

func (p *pool) addUtf8(s string) uint16 {
	if idx, ok := p.utf8[s]; ok {
		return idx
	}
	p.buf.WriteByte(1)
	_ = binary.Write(&p.buf, binary.BigEndian, uint16(len(s)))
	p.buf.WriteString(s)
	idx := p.count
	p.count++
	p.utf8[s] = idx
	return idx
}

func (p *pool) addClass(name string) uint16 {
	if idx, ok := p.class[name]; ok {
		return idx
	}
	n := p.addUtf8(name)
	p.buf.WriteByte(7)
	_ = binary.Write(&p.buf, binary.BigEndian, n)
	idx := p.count
	p.count++
	p.class[name] = idx
	return idx
}

// addLong adds an 8-byte constant, which occupies two pool slots.
func (p *pool) addLong(v int64) {
	p.buf.WriteByte(5)
	_ = binary.Write(&p.buf, binary.BigEndian, v)
	p.count += 2
}

// Bytes encodes c as a Java 17 class file.
func Bytes(c Class) []byte {
	p := newPool()
	this := p.addClass(c.Name)
	var super uint16
	if c.Super != "" {
		super = p.addClass(c.Super)
	}
	ifaces := make([]uint16, 0, len(c.Interfaces))
	for _, i := range c.Interfaces {
		ifaces = append(ifaces, p.addClass(i))
	}
	type fieldRef struct{ access, name, desc uint16 }
	fields := make([]fieldRef, 0, len(c.Fields))
	for _, f := range c.Fields {
		fields = append(fields, fieldRef{f.Access, p.addUtf8(f.Name), p.addUtf8(f.Descriptor)})
	}
	p.addLong(0x7fffffff_00000001)
	constantValue := p.addUtf8("ConstantValue")
	code := p.addUtf8("Code")
	methodName := p.addUtf8("m")
	methodDesc := p.addUtf8("()V")

	var out bytes.Buffer
	w := func(v any) { _ = binary.Write(&out, binary.BigEndian, v) }
	w(uint32(0xCAFEBABE))
	w(uint16(0))
	w(uint16(61))
	w(p.count)
	out.Write(p.buf.Bytes())
	w(uint16(0x0021))
	w(this)
	w(super)
	w(uint16(len(ifaces)))
	for _, i := range ifaces {
		w(i)
	}
	w(uint16(len(fields)))
	for _, f := range fields {
		w(f.access)
		w(f.name)
		w(f.desc)
		// one dummy attribute per field to exercise attribute skipping
		w(uint16(1))
		w(constantValue)
		w(uint32(2))
		w(uint16(0))
	}
	w(uint16(c.Methods))
	for range c.Methods {
		w(uint16(0x0001))
		w(methodName)
		w(methodDesc)
		w(uint16(1))
		w(code)
		w(uint32(3))
		out.Write([]byte{0xFF, 0xFF, 0xFF})
	}
	w(uint16(0))
	return out.Bytes()
}

// Entry is a raw jar entry.
type Entry struct {
	Path string
	Data []byte
}

// EntriesFor lays classes out at their natural paths.
func EntriesFor(classes ...Class) []Entry {
	out := make([]Entry, 0, len(classes))
	for _, c := range classes {
		out = append(out, Entry{Path: c.Name + ".class", Data: Bytes(c)})
	}
	return out
}

// WriteJar writes entries to dir/name in sorted order with fixed timestamps
// and returns the jar path.
func WriteJar(t testing.TB, dir, name string, entries []Entry) string {
	t.Helper()
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range sorted {
		h := &zip.FileHeader{Name: sanitizePath(e.Path), Method: zip.Deflate}
		h.SetMode(0o644)
		h.Modified = FixedZipTime
		fw, err := zw.CreateHeader(h)
		if err != nil {
			t.Fatalf("create %s: %v", e.Path, err)
		}
		if _, err := fw.Write(e.Data); err != nil {
			t.Fatalf("write %s: %v", e.Path, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close jar: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write jar: %v", err)
	}
	return path
}

// sanitizePath normalizes entry paths to forward slashes without a leading
// '/' or '.' and '..' segments.
func sanitizePath(p string) string {
	parts := strings.Split(filepath.ToSlash(p), "/")
	stack := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
		case "..":
			if n := len(stack); n > 0 {
				stack = stack[:n-1]
			}
		default:
			stack = append(stack, part)
		}
	}
	return strings.Join(stack, "/")
}
