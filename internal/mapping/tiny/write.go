package tiny

import (
	"io"
	"strconv"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// WriteTo serialises the tree as Tiny v2. Classes and members keep insertion
// order, but each class lists its fields before its methods.
func (t *Tree) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	t.encode(&b)
	n, err := io.WriteString(w, b.String())
	if err != nil {
		return int64(n), errors.WithStack(err)
	}
	return int64(n), nil
}

// Bytes returns the serialised tree.
func (t *Tree) Bytes() []byte {
	var b strings.Builder
	t.encode(&b)
	return []byte(b.String())
}

type encoder struct {
	b       *strings.Builder
	escaped bool
}

func (t *Tree) encode(b *strings.Builder) {
	e := encoder{b: b, escaped: t.Escaped()}
	b.WriteString("tiny\t2\t")
	b.WriteString(strconv.Itoa(t.Minor))
	b.WriteByte('\t')
	b.WriteString(t.src)
	for _, ns := range t.dst {
		b.WriteByte('\t')
		b.WriteString(ns)
	}
	b.WriteByte('\n')

	for _, p := range t.Properties {
		b.WriteByte('\t')
		b.WriteString(p.Key)
		if p.Value != "" {
			b.WriteByte('\t')
			b.WriteString(p.Value)
		}
		b.WriteByte('\n')
	}

	for _, c := range t.classes {
		b.WriteString("c")
		e.names(c.names)
		b.WriteByte('\n')
		e.comment(1, c.Comment)
		for _, f := range c.fields {
			b.WriteString("\tf\t")
			e.name(f.desc)
			e.names(f.names)
			b.WriteByte('\n')
			e.comment(2, f.Comment)
		}
		for _, m := range c.methods {
			b.WriteString("\tm\t")
			e.name(m.desc)
			e.names(m.names)
			b.WriteByte('\n')
			e.comment(2, m.Comment)
			for _, p := range m.Params {
				b.WriteString("\t\tp\t")
				b.WriteString(strconv.Itoa(p.LvIndex))
				e.names(p.names)
				b.WriteByte('\n')
				e.comment(3, p.Comment)
			}
			for _, v := range m.Vars {
				b.WriteString("\t\tv\t")
				b.WriteString(strconv.Itoa(v.LvIndex))
				b.WriteByte('\t')
				b.WriteString(strconv.Itoa(v.StartOpIdx))
				b.WriteByte('\t')
				b.WriteString(strconv.Itoa(v.LvtRowIndex))
				e.names(v.names)
				b.WriteByte('\n')
				e.comment(3, v.Comment)
			}
		}
	}
}

func (e encoder) names(names []string) {
	for _, n := range names {
		e.b.WriteByte('\t')
		e.name(n)
	}
}

func (e encoder) name(s string) {
	if e.escaped {
		s = escape(s)
	}
	e.b.WriteString(s)
}

func (e encoder) comment(depth int, s string) {
	if s == "" {
		return
	}
	e.b.WriteString(strings.Repeat("\t", depth))
	e.b.WriteString("c\t")
	e.b.WriteString(escape(s))
	e.b.WriteByte('\n')
}

var escaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`, "\t", `\t`, "\x00", `\0`)

func escape(s string) string { return escaper.Replace(s) }
