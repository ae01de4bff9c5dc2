package tiny

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// ParseError reports a malformed line.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("tiny v2 line %d: %s", e.Line, e.Msg)
}

// ReadFile reads a Tiny v2 file from disk.
func ReadFile(path string) (*Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Errorf("open mappings %s: %w", path, err)
	}
	defer f.Close()
	t, err := Read(f)
	if err != nil {
		return nil, errors.Errorf("read mappings %s: %w", path, err)
	}
	return t, nil
}

type parser struct {
	t       *Tree
	line    int
	escaped bool

	class  *Class
	field  *Field
	method *Method
	param  *Param
	lvar   *Var

	// skipBelow > 0 ignores every line deeper than it (children of an
	// unknown section).
	skipBelow int
}

// Read parses a Tiny v2 stream.
func Read(r io.Reader) (*Tree, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	p := &parser{}
	for sc.Scan() {
		p.line++
		raw := strings.TrimSuffix(sc.Text(), "\r")
		if p.line == 1 {
			if err := p.header(raw); err != nil {
				return nil, err
			}
			continue
		}
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if err := p.next(raw); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	if p.t == nil {
		return nil, &ParseError{Line: 1, Msg: "missing header"}
	}
	return p.t, nil
}

func (p *parser) fail(format string, args ...any) error {
	return &ParseError{Line: p.line, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) header(line string) error {
	cols := strings.Split(line, "\t")
	if len(cols) < 5 || cols[0] != "tiny" || cols[1] != "2" {
		return p.fail("not a tiny v2 header: %q", line)
	}
	minor, err := strconv.Atoi(cols[2])
	if err != nil {
		return p.fail("bad minor version %q", cols[2])
	}
	for _, ns := range cols[3:] {
		if ns == "" {
			return p.fail("empty namespace name")
		}
	}
	p.t = New(cols[3], cols[4:]...)
	p.t.Minor = minor
	return nil
}

func (p *parser) next(line string) error {
	depth := 0
	for depth < len(line) && line[depth] == '\t' {
		depth++
	}
	if p.skipBelow > 0 {
		if depth > p.skipBelow-1 {
			return nil
		}
		p.skipBelow = 0
	}
	cols := strings.Split(line[depth:], "\t")
	kind := cols[0]
	args := cols[1:]

	switch depth {
	case 0:
		p.field, p.method, p.param, p.lvar = nil, nil, nil, nil
		if kind != "c" {
			p.class = nil
			p.skipBelow = depth + 1
			return nil
		}
		names, err := p.names(args)
		if err != nil {
			return err
		}
		p.class = p.t.AddClass(names...)
		return nil
	case 1:
		if p.class == nil {
			return p.property(kind, args)
		}
		p.field, p.method, p.param, p.lvar = nil, nil, nil, nil
		switch kind {
		case "c":
			return p.comment(args, func(s string) { p.class.Comment = s })
		case "f", "m":
			if len(args) < 2 {
				return p.fail("%s: want descriptor and names", kind)
			}
			desc, err := p.unescapeName(args[0])
			if err != nil {
				return err
			}
			names, err := p.names(args[1:])
			if err != nil {
				return err
			}
			if kind == "f" {
				p.field = p.class.AddField(desc, names...)
			} else {
				p.method = p.class.AddMethod(desc, names...)
			}
			return nil
		}
	case 2:
		p.param, p.lvar = nil, nil
		switch {
		case kind == "c" && p.field != nil:
			return p.comment(args, func(s string) { p.field.Comment = s })
		case kind == "c" && p.method != nil:
			return p.comment(args, func(s string) { p.method.Comment = s })
		case kind == "p" && p.method != nil:
			return p.addParam(args)
		case kind == "v" && p.method != nil:
			return p.addVar(args)
		}
	case 3:
		switch {
		case kind == "c" && p.param != nil:
			return p.comment(args, func(s string) { p.param.Comment = s })
		case kind == "c" && p.lvar != nil:
			return p.comment(args, func(s string) { p.lvar.Comment = s })
		}
	}
	if p.class == nil && depth > 0 {
		return p.fail("%q outside of a class", kind)
	}
	p.skipBelow = depth + 1
	return nil
}

func (p *parser) property(key string, args []string) error {
	if key == "" {
		return p.fail("empty property key")
	}
	prop := Property{Key: key}
	if len(args) > 0 {
		prop.Value = strings.Join(args, "\t")
	}
	p.t.Properties = append(p.t.Properties, prop)
	if key == EscapedNamesProperty {
		p.escaped = true
	}
	return nil
}

func (p *parser) addParam(args []string) error {
	if len(args) < 1 {
		return p.fail("p: missing lv index")
	}
	idx, err := strconv.Atoi(args[0])
	if err != nil {
		return p.fail("p: bad lv index %q", args[0])
	}
	names, err := p.optionalNames(args[1:])
	if err != nil {
		return err
	}
	p.param = &Param{LvIndex: idx, names: p.t.names(names)}
	p.method.Params = append(p.method.Params, p.param)
	return nil
}

func (p *parser) addVar(args []string) error {
	if len(args) < 3 {
		return p.fail("v: want lv index, start op and lvt row")
	}
	var nums [3]int
	for i := range nums {
		n, err := strconv.Atoi(args[i])
		if err != nil {
			return p.fail("v: bad number %q", args[i])
		}
		nums[i] = n
	}
	names, err := p.optionalNames(args[3:])
	if err != nil {
		return err
	}
	p.lvar = &Var{LvIndex: nums[0], StartOpIdx: nums[1], LvtRowIndex: nums[2], names: p.t.names(names)}
	p.method.Vars = append(p.method.Vars, p.lvar)
	return nil
}

func (p *parser) comment(args []string, set func(string)) error {
	if len(args) != 1 {
		return p.fail("comment: want exactly one column")
	}
	s, err := unescape(args[0])
	if err != nil {
		return p.fail("comment: %v", err)
	}
	set(s)
	return nil
}

func (p *parser) names(cols []string) ([]string, error) {
	if len(cols) == 0 || cols[0] == "" {
		return nil, p.fail("missing source name")
	}
	return p.optionalNames(cols)
}

// optionalNames allows an empty source name, as parameters and local
// variables may be unnamed in the source namespace.
func (p *parser) optionalNames(cols []string) ([]string, error) {
	if len(cols) > p.t.width() {
		return nil, p.fail("%d names for %d namespaces", len(cols), p.t.width())
	}
	out := make([]string, len(cols))
	for i, c := range cols {
		n, err := p.unescapeName(c)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func (p *parser) unescapeName(s string) (string, error) {
	if !p.escaped {
		return s, nil
	}
	n, err := unescape(s)
	if err != nil {
		return "", p.fail("%v", err)
	}
	return n, nil
}

func unescape(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i == len(s) {
			return "", errors.New("dangling escape")
		}
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '0':
			b.WriteByte(0)
		default:
			return "", errors.Errorf("unknown escape \\%c", s[i])
		}
	}
	return b.String(), nil
}
