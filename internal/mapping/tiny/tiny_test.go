package tiny

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"field-migrator/internal/mapping"
)

const sample = "tiny\t2\t0\tintermediary\tsrg\tnamed\n" +
	"c\tnet/x/C\tnet/A/C\tnet/named/Chunk\n" +
	"\tc\tA chunk.\n" +
	"\tf\tLnet/x/Foo;\tf_1\tfield_123\tfoo\n" +
	"\t\tc\tthe foo\n" +
	"\tf\t[I\tf_2\tfield_124\t\n" +
	"\tm\t(Lnet/x/Foo;I)V\tm_1\tfunc_1\tsetFoo\n" +
	"\t\tc\tsets foo\n" +
	"\t\tp\t1\t\t\tfoo\n" +
	"\t\t\tc\tnew value\n" +
	"\t\tv\t2\t5\t0\t\t\tlocal\n" +
	"c\tnet/x/Foo\tnet/A/Foo\tnet/named/Foo\n" +
	"c\tnet/x/Bar\tnet/A/Bar\t\n"

func TestReadWriteRoundTrip(t *testing.T) {
	tree, err := Read(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, "intermediary", tree.SrcNamespace())
	assert.Equal(t, []string{"srg", "named"}, tree.DstNamespaces())
	require.Len(t, tree.ClassList(), 3)

	c := tree.ClassList()[0]
	assert.Equal(t, "A chunk.", c.Comment)
	require.Len(t, c.FieldList(), 2)
	require.Len(t, c.Methods(), 1)
	m := c.Methods()[0]
	require.Len(t, m.Params, 1)
	require.Len(t, m.Vars, 1)
	assert.Equal(t, "new value", m.Params[0].Comment)
	assert.Equal(t, 5, m.Vars[0].StartOpIdx)
	assert.Equal(t, "", m.Params[0].Name(mapping.SrcNamespaceID))

	var out bytes.Buffer
	n, err := tree.WriteTo(&out)
	require.NoError(t, err)
	assert.Equal(t, int64(len(sample)), n)
	assert.Equal(t, sample, out.String())
}

func TestNamespaceIDs(t *testing.T) {
	tree, err := Read(strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, mapping.SrcNamespaceID, tree.NamespaceID(mapping.Intermediary))
	assert.Equal(t, 0, tree.NamespaceID(mapping.Srg))
	assert.Equal(t, 1, tree.NamespaceID(mapping.Named))
	assert.Equal(t, mapping.NullNamespaceID, tree.NamespaceID(mapping.Official))
}

func TestNamesAndDescriptors(t *testing.T) {
	tree, err := Read(strings.NewReader(sample))
	require.NoError(t, err)
	srg := tree.NamespaceID(mapping.Srg)
	named := tree.NamespaceID(mapping.Named)

	c := tree.Classes()[0]
	assert.Equal(t, "net/A/C", c.Name(srg))
	f := c.Fields()[0]
	assert.Equal(t, "field_123", f.Name(srg))
	assert.Equal(t, "Lnet/x/Foo;", f.Desc(mapping.SrcNamespaceID))
	assert.Equal(t, "Lnet/A/Foo;", f.Desc(srg))
	assert.Equal(t, "Lnet/named/Foo;", f.Desc(named))
	assert.Equal(t, "", f.Desc(7))

	second := c.Fields()[1]
	assert.Equal(t, "", second.Name(named), "missing trailing name is absent")

	bar := tree.Classes()[2]
	assert.Equal(t, "", bar.Name(named))
	// Bar has no named name, so the reference passes through.
	assert.Equal(t, "Lnet/x/Bar;", tree.MapDesc("Lnet/x/Bar;", mapping.SrcNamespaceID, named))
	assert.Equal(t, "(Lnet/x/Bar;[Lnet/x/Foo;)V",
		tree.MapDesc("(Lnet/A/Bar;[Lnet/A/Foo;)V", srg, mapping.SrcNamespaceID))
}

func TestSetSrcDesc(t *testing.T) {
	tree, err := Read(strings.NewReader(sample))
	require.NoError(t, err)
	f := tree.Classes()[0].Fields()[0]
	f.SetSrcDesc("Lnet/x/Bar;")
	assert.Equal(t, "Lnet/A/Bar;", f.Desc(tree.NamespaceID(mapping.Srg)))
	assert.Contains(t, string(tree.Bytes()), "\tf\tLnet/x/Bar;\tf_1\tfield_123\tfoo\n")
}

func TestEscapedNames(t *testing.T) {
	in := "tiny\t2\t0\ta\tb\n" +
		"\tescaped-names\n" +
		"\tmissing-lvt-indices\tyes\n" +
		"c\tx/Tab\\tName\tx/B\\\\s\n" +
		"\tc\tline one\\nline two\n"
	tree, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	assert.True(t, tree.Escaped())
	c := tree.ClassList()[0]
	assert.Equal(t, "x/Tab\tName", c.Name(mapping.SrcNamespaceID))
	assert.Equal(t, `x/B\s`, c.Name(0))
	assert.Equal(t, "line one\nline two", c.Comment)
	assert.Equal(t, in, string(tree.Bytes()))
}

func TestUnknownSectionsAreSkipped(t *testing.T) {
	in := "tiny\t2\t0\ta\tb\n" +
		"x\tsomething\n" +
		"\tnested\tignored\n" +
		"c\tA\tB\n" +
		"\tq\tunknown\n" +
		"\t\tdeep\n" +
		"\tf\tI\tf\tg\n"
	tree, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, tree.ClassList(), 1)
	require.Len(t, tree.ClassList()[0].FieldList(), 1)
}

func TestWriteNormalisesMemberOrder(t *testing.T) {
	in := "tiny\t2\t0\ta\tb\n" +
		"c\tA\tB\n" +
		"\tm\t()V\tm\tn\n" +
		"\tq\tunknown\n" +
		"\tf\tI\tf\tg\n"
	tree, err := Read(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, "tiny\t2\t0\ta\tb\n"+
		"c\tA\tB\n"+
		"\tf\tI\tf\tg\n"+
		"\tm\t()V\tm\tn\n", string(tree.Bytes()))
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"v1 header":      "v1\tofficial\tintermediary\n",
		"no dst":         "tiny\t2\t0\ta\n",
		"too many names": "tiny\t2\t0\ta\tb\nc\tA\tB\tC\n",
		"no src name":    "tiny\t2\t0\ta\tb\nc\t\tB\n",
		"field no desc":  "tiny\t2\t0\ta\tb\nc\tA\tB\n\tf\tI\n",
		"bad escape":     "tiny\t2\t0\ta\tb\n\tescaped-names\nc\tA\\q\tB\n",
		"bad lv index":   "tiny\t2\t0\ta\tb\nc\tA\tB\n\tm\t()V\tm\tn\n\t\tp\tx\ta\tb\n",
	}
	for name, in := range cases {
		_, err := Read(strings.NewReader(in))
		require.Error(t, err, name)
		var pe *ParseError
		assert.True(t, errors.As(err, &pe), "%s: %v", name, err)
	}
}

func TestReadFileNamesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.tiny")
	require.NoError(t, os.WriteFile(path, []byte("nope\n"), 0o644))
	_, err := ReadFile(path)
	assert.ErrorContains(t, err, path)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.tiny"))
	assert.Error(t, err)
}

func TestBuildProgrammatically(t *testing.T) {
	tree := New("intermediary", "srg")
	c := tree.AddClass("net/x/C", "net/A/C")
	c.AddField("I", "f_1", "field_1")
	assert.Equal(t, "tiny\t2\t0\tintermediary\tsrg\nc\tnet/x/C\tnet/A/C\n\tf\tI\tf_1\tfield_1\n", string(tree.Bytes()))

	assert.Same(t, c, tree.Class("net/A/C", 0))
	tree.AddClass("net/x/D", "net/A/D")
	assert.NotNil(t, tree.Class("net/A/D", 0), "index refreshed after AddClass")
}
