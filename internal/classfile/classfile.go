// Package classfile reads the parts of a JVM class file that the field
// scanner needs: the constant pool, the class header and the field table.
//
// The method table, code attributes, debug attributes and stack map frames
// are never decoded; reading stops right after the last field.
package classfile

import (
	"encoding/binary"
	"unicode/utf16"

	"gitlab.com/tozd/go/errors"
)

const magic = 0xCAFEBABE

// Constant pool tags.
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

// ErrTruncated is returned when the input ends inside a structure.
var ErrTruncated = errors.Base("class file truncated")

// Field is one entry of the field table.
type Field struct {
	Access     uint16
	Name       string
	Descriptor string
}

// Class is the header and field table of a class file.
type Class struct {
	Major, Minor uint16
	Access       uint16
	Name         string // internal form, e.g. net/minecraft/world/World
	SuperName    string // empty for java/lang/Object and module-info
	Interfaces   []string
	Fields       []Field
}

type reader struct {
	data []byte
	off  int
	pool []cpEntry
}

type cpEntry struct {
	tag  byte
	utf8 string
	ref  uint16 // name index for Class, Module, Package
}

// Read parses data.
func Read(data []byte) (*Class, error) {
	r := &reader{data: data}
	m, err := r.u4()
	if err != nil {
		return nil, err
	}
	if m != magic {
		return nil, errors.Errorf("bad magic 0x%08X", m)
	}
	c := &Class{}
	if c.Minor, err = r.u2(); err != nil {
		return nil, err
	}
	if c.Major, err = r.u2(); err != nil {
		return nil, err
	}
	if err := r.readPool(); err != nil {
		return nil, err
	}
	if c.Access, err = r.u2(); err != nil {
		return nil, err
	}
	if c.Name, err = r.classRef(false); err != nil {
		return nil, errors.Errorf("this_class: %w", err)
	}
	if c.SuperName, err = r.classRef(true); err != nil {
		return nil, errors.Errorf("super_class: %w", err)
	}
	n, err := r.u2()
	if err != nil {
		return nil, err
	}
	for range n {
		name, err := r.classRef(false)
		if err != nil {
			return nil, errors.Errorf("interfaces: %w", err)
		}
		c.Interfaces = append(c.Interfaces, name)
	}
	if c.Fields, err = r.readFields(); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *reader) readPool() error {
	count, err := r.u2()
	if err != nil {
		return err
	}
	if count == 0 {
		return errors.New("constant_pool_count is zero")
	}
	r.pool = make([]cpEntry, count)
	for i := 1; i < int(count); i++ {
		tag, err := r.u1()
		if err != nil {
			return err
		}
		e := cpEntry{tag: tag}
		switch tag {
		case tagUtf8:
			l, err := r.u2()
			if err != nil {
				return err
			}
			b, err := r.bytes(int(l))
			if err != nil {
				return err
			}
			if e.utf8, err = decodeModifiedUTF8(b); err != nil {
				return errors.Errorf("constant %d: %w", i, err)
			}
		case tagClass, tagModule, tagPackage:
			if e.ref, err = r.u2(); err != nil {
				return err
			}
		case tagString, tagMethodType:
			err = r.skip(2)
		case tagMethodHandle:
			err = r.skip(3)
		case tagInteger, tagFloat, tagFieldref, tagMethodref, tagInterfaceMethodref,
			tagNameAndType, tagDynamic, tagInvokeDynamic:
			err = r.skip(4)
		case tagLong, tagDouble:
			if err := r.skip(8); err != nil {
				return err
			}
			r.pool[i] = e
			i++ // 8-byte constants take two slots
			continue
		default:
			return errors.Errorf("constant %d: unknown tag %d", i, tag)
		}
		if err != nil {
			return err
		}
		r.pool[i] = e
	}
	return nil
}

func (r *reader) readFields() ([]Field, error) {
	n, err := r.u2()
	if err != nil {
		return nil, err
	}
	fields := make([]Field, 0, n)
	for i := range n {
		var f Field
		if f.Access, err = r.u2(); err != nil {
			return nil, err
		}
		if f.Name, err = r.utf8Ref(); err != nil {
			return nil, errors.Errorf("field %d name: %w", i, err)
		}
		if f.Descriptor, err = r.utf8Ref(); err != nil {
			return nil, errors.Errorf("field %s descriptor: %w", f.Name, err)
		}
		if err := r.skipAttributes(); err != nil {
			return nil, errors.Errorf("field %s attributes: %w", f.Name, err)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func (r *reader) skipAttributes() error {
	n, err := r.u2()
	if err != nil {
		return err
	}
	for range n {
		if err := r.skip(2); err != nil {
			return err
		}
		l, err := r.u4()
		if err != nil {
			return err
		}
		if err := r.skip(int(l)); err != nil {
			return err
		}
	}
	return nil
}

func (r *reader) entry(idx uint16, tag byte) (cpEntry, error) {
	if idx == 0 || int(idx) >= len(r.pool) {
		return cpEntry{}, errors.Errorf("constant index %d out of range", idx)
	}
	e := r.pool[idx]
	if e.tag != tag {
		return cpEntry{}, errors.Errorf("constant %d has tag %d, want %d", idx, e.tag, tag)
	}
	return e, nil
}

func (r *reader) utf8Ref() (string, error) {
	idx, err := r.u2()
	if err != nil {
		return "", err
	}
	e, err := r.entry(idx, tagUtf8)
	if err != nil {
		return "", err
	}
	return e.utf8, nil
}

func (r *reader) classRef(optional bool) (string, error) {
	idx, err := r.u2()
	if err != nil {
		return "", err
	}
	if idx == 0 && optional {
		return "", nil
	}
	c, err := r.entry(idx, tagClass)
	if err != nil {
		return "", err
	}
	name, err := r.entry(c.ref, tagUtf8)
	if err != nil {
		return "", err
	}
	return name.utf8, nil
}

func (r *reader) u1() (byte, error) {
	if r.off+1 > len(r.data) {
		return 0, errors.WithStack(ErrTruncated)
	}
	b := r.data[r.off]
	r.off++
	return b, nil
}

func (r *reader) u2() (uint16, error) {
	if r.off+2 > len(r.data) {
		return 0, errors.WithStack(ErrTruncated)
	}
	v := binary.BigEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v, nil
}

func (r *reader) u4() (uint32, error) {
	if r.off+4 > len(r.data) {
		return 0, errors.WithStack(ErrTruncated)
	}
	v := binary.BigEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.data) {
		return nil, errors.WithStack(ErrTruncated)
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) skip(n int) error {
	_, err := r.bytes(n)
	return err
}

// decodeModifiedUTF8 decodes the JVM's modified UTF-8: NUL is encoded as
// C0 80 and supplementary characters as surrogate pairs of 3-byte sequences.
func decodeModifiedUTF8(b []byte) (string, error) {
	ascii := true
	for _, c := range b {
		if c >= 0x80 || c == 0 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b), nil
	}
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c == 0:
			return "", errors.New("modified utf-8: raw NUL byte")
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", errors.New("modified utf-8: bad 2-byte sequence")
			}
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return "", errors.New("modified utf-8: bad 3-byte sequence")
			}
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			return "", errors.Errorf("modified utf-8: invalid lead byte 0x%02X", c)
		}
	}
	return string(utf16.Decode(units)), nil
}
