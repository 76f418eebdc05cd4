package trace

import (
	"bytes"
	"encoding/binary"
	"strings"
)

// Field describes a single field within an event format.
type Field struct {
	// Decl is the C declaration of the field, without the name.
	Decl string
	Name string
	// Offset from the beginning of the record, in bytes.
	Offset uint32
	// Size of the field in bytes. For dynamic arrays this is the size of the location word.
	Size   uint32
	Signed bool
	// Number of elements of fixed size arrays, zero otherwise.
	NumElements uint32
	// Dynamic is set for __data_loc fields. Their value is a 32-bit word; the low 16 bits are the offset of the data
	// and the high 16 bits its length.
	Dynamic bool
}

// IsString reports whether the field holds characters rather than a number.
func (f *Field) IsString() bool {
	return f.Dynamic || (f.NumElements > 0 && strings.HasPrefix(f.Decl, "char"))
}

// ReadNumber reads the field as an unsigned integer of the field's declared width. Values are never sign extended.
// It returns false if f is nil, the width is not one of 1, 2, 4 or 8, or rec is too short.
func (f *Field) ReadNumber(rec []byte) (uint64, bool) {
	if f == nil {
		return 0, false
	}
	end := uint64(f.Offset) + uint64(f.Size)
	if end > uint64(len(rec)) {
		return 0, false
	}
	b := rec[f.Offset:end]
	switch f.Size {
	case 1:
		return uint64(b[0]), true
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), true
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), true
	case 8:
		return binary.LittleEndian.Uint64(b), true
	default:
		return 0, false
	}
}

// ReadString reads a character array or a dynamic string, up to the first NUL byte.
func (f *Field) ReadString(rec []byte) (string, bool) {
	if f == nil {
		return "", false
	}
	var b []byte
	if f.Dynamic {
		loc, ok := f.ReadNumber(rec)
		if !ok {
			return "", false
		}
		off := loc & 0xFFFF
		n := (loc >> 16) & 0xFFFF
		if off+n > uint64(len(rec)) {
			return "", false
		}
		b = rec[off : off+n]
	} else {
		end := uint64(f.Offset) + uint64(f.Size)
		if end > uint64(len(rec)) {
			return "", false
		}
		b = rec[f.Offset:end]
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b), true
}

// PutNumber stores v at the field's offset, truncated to the field's width.
func (f *Field) PutNumber(rec []byte, v uint64) bool {
	if f == nil {
		return false
	}
	end := uint64(f.Offset) + uint64(f.Size)
	if end > uint64(len(rec)) {
		return false
	}
	b := rec[f.Offset:end]
	switch f.Size {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(b, v)
	default:
		return false
	}
	return true
}

// PutString stores s into a fixed size character array, truncating it so that a terminating NUL always fits.
// Dynamic fields cannot be written in place; see AppendDynamic.
func (f *Field) PutString(rec []byte, s string) bool {
	if f == nil || f.Dynamic || f.Size == 0 {
		return false
	}
	end := uint64(f.Offset) + uint64(f.Size)
	if end > uint64(len(rec)) {
		return false
	}
	b := rec[f.Offset:end]
	n := copy(b[:len(b)-1], s)
	clear(b[n:])
	return true
}

// AppendDynamic appends s, NUL terminated, to the end of rec and points the dynamic field at it.
func (f *Field) AppendDynamic(rec []byte, s string) ([]byte, bool) {
	if f == nil || !f.Dynamic {
		return rec, false
	}
	off := len(rec)
	n := len(s) + 1
	if off > 0xFFFF || n > 0xFFFF {
		return rec, false
	}
	rec = append(rec, s...)
	rec = append(rec, 0)
	if !f.PutNumber(rec, uint64(off)|uint64(n)<<16) {
		return rec[:off], false
	}
	return rec, true
}
