package graph

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
)

// --------------------------------------------------------------------------
// Decoder
// --------------------------------------------------------------------------

// Decoder performs the structural decode of one byte stream produced by an
// Encoder. Placeholder tokens are substituted through the resolver in the
// same pass, so the returned value already has all specialized sub-values
// in place - there is no separate patch-up phase. A decoder carries
// per-operation state and must not be reused.
type Decoder struct {
	types    *TypeRegistry
	resolver Resolver

	data     []byte
	pos      int
	backrefs []reflect.Value
}

// NewDecoder creates a decoder for a single Decode call. The resolver must
// be total over the tokens present in the stream; it is never called when
// the stream contains no placeholders.
func NewDecoder(types *TypeRegistry, resolver Resolver) *Decoder {
	return &Decoder{types: types, resolver: resolver}
}

// Decode reconstructs the value graph from the byte stream.
func (d *Decoder) Decode(data []byte) (any, error) {
	if len(data) < len(streamMagic) || !bytes.Equal(data[:len(streamMagic)], streamMagic) {
		return nil, fmt.Errorf("graph: data does not start with the stream magic")
	}
	d.data = data
	d.pos = len(streamMagic)

	value, err := d.decodeValue()
	if err != nil {
		return nil, err
	}
	if d.pos != len(d.data) {
		return nil, fmt.Errorf("graph: %d trailing bytes after root value", len(d.data)-d.pos)
	}
	return value, nil
}

// --------------------------------------------------------------------------
// Node Decoding
// --------------------------------------------------------------------------

func (d *Decoder) decodeValue() (any, error) {
	tag, err := d.readByte("node tag")
	if err != nil {
		return nil, err
	}

	switch tag {
	case tagNil:
		return nil, nil

	case tagFalse:
		return false, nil

	case tagTrue:
		return true, nil

	case tagInt:
		u, err := d.readUint64("int value")
		if err != nil {
			return nil, err
		}
		return int64(u), nil

	case tagUint:
		u, err := d.readUint64("uint value")
		if err != nil {
			return nil, err
		}
		return u, nil

	case tagFloat:
		u, err := d.readUint64("float value")
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(u), nil

	case tagString:
		return d.readString("string value")

	case tagBytes:
		b, err := d.readLengthPrefixed("byte slice")
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil

	case tagSlice:
		count, err := d.readUint32("slice length")
		if err != nil {
			return nil, err
		}
		list := make([]any, count)
		for i := range list {
			if list[i], err = d.decodeValue(); err != nil {
				return nil, err
			}
		}
		return list, nil

	case tagMap:
		count, err := d.readUint32("map length")
		if err != nil {
			return nil, err
		}
		m := make(map[any]any, count)
		for i := uint32(0); i < count; i++ {
			key, err := d.decodeValue()
			if err != nil {
				return nil, err
			}
			val, err := d.decodeValue()
			if err != nil {
				return nil, err
			}
			m[key] = val
		}
		return m, nil

	case tagStruct:
		sv, err := d.decodeStruct()
		if err != nil {
			return nil, err
		}
		return sv.Interface(), nil

	case tagPtr:
		return d.decodePtr()

	case tagBackref:
		idx, err := d.readUint32("back-reference index")
		if err != nil {
			return nil, err
		}
		if int(idx) >= len(d.backrefs) || !d.backrefs[idx].IsValid() {
			return nil, fmt.Errorf("graph: unresolved back-reference %d", idx)
		}
		return d.backrefs[idx].Interface(), nil

	case tagRef:
		token, err := d.readString("reference token")
		if err != nil {
			return nil, err
		}
		return d.resolver(token)

	default:
		return nil, fmt.Errorf("graph: unknown node tag 0x%02x at offset %d", tag, d.pos-1)
	}
}

// decodeStruct decodes a struct node into an addressable value of its
// registered type. Fields present in the stream but missing from the
// current struct definition are decoded and discarded.
func (d *Decoder) decodeStruct() (reflect.Value, error) {
	name, err := d.readString("struct type name")
	if err != nil {
		return reflect.Value{}, err
	}
	t, ok := d.types.typeFor(name)
	if !ok {
		return reflect.Value{}, fmt.Errorf("graph: struct type %q is not registered", name)
	}

	sv := reflect.New(t).Elem()
	if err := d.decodeStructFields(sv); err != nil {
		return reflect.Value{}, err
	}
	return sv, nil
}

// decodeStructFields fills the exported fields of an already-allocated
// struct value.
func (d *Decoder) decodeStructFields(sv reflect.Value) error {
	count, err := d.readUint32("struct field count")
	if err != nil {
		return err
	}

	for i := uint32(0); i < count; i++ {
		fieldName, err := d.readString("struct field name")
		if err != nil {
			return err
		}
		val, err := d.decodeValue()
		if err != nil {
			return err
		}

		field := sv.FieldByName(fieldName)
		if !field.IsValid() || !field.CanSet() {
			continue
		}
		if err := convertAssign(field, val); err != nil {
			return fmt.Errorf("graph: field %s.%s: %w", sv.Type(), fieldName, err)
		}
	}
	return nil
}

// decodePtr decodes a pointer node. The back-reference slot is reserved
// before the pointee is decoded, and for struct pointees the pointer is
// registered before its fields are filled, so pointer cycles through
// structs reconstruct correctly.
func (d *Decoder) decodePtr() (any, error) {
	slot := len(d.backrefs)
	d.backrefs = append(d.backrefs, reflect.Value{})

	tag, err := d.readByte("pointee tag")
	if err != nil {
		return nil, err
	}

	if tag == tagStruct {
		name, err := d.readString("struct type name")
		if err != nil {
			return nil, err
		}
		t, ok := d.types.typeFor(name)
		if !ok {
			return nil, fmt.Errorf("graph: struct type %q is not registered", name)
		}
		p := reflect.New(t)
		d.backrefs[slot] = p
		if err := d.decodeStructFields(p.Elem()); err != nil {
			return nil, err
		}
		return p.Interface(), nil
	}

	// non-struct pointee: decode the value first, then box it
	d.pos-- // re-read the tag inside decodeValue
	val, err := d.decodeValue()
	if err != nil {
		return nil, err
	}
	if val == nil {
		return nil, fmt.Errorf("graph: pointer to nil pointee is not a valid encoding")
	}
	rv := reflect.ValueOf(val)
	p := reflect.New(rv.Type())
	p.Elem().Set(rv)
	d.backrefs[slot] = p
	return p.Interface(), nil
}

// --------------------------------------------------------------------------
// Generic-to-Target Conversion
// --------------------------------------------------------------------------

// convertAssign assigns a decoded generic value (int64, uint64, float64,
// bool, string, []byte, []any, map[any]any, registered struct or pointer)
// to a typed destination, converting where the stream's generic width
// differs from the destination type.
func convertAssign(dst reflect.Value, src any) error {
	if src == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}

	sv := reflect.ValueOf(src)
	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return nil
	}

	switch dst.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if i, ok := src.(int64); ok {
			dst.SetInt(i)
			return nil
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if u, ok := src.(uint64); ok {
			dst.SetUint(u)
			return nil
		}

	case reflect.Float32, reflect.Float64:
		if f, ok := src.(float64); ok {
			dst.SetFloat(f)
			return nil
		}

	case reflect.Slice:
		if list, ok := src.([]any); ok {
			out := reflect.MakeSlice(dst.Type(), len(list), len(list))
			for i, item := range list {
				if err := convertAssign(out.Index(i), item); err != nil {
					return err
				}
			}
			dst.Set(out)
			return nil
		}

	case reflect.Array:
		if list, ok := src.([]any); ok {
			if len(list) != dst.Len() {
				return fmt.Errorf("array length mismatch: stream has %d elements, type wants %d", len(list), dst.Len())
			}
			for i, item := range list {
				if err := convertAssign(dst.Index(i), item); err != nil {
					return err
				}
			}
			return nil
		}
		if b, ok := src.([]byte); ok && dst.Type().Elem().Kind() == reflect.Uint8 {
			if len(b) != dst.Len() {
				return fmt.Errorf("byte array length mismatch: stream has %d bytes, type wants %d", len(b), dst.Len())
			}
			reflect.Copy(dst, sv)
			return nil
		}

	case reflect.Map:
		if m, ok := src.(map[any]any); ok {
			out := reflect.MakeMapWithSize(dst.Type(), len(m))
			kt, vt := dst.Type().Key(), dst.Type().Elem()
			for key, val := range m {
				ck := reflect.New(kt).Elem()
				if err := convertAssign(ck, key); err != nil {
					return err
				}
				cv := reflect.New(vt).Elem()
				if err := convertAssign(cv, val); err != nil {
					return err
				}
				out.SetMapIndex(ck, cv)
			}
			dst.Set(out)
			return nil
		}

	case reflect.Ptr:
		// a decoded *T whose element type differs from the target's: deref,
		// convert, re-box (pointer identity is not preserved across this)
		if sv.Kind() == reflect.Ptr {
			p := reflect.New(dst.Type().Elem())
			if err := convertAssign(p.Elem(), sv.Elem().Interface()); err != nil {
				return err
			}
			dst.Set(p)
			return nil
		}
		p := reflect.New(dst.Type().Elem())
		if err := convertAssign(p.Elem(), src); err != nil {
			return err
		}
		dst.Set(p)
		return nil

	case reflect.Interface:
		// assignability already checked above; anything satisfying the
		// interface would have matched there
		return fmt.Errorf("value of type %T does not satisfy %s", src, dst.Type())

	case reflect.Struct:
		// a struct decoded by value arrives as its registered concrete type;
		// only an exact match is assignable
		if sv.Kind() == reflect.Struct && sv.Type().ConvertibleTo(dst.Type()) {
			dst.Set(sv.Convert(dst.Type()))
			return nil
		}

	case reflect.String, reflect.Bool:
		if sv.Type().ConvertibleTo(dst.Type()) && sv.Kind() == dst.Kind() {
			dst.Set(sv.Convert(dst.Type()))
			return nil
		}
	}

	// named primitive types (type MyInt int, type MyString string, ...)
	if sv.Type().ConvertibleTo(dst.Type()) && sv.Kind() == dst.Kind() {
		dst.Set(sv.Convert(dst.Type()))
		return nil
	}

	return fmt.Errorf("cannot assign decoded %T to %s", src, dst.Type())
}

// --------------------------------------------------------------------------
// Primitive Readers
// --------------------------------------------------------------------------

func (d *Decoder) readByte(what string) (byte, error) {
	if d.pos+1 > len(d.data) {
		return 0, fmt.Errorf("graph: data too short for %s", what)
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *Decoder) readUint32(what string) (uint32, error) {
	if d.pos+4 > len(d.data) {
		return 0, fmt.Errorf("graph: data too short for %s", what)
	}
	u := binary.BigEndian.Uint32(d.data[d.pos : d.pos+4])
	d.pos += 4
	return u, nil
}

func (d *Decoder) readUint64(what string) (uint64, error) {
	if d.pos+8 > len(d.data) {
		return 0, fmt.Errorf("graph: data too short for %s", what)
	}
	u := binary.BigEndian.Uint64(d.data[d.pos : d.pos+8])
	d.pos += 8
	return u, nil
}

func (d *Decoder) readLengthPrefixed(what string) ([]byte, error) {
	length, err := d.readUint32(what + " length")
	if err != nil {
		return nil, err
	}
	if d.pos+int(length) > len(d.data) {
		return nil, fmt.Errorf("graph: data too short for %s data", what)
	}
	b := d.data[d.pos : d.pos+int(length)]
	d.pos += int(length)
	return b, nil
}

func (d *Decoder) readString(what string) (string, error) {
	b, err := d.readLengthPrefixed(what)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
