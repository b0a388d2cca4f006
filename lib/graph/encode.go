package graph

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/ValentinKolb/graphpack/lib/codec"
)

// Wire format magic and node tags. These values are part of the stored
// format - changing them breaks compatibility with existing dumps.
var streamMagic = []byte{'G', 'P', 'K', '1'}

const (
	tagNil byte = iota
	tagFalse
	tagTrue
	tagInt     // 8 byte big endian two's complement
	tagUint    // 8 byte big endian
	tagFloat   // 8 byte IEEE 754
	tagString  // u32 length + bytes
	tagBytes   // u32 length + bytes
	tagSlice   // u32 count + element nodes
	tagMap     // u32 count + key/value node pairs
	tagStruct  // type name string + u32 field count + (field name string + node) pairs
	tagPtr     // pointee node, registers a back-reference slot
	tagBackref // u32 slot index of a previously decoded pointer
	tagRef     // u32 length + reference token (placeholder for an intercepted sub-value)
)

// --------------------------------------------------------------------------
// Encoder
// --------------------------------------------------------------------------

// EncoderOption configures an encoder.
type EncoderOption func(*Encoder)

// WithInterception enables the dump-time interception hook. Before any
// sub-value is structurally encoded its runtime type is checked against the
// known-types set; only members are handed to the capability lookup. A
// lookup reporting "not applicable" falls through to structural encoding.
func WithInterception(known *codec.KnownTypes, lookup func(any) (codec.ICodec, bool)) EncoderOption {
	return func(e *Encoder) {
		e.known = known
		e.lookup = lookup
	}
}

// Encoder performs the generic structural encoding of one value graph. An
// encoder carries per-operation state (reference table, pointer memo) and
// must not be reused or shared: create one per dump call.
type Encoder struct {
	types  *TypeRegistry
	known  *codec.KnownTypes
	lookup func(any) (codec.ICodec, bool)

	table    *ReferenceTable
	memo     map[memoKey]uint32
	active   map[memoKey]struct{}
	nextMemo uint32
	buf      []byte
}

// memoKey identifies an already-encoded pointer. The type is part of the
// key because distinct struct fields can share an address (first field vs.
// embedding struct).
type memoKey struct {
	ptr uintptr
	typ reflect.Type
}

// NewEncoder creates an encoder for a single Encode call.
func NewEncoder(types *TypeRegistry, opts ...EncoderOption) *Encoder {
	e := &Encoder{
		types:  types,
		table:  NewReferenceTable(),
		memo:   map[memoKey]uint32{},
		active: map[memoKey]struct{}{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encode serializes the value graph. The returned bytes contain lightweight
// placeholder tokens instead of any intercepted sub-value; the returned
// reference table maps those tokens to the codecs and values that must be
// dumped out-of-band.
func (e *Encoder) Encode(value any) ([]byte, *ReferenceTable, error) {
	e.buf = append(e.buf[:0], streamMagic...)

	if err := e.encodeValue(reflect.ValueOf(value)); err != nil {
		return nil, nil, err
	}
	return e.buf, e.table, nil
}

// --------------------------------------------------------------------------
// Node Encoding
// --------------------------------------------------------------------------

func (e *Encoder) encodeValue(v reflect.Value) error {
	if !v.IsValid() {
		e.writeByte(tagNil)
		return nil
	}

	// interception hook: checked before any structural encoding so that an
	// intercepted sub-value is represented purely by its token. Typed nils
	// fall through, nil carries no payload a specialized codec could dump.
	if e.lookup != nil && e.known.Contains(v.Type()) && v.CanInterface() && !isNilValue(v) {
		if c, ok := e.lookup(v.Interface()); ok {
			token, err := e.table.Add(c, v.Interface())
			if err != nil {
				return err
			}
			e.writeByte(tagRef)
			return e.writeString(token)
		}
	}

	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			e.writeByte(tagTrue)
		} else {
			e.writeByte(tagFalse)
		}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.writeByte(tagInt)
		e.writeUint64(uint64(v.Int()))

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		e.writeByte(tagUint)
		e.writeUint64(v.Uint())

	case reflect.Float32, reflect.Float64:
		e.writeByte(tagFloat)
		e.writeUint64(math.Float64bits(v.Float()))

	case reflect.String:
		e.writeByte(tagString)
		return e.writeString(v.String())

	case reflect.Slice:
		if v.IsNil() {
			e.writeByte(tagNil)
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			e.writeByte(tagBytes)
			return e.writeBytes(v.Bytes())
		}
		// slices are not memoized, a slice reached through itself would
		// recurse forever
		if err := e.enterContainer(v); err != nil {
			return err
		}
		if err := e.encodeList(v); err != nil {
			return err
		}
		e.leaveContainer(v)
		return nil

	case reflect.Array:
		return e.encodeList(v)

	case reflect.Map:
		if v.IsNil() {
			e.writeByte(tagNil)
			return nil
		}
		if err := e.enterContainer(v); err != nil {
			return err
		}
		if err := checkLen(v.Len()); err != nil {
			return err
		}
		e.writeByte(tagMap)
		e.writeUint32(uint32(v.Len()))
		iter := v.MapRange()
		for iter.Next() {
			if err := e.encodeValue(iter.Key()); err != nil {
				return err
			}
			if err := e.encodeValue(iter.Value()); err != nil {
				return err
			}
		}
		e.leaveContainer(v)

	case reflect.Ptr:
		if v.IsNil() {
			e.writeByte(tagNil)
			return nil
		}
		key := memoKey{ptr: v.Pointer(), typ: v.Type()}
		if idx, seen := e.memo[key]; seen {
			e.writeByte(tagBackref)
			e.writeUint32(idx)
			return nil
		}
		e.memo[key] = e.nextMemo
		e.nextMemo++
		e.writeByte(tagPtr)
		return e.encodeValue(v.Elem())

	case reflect.Interface:
		if v.IsNil() {
			e.writeByte(tagNil)
			return nil
		}
		return e.encodeValue(v.Elem())

	case reflect.Struct:
		return e.encodeStruct(v)

	default:
		return fmt.Errorf("graph: unsupported kind %s (type %s)", v.Kind(), v.Type())
	}
	return nil
}

// encodeList encodes slices and arrays element-wise
func (e *Encoder) encodeList(v reflect.Value) error {
	if err := checkLen(v.Len()); err != nil {
		return err
	}
	e.writeByte(tagSlice)
	e.writeUint32(uint32(v.Len()))
	for i := 0; i < v.Len(); i++ {
		if err := e.encodeValue(v.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

// encodeStruct encodes a struct by registered type name and exported field
// names. Field names in the stream make the format tolerant to field
// reordering and additions on the decode side.
func (e *Encoder) encodeStruct(v reflect.Value) error {
	t := v.Type()
	name, ok := e.types.nameFor(t)
	if !ok {
		return fmt.Errorf("graph: struct type %s is not registered, call TypeRegistry.Register first", t)
	}

	var fields []int
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).IsExported() {
			fields = append(fields, i)
		}
	}

	e.writeByte(tagStruct)
	if err := e.writeString(name); err != nil {
		return err
	}
	e.writeUint32(uint32(len(fields)))
	for _, i := range fields {
		if err := e.writeString(t.Field(i).Name); err != nil {
			return err
		}
		if err := e.encodeValue(v.Field(i)); err != nil {
			return err
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Cycle and Nil Guards
// --------------------------------------------------------------------------

// enterContainer marks a map or slice as being encoded. Containers have no
// back-reference representation in the stream, so a container reached
// through itself is not encodable and must fail instead of recursing.
func (e *Encoder) enterContainer(v reflect.Value) error {
	key := memoKey{ptr: v.Pointer(), typ: v.Type()}
	if _, open := e.active[key]; open {
		return fmt.Errorf("graph: %s contains itself, only pointer cycles through registered structs are encodable", v.Type())
	}
	e.active[key] = struct{}{}
	return nil
}

// leaveContainer unmarks a fully encoded container, so the same map or
// slice reachable through multiple non-cyclic paths encodes normally.
func (e *Encoder) leaveContainer(v reflect.Value) {
	delete(e.active, memoKey{ptr: v.Pointer(), typ: v.Type()})
}

// isNilValue reports whether v is a nil of a nilable kind
func isNilValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return v.IsNil()
	default:
		return false
	}
}

// --------------------------------------------------------------------------
// Primitive Writers
// --------------------------------------------------------------------------

func (e *Encoder) writeByte(b byte) {
	e.buf = append(e.buf, b)
}

func (e *Encoder) writeUint32(u uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], u)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *Encoder) writeUint64(u uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], u)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *Encoder) writeString(s string) error {
	if err := checkLen(len(s)); err != nil {
		return err
	}
	e.writeUint32(uint32(len(s)))
	e.buf = append(e.buf, s...)
	return nil
}

func (e *Encoder) writeBytes(b []byte) error {
	if err := checkLen(len(b)); err != nil {
		return err
	}
	e.writeUint32(uint32(len(b)))
	e.buf = append(e.buf, b...)
	return nil
}

// checkLen guards every u32 length prefix in the stream: lengths that do
// not fit would silently truncate and corrupt the encoding.
func checkLen(n int) error {
	if uint64(n) > math.MaxUint32 {
		return fmt.Errorf("graph: value of %d elements exceeds the 4 GiB stream limit", n)
	}
	return nil
}
