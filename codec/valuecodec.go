package codec

import (
	"github.com/guoquans/lilyproject/errors"
)

// SchemaIDLen is the fixed byte length of a schema id (16-byte
// UUID-derived identifier), per spec invariant 4.
const SchemaIDLen = 16

// DependingRecordBytes is the wire shape DependingRecord serialization
// operates on: the master record id bytes and the 16-byte vtag. Forward
// rows only ever store the master portion of a depending record's id
// (spec invariant 3); variant properties live solely in backward rows.
type DependingRecordBytes struct {
	Master []byte
	Vtag   [SchemaIDLen]byte
}

// SerializeDependingRecordsForward encodes the forward row's "depending"
// column: a concatenation of terminated (master, vtag) pairs.
func SerializeDependingRecordsForward(records []DependingRecordBytes) []byte {
	var b []byte
	for _, r := range records {
		b = EncodeBytesAscending(b, r.Master)
		b = EncodeFixedBytes(b, r.Vtag[:])
	}
	return b
}

// DeserializeDependingRecordsForward decodes a value written by
// SerializeDependingRecordsForward, consuming until the stream is
// exhausted.
func DeserializeDependingRecordsForward(data []byte) ([]DependingRecordBytes, error) {
	var out []DependingRecordBytes
	for len(data) > 0 {
		rest, master, err := DecodeBytesAscending(data)
		if err != nil {
			return nil, err
		}
		rest, vtagBytes, err := DecodeFixedBytes(rest, SchemaIDLen)
		if err != nil {
			return nil, err
		}
		if master == nil {
			master = []byte{}
		}
		var vtag [SchemaIDLen]byte
		copy(vtag[:], vtagBytes)
		out = append(out, DependingRecordBytes{Master: master, Vtag: vtag})
		data = rest
	}
	return out, nil
}

// SerializeFields encodes a set of schema ids as a flat concatenation of
// their 16-byte representations. Order is not preserved; it is set
// semantics recovered by fixed-width slicing on decode.
func SerializeFields(fields [][SchemaIDLen]byte) []byte {
	out := make([]byte, 0, len(fields)*SchemaIDLen)
	for _, f := range fields {
		out = append(out, f[:]...)
	}
	return out
}

// DeserializeFields decodes a value written by SerializeFields.
func DeserializeFields(data []byte) ([][SchemaIDLen]byte, error) {
	if len(data)%SchemaIDLen != 0 {
		return nil, errors.Newf(errors.CodeCorruptEncoding, "fields column length %d is not a multiple of %d", len(data), SchemaIDLen)
	}
	out := make([][SchemaIDLen]byte, 0, len(data)/SchemaIDLen)
	for i := 0; i < len(data); i += SchemaIDLen {
		var f [SchemaIDLen]byte
		copy(f[:], data[i:i+SchemaIDLen])
		out = append(out, f)
	}
	return out, nil
}

// PatternEntry is one name/value pair of a variant-properties pattern,
// where a nil Value means "any value matches".
type PatternEntry struct {
	Name  string
	Value *string
}

// SerializeVariantPropertiesPattern encodes a pattern as a flat sequence
// of terminated string fields, alternating name, value, name, value...
func SerializeVariantPropertiesPattern(pattern []PatternEntry) []byte {
	var b []byte
	for _, e := range pattern {
		name := e.Name
		b = EncodeNullableString(b, &name)
		b = EncodeNullableString(b, e.Value)
	}
	return b
}

// DeserializeVariantPropertiesPattern decodes a value written by
// SerializeVariantPropertiesPattern.
func DeserializeVariantPropertiesPattern(data []byte) ([]PatternEntry, error) {
	var out []PatternEntry
	for len(data) > 0 {
		rest, name, err := DecodeNullableString(data)
		if err != nil {
			return nil, err
		}
		if name == nil {
			return nil, errors.New(errors.CodeCorruptEncoding, "variant-properties pattern name must not be null")
		}
		rest, value, err := DecodeNullableString(rest)
		if err != nil {
			return nil, err
		}
		out = append(out, PatternEntry{Name: *name, Value: value})
		data = rest
	}
	return out, nil
}
