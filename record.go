// Package lilyproject implements the Dereference Dependency Map: a
// durable, bidirectional index recording which records a dependant
// record's indexed value depends on, and supporting the reverse lookup
// needed to know which dependants must be re-indexed when a depended-on
// record changes.
package lilyproject

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/guoquans/lilyproject/errors"
)

// SchemaId is an opaque 16-byte identifier used for field types, record
// types, and version tags. Its byte layout is a UUID's 16 bytes
// (most-significant-bits then least-significant-bits), so it can be
// built directly from github.com/google/uuid instead of a hand-rolled
// parser.
type SchemaId struct {
	id uuid.UUID
}

// NewSchemaId generates a new random SchemaId.
func NewSchemaId() SchemaId {
	return SchemaId{id: uuid.New()}
}

// SchemaIdFromBytes builds a SchemaId from its 16-byte wire form.
func SchemaIdFromBytes(b []byte) (SchemaId, error) {
	if len(b) != 16 {
		return SchemaId{}, errors.Newf(errors.CodeCorruptEncoding, "schema id must be 16 bytes, got %d", len(b))
	}
	id, err := uuid.FromBytes(b)
	if err != nil {
		return SchemaId{}, errors.Wrap(err, "decode schema id")
	}
	return SchemaId{id: id}, nil
}

// ParseSchemaId parses the canonical 8-4-4-4-12 hex text form.
func ParseSchemaId(s string) (SchemaId, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return SchemaId{}, errors.Wrap(err, "parse schema id")
	}
	return SchemaId{id: id}, nil
}

// Bytes returns the 16-byte wire form.
func (s SchemaId) Bytes() [16]byte {
	var b [16]byte
	copy(b[:], s.id[:])
	return b
}

// String returns the canonical 8-4-4-4-12 hex form.
func (s SchemaId) String() string {
	return s.id.String()
}

// Equal reports whether two schema ids are byte-equal.
func (s SchemaId) Equal(o SchemaId) bool {
	return s.id == o.id
}

// variantProperty is one name/value pair of a RecordId's variant
// dimensions, kept in ascending name order so two RecordIds built from
// the same map compare and serialize identically.
type variantProperty struct {
	Name  string
	Value string
}

// RecordId identifies a record: a master id plus an ordered set of
// variant properties (e.g. language, country) that qualify which
// variant of the master record this is.
type RecordId struct {
	master   []byte
	variants []variantProperty
}

// NewRecordId builds a RecordId from a master id and a variant
// properties map. The map is copied and sorted by name.
func NewRecordId(master []byte, variantProperties map[string]string) RecordId {
	variants := make([]variantProperty, 0, len(variantProperties))
	for k, v := range variantProperties {
		variants = append(variants, variantProperty{Name: k, Value: v})
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i].Name < variants[j].Name })
	m := append([]byte(nil), master...)
	return RecordId{master: m, variants: variants}
}

// Master returns a RecordId for the same master id with no variant
// properties.
func (r RecordId) Master() RecordId {
	return RecordId{master: r.master}
}

// MasterBytes returns the master id's raw bytes.
func (r RecordId) MasterBytes() []byte {
	return append([]byte(nil), r.master...)
}

// VariantProperties returns the variant properties as a fresh map.
func (r RecordId) VariantProperties() map[string]string {
	m := make(map[string]string, len(r.variants))
	for _, vp := range r.variants {
		m[vp.Name] = vp.Value
	}
	return m
}

// Equal reports whether two RecordIds have the same master id and the
// same variant properties.
func (r RecordId) Equal(o RecordId) bool {
	if string(r.master) != string(o.master) {
		return false
	}
	if len(r.variants) != len(o.variants) {
		return false
	}
	for i := range r.variants {
		if r.variants[i] != o.variants[i] {
			return false
		}
	}
	return true
}

// String renders a debug form: the master id in hex, followed by
// [name=value,...] when the RecordId has variant properties.
func (r RecordId) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%x", r.master)
	if len(r.variants) > 0 {
		b.WriteByte('[')
		for i, vp := range r.variants {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%s=%s", vp.Name, vp.Value)
		}
		b.WriteByte(']')
	}
	return b.String()
}

// DependingRecord is a (record, vtag) pair: a record this dependant's
// indexed value depends on, under a specific version tag.
type DependingRecord struct {
	RecordId RecordId
	Vtag     SchemaId
}

// Equal reports equality over both fields.
func (d DependingRecord) Equal(o DependingRecord) bool {
	return d.RecordId.Equal(o.RecordId) && d.Vtag.Equal(o.Vtag)
}

// Entry pairs a DependingRecord with the names of additional variant
// dimensions the dependant's dependency spans beyond those already
// concrete in DependingRecord.RecordId, used to build the wildcard
// pattern written to the backward index (see BuildPattern).
type Entry struct {
	DependingRecord         DependingRecord
	MoreDimensionedVariants []string
}

// IdGenerator is the contract consumed from the record store: it
// recovers a RecordId and a SchemaId from their byte forms.
type IdGenerator interface {
	FromBytes(b []byte) (RecordId, error)
	GetSchemaId(b []byte) (SchemaId, error)
}

// DefaultIdGenerator is a self-contained IdGenerator that treats a
// RecordId's byte form as a type-discriminator byte, followed by the
// master id, followed by a terminated sequence of name/value variant
// property pairs. It lets this module round-trip RecordIds without a
// real record store.
type DefaultIdGenerator struct {
	// MasterIdLen is the fixed length of the opaque master id portion,
	// excluding the leading type-discriminator byte. Callers that need
	// variable-length master ids should supply their own IdGenerator.
	MasterIdLen int
}

const recordIdTypeDiscriminator byte = 0x01

// ToBytes encodes the RecordId as a type-discriminator byte, the
// master id verbatim, and a terminated sequence of variant property
// name/value pairs. This is the RecordId.toBytes() the DerefMap core
// consumes directly; DefaultIdGenerator.FromBytes is its matching
// decoder.
func (r RecordId) ToBytes() []byte {
	b := make([]byte, 0, 1+len(r.master)+8*len(r.variants))
	b = append(b, recordIdTypeDiscriminator)
	b = append(b, r.master...)
	for _, vp := range r.variants {
		b = append(b, []byte(vp.Name)...)
		b = append(b, 0x00)
		b = append(b, []byte(vp.Value)...)
		b = append(b, 0x00)
	}
	return b
}

// FromBytes decodes a RecordId written by RecordId.ToBytes.
func (g DefaultIdGenerator) FromBytes(b []byte) (RecordId, error) {
	if len(b) < 1+g.MasterIdLen {
		return RecordId{}, errors.Newf(errors.CodeCorruptEncoding, "record id too short: %d bytes", len(b))
	}
	if b[0] != recordIdTypeDiscriminator {
		return RecordId{}, errors.Newf(errors.CodeCorruptEncoding, "unexpected record id type discriminator 0x%02x", b[0])
	}
	rest := b[1+g.MasterIdLen:]
	master := append([]byte(nil), b[1:1+g.MasterIdLen]...)
	variants := map[string]string{}
	for len(rest) > 0 {
		nameEnd := indexByte(rest, 0x00)
		if nameEnd < 0 {
			return RecordId{}, errors.New(errors.CodeCorruptEncoding, "truncated variant property name")
		}
		name := string(rest[:nameEnd])
		rest = rest[nameEnd+1:]
		valueEnd := indexByte(rest, 0x00)
		if valueEnd < 0 {
			return RecordId{}, errors.New(errors.CodeCorruptEncoding, "truncated variant property value")
		}
		variants[name] = string(rest[:valueEnd])
		rest = rest[valueEnd+1:]
	}
	return NewRecordId(master, variants), nil
}

// GetSchemaId decodes a 16-byte schema id.
func (g DefaultIdGenerator) GetSchemaId(b []byte) (SchemaId, error) {
	return SchemaIdFromBytes(b)
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}
