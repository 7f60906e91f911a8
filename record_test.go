package lilyproject_test

import (
	"testing"

	lilyproject "github.com/guoquans/lilyproject"
)

func TestSchemaIdBytesRoundTrip(t *testing.T) {
	id := lilyproject.NewSchemaId()
	b := id.Bytes()
	decoded, err := lilyproject.SchemaIdFromBytes(b[:])
	if err != nil {
		t.Fatal(err)
	}
	if !id.Equal(decoded) {
		t.Fatalf("round trip mismatch: %v vs %v", id, decoded)
	}
}

func TestSchemaIdStringRoundTrip(t *testing.T) {
	id := lilyproject.NewSchemaId()
	parsed, err := lilyproject.ParseSchemaId(id.String())
	if err != nil {
		t.Fatal(err)
	}
	if !id.Equal(parsed) {
		t.Fatal("expected parsed schema id to equal the original")
	}
}

func TestSchemaIdFromBytesWrongLength(t *testing.T) {
	_, err := lilyproject.SchemaIdFromBytes([]byte{0x01, 0x02})
	if err == nil {
		t.Fatal("expected error for short byte slice")
	}
}

func TestRecordIdToBytesRoundTrip(t *testing.T) {
	gen := lilyproject.DefaultIdGenerator{MasterIdLen: 4}
	rid := lilyproject.NewRecordId([]byte{0xAA, 0xBB, 0xCC, 0xDD}, map[string]string{"lang": "en", "country": "us"})
	b := rid.ToBytes()
	decoded, err := gen.FromBytes(b)
	if err != nil {
		t.Fatal(err)
	}
	if !rid.Equal(decoded) {
		t.Fatalf("round trip mismatch: %v vs %v", rid, decoded)
	}
}

func TestRecordIdMasterStripsVariants(t *testing.T) {
	rid := lilyproject.NewRecordId([]byte{0x01}, map[string]string{"lang": "en"})
	master := rid.Master()
	if len(master.VariantProperties()) != 0 {
		t.Fatal("expected Master() to drop variant properties")
	}
	if master.String() == rid.String() {
		t.Fatal("expected master id's debug string to differ from the variant-qualified one")
	}
}

func TestRecordIdEqualIgnoresInputMapOrder(t *testing.T) {
	a := lilyproject.NewRecordId([]byte{0x01}, map[string]string{"lang": "en", "country": "us"})
	b := lilyproject.NewRecordId([]byte{0x01}, map[string]string{"country": "us", "lang": "en"})
	if !a.Equal(b) {
		t.Fatal("expected RecordIds built from the same map in different iteration order to compare equal")
	}
}

func TestDependingRecordEqual(t *testing.T) {
	vtag := lilyproject.NewSchemaId()
	rid := lilyproject.NewRecordId([]byte{0x01}, nil)
	a := lilyproject.DependingRecord{RecordId: rid, Vtag: vtag}
	b := lilyproject.DependingRecord{RecordId: rid, Vtag: vtag}
	if !a.Equal(b) {
		t.Fatal("expected identical DependingRecords to be equal")
	}
	other := lilyproject.DependingRecord{RecordId: rid, Vtag: lilyproject.NewSchemaId()}
	if a.Equal(other) {
		t.Fatal("expected DependingRecords with different vtags to be unequal")
	}
}
