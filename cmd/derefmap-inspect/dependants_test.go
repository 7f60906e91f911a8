package main

import (
	"bytes"
	"encoding/hex"
	"path/filepath"
	"testing"

	lilyproject "github.com/guoquans/lilyproject"
)

func TestDependantsCommandPrintsMatchingDependant(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "deref.db")
	dm, err := lilyproject.Create("content", lilyproject.Config{Path: dbPath}, lilyproject.DefaultIdGenerator{MasterIdLen: 4})
	if err != nil {
		t.Fatal(err)
	}
	v1 := lilyproject.NewSchemaId()
	f1 := lilyproject.NewSchemaId()
	r1 := lilyproject.NewRecordId([]byte{0x01, 0x01, 0x01, 0x01}, nil)
	r2 := lilyproject.NewRecordId([]byte{0x02, 0x02, 0x02, 0x02}, nil)
	if err := dm.UpdateDependencies(r1, v1, []lilyproject.Dependency{
		{Entry: lilyproject.Entry{DependingRecord: lilyproject.DependingRecord{RecordId: r2, Vtag: v1}}, Fields: []lilyproject.SchemaId{f1}},
	}); err != nil {
		t.Fatal(err)
	}
	if err := dm.Close(); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	dc := &dependantsCommand{
		Db:     dbPath,
		Index:  "content",
		Master: hex.EncodeToString([]byte{0x02, 0x02, 0x02, 0x02}),
		Vtag:   v1.String(),
		Field:  f1.String(),
		Stdout: &out,
	}
	if err := dc.Run(); err != nil {
		t.Fatal(err)
	}
	if got, want := out.String(), r1.String()+"\n"; got != want {
		t.Fatalf("expected output listing the dependant %q, got %q", want, got)
	}
}

func TestParseVariantsRejectsMissingEquals(t *testing.T) {
	if _, err := parseVariants([]string{"lang"}); err == nil {
		t.Fatal("expected error for a --variant flag missing '='")
	}
}

func TestParseVariantsOK(t *testing.T) {
	got, err := parseVariants([]string{"lang=en", "country=us"})
	if err != nil {
		t.Fatal(err)
	}
	if got["lang"] != "en" || got["country"] != "us" {
		t.Fatalf("unexpected parse result: %+v", got)
	}
}
