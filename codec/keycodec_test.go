package codec_test

import (
	"bytes"
	"sort"
	"testing"

	"github.com/guoquans/lilyproject/codec"
	"github.com/guoquans/lilyproject/errors"
)

func TestEncodeBytesAscendingRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		{0x41},
		{0x00},
		{0x00, 0x00, 0x00},
		{0x01, 0x00, 0xff},
		[]byte("hello world"),
	}
	for _, data := range cases {
		encoded := codec.EncodeBytesAscending(nil, data)
		rest, decoded, err := codec.DecodeBytesAscending(encoded)
		if err != nil {
			t.Fatalf("decode %x: %v", data, err)
		}
		if len(rest) != 0 {
			t.Fatalf("decode %x left %d trailing bytes", data, len(rest))
		}
		if !bytes.Equal(decoded, data) && !(len(decoded) == 0 && len(data) == 0) {
			t.Fatalf("round trip %x got %x", data, decoded)
		}
	}
}

func TestEncodeBytesAscendingOrderPreserving(t *testing.T) {
	inputs := [][]byte{
		{0x00},
		{0x00, 0x01},
		{0x01},
		{0x01, 0x00},
		{0x02},
		[]byte("a"),
		[]byte("ab"),
		[]byte("b"),
	}
	encoded := make([][]byte, len(inputs))
	for i, in := range inputs {
		encoded[i] = codec.EncodeBytesAscending(nil, in)
	}
	sortedInputs := append([][]byte(nil), inputs...)
	sort.Slice(sortedInputs, func(i, j int) bool { return bytes.Compare(sortedInputs[i], sortedInputs[j]) < 0 })
	sortedEncoded := append([][]byte(nil), encoded...)
	sort.Slice(sortedEncoded, func(i, j int) bool { return bytes.Compare(sortedEncoded[i], sortedEncoded[j]) < 0 })
	for i := range inputs {
		if !bytes.Equal(sortedEncoded[i], codec.EncodeBytesAscending(nil, sortedInputs[i])) {
			t.Fatalf("lexicographic order of encoded bytes does not match order of inputs at position %d", i)
		}
	}
}

func TestDecodeBytesAscendingTruncated(t *testing.T) {
	_, _, err := codec.DecodeBytesAscending([]byte{0x41, 0x42})
	if !errors.Is(err, errors.CodeCorruptEncoding) {
		t.Fatalf("expected CorruptEncoding, got %v", err)
	}
}

func TestDecodeBytesAscendingBadEscape(t *testing.T) {
	_, _, err := codec.DecodeBytesAscending([]byte{0x00, 0x05, 0x00, 0x01})
	if !errors.Is(err, errors.CodeCorruptEncoding) {
		t.Fatalf("expected CorruptEncoding, got %v", err)
	}
}

func TestVarBytesWithPrefixRoundTrip(t *testing.T) {
	cases := [][]byte{
		{0x01, 0x02},
		{0x01, 0x02, 0x03, 0x04, 0x05},
		{0x01, 0x00, 0x00},
		append([]byte{0x01, 0x02}, bytes.Repeat([]byte{0x07}, 40)...),
	}
	for _, data := range cases {
		encoded := codec.EncodeVarBytesWithPrefix(nil, data)
		rest, decoded, err := codec.DecodeVarBytesWithPrefix(encoded)
		if err != nil {
			t.Fatalf("decode %x: %v", data, err)
		}
		if len(rest) != 0 {
			t.Fatalf("decode %x left %d trailing bytes", data, len(rest))
		}
		if !bytes.Equal(decoded, data) {
			t.Fatalf("round trip %x got %x", data, decoded)
		}
	}
}

func TestVarBytesWithPrefixKeepsPrefixVerbatimForOrdering(t *testing.T) {
	a := codec.EncodeVarBytesWithPrefix(nil, []byte{0x01, 0x05, 0xff})
	b := codec.EncodeVarBytesWithPrefix(nil, []byte{0x01, 0x06, 0x00})
	if bytes.Compare(a, b) >= 0 {
		t.Fatalf("expected a < b by the fixed prefix byte alone, got a=%x b=%x", a, b)
	}
}

func TestFixedBytesRoundTrip(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04}
	encoded := codec.EncodeFixedBytes(nil, data)
	rest, decoded, err := codec.DecodeFixedBytes(encoded, len(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no trailing bytes, got %d", len(rest))
	}
	if !bytes.Equal(decoded, data) {
		t.Fatalf("got %x, want %x", decoded, data)
	}
}

func TestDecodeFixedBytesTooShort(t *testing.T) {
	_, _, err := codec.DecodeFixedBytes([]byte{0x01, 0x02}, 4)
	if !errors.Is(err, errors.CodeCorruptEncoding) {
		t.Fatalf("expected CorruptEncoding, got %v", err)
	}
}

func TestNullableStringRoundTrip(t *testing.T) {
	present := "hello"
	cases := []*string{nil, &present}
	empty := ""
	cases = append(cases, &empty)
	for _, s := range cases {
		encoded := codec.EncodeNullableString(nil, s)
		rest, decoded, err := codec.DecodeNullableString(encoded)
		if err != nil {
			t.Fatal(err)
		}
		if len(rest) != 0 {
			t.Fatalf("expected no trailing bytes")
		}
		if (s == nil) != (decoded == nil) {
			t.Fatalf("nullness mismatch: want nil=%v, got nil=%v", s == nil, decoded == nil)
		}
		if s != nil && *s != *decoded {
			t.Fatalf("got %q, want %q", *decoded, *s)
		}
	}
}

func TestNullableStringNullSortsBeforePresent(t *testing.T) {
	null := codec.EncodeNullableString(nil, nil)
	empty := ""
	present := codec.EncodeNullableString(nil, &empty)
	if bytes.Compare(null, present) >= 0 {
		t.Fatalf("expected null < present, got null=%x present=%x", null, present)
	}
}
