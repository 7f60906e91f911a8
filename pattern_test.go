package lilyproject_test

import (
	"testing"

	lilyproject "github.com/guoquans/lilyproject"
)

func strPtr(s string) *string { return &s }

func TestBuildPatternConcreteMatchesItself(t *testing.T) {
	depending := lilyproject.NewRecordId([]byte("r2"), map[string]string{"lang": "en", "country": "us"})
	pattern := lilyproject.BuildPattern(depending, nil)
	if !pattern.Matches(depending.VariantProperties()) {
		t.Fatal("expected reflexive match")
	}
}

func TestBuildPatternWidensMoreDimensionedVariants(t *testing.T) {
	depending := lilyproject.NewRecordId([]byte("m"), map[string]string{"lang": "en"})
	pattern := lilyproject.BuildPattern(depending, []string{"country"})

	// Matches any country, exact lang.
	if !pattern.Matches(map[string]string{"lang": "en", "country": "us"}) {
		t.Fatal("expected wildcard country to match us")
	}
	if !pattern.Matches(map[string]string{"lang": "en", "country": "fr"}) {
		t.Fatal("expected wildcard country to match fr")
	}
	// Cardinality mismatch: missing country entirely.
	if pattern.Matches(map[string]string{"lang": "en"}) {
		t.Fatal("expected cardinality mismatch to fail match")
	}
	// Wrong lang value.
	if pattern.Matches(map[string]string{"lang": "fr", "country": "us"}) {
		t.Fatal("expected wrong lang value to fail match")
	}
}

func TestBuildPatternMoreDimensionedVariantOverwritesConcrete(t *testing.T) {
	depending := lilyproject.NewRecordId([]byte("m"), map[string]string{"lang": "en"})
	pattern := lilyproject.BuildPattern(depending, []string{"lang"})
	entries := pattern.Entries()
	if v, ok := entries["lang"]; !ok || v != nil {
		t.Fatalf("expected lang to be widened to wildcard, got %v", entries)
	}
	if !pattern.Matches(map[string]string{"lang": "fr"}) {
		t.Fatal("expected widened lang to match any value")
	}
}

func TestPatternMatchesFullWildcard(t *testing.T) {
	entries := map[string]*string{"lang": nil, "country": nil}
	pattern := lilyproject.NewVariantPropertiesPattern(entries)
	if !pattern.Matches(map[string]string{"lang": "en", "country": "us"}) {
		t.Fatal("expected full-wildcard pattern to match any concrete map with the same keys")
	}
}

func TestPatternCardinalityDiscrimination(t *testing.T) {
	entries := map[string]*string{"n": strPtr("v1")}
	pattern := lilyproject.NewVariantPropertiesPattern(entries)
	if pattern.Matches(map[string]string{"n": "v1", "m": "v2"}) {
		t.Fatal("expected extra name in concrete map to fail cardinality check")
	}
}

func TestPatternEqual(t *testing.T) {
	a := lilyproject.NewVariantPropertiesPattern(map[string]*string{"lang": strPtr("en"), "country": nil})
	b := lilyproject.NewVariantPropertiesPattern(map[string]*string{"country": nil, "lang": strPtr("en")})
	if !a.Equal(b) {
		t.Fatal("expected patterns built from the same entries in different map iteration order to be equal")
	}
	c := lilyproject.NewVariantPropertiesPattern(map[string]*string{"lang": strPtr("fr"), "country": nil})
	if a.Equal(c) {
		t.Fatal("expected patterns with different values to be unequal")
	}
}
