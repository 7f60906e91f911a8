package lilyproject

// VariantPropertiesPattern is a wildcard-capable match predicate over a
// RecordId's variant properties: a nil value for a name means "any
// value matches", matching BuildPattern's widening of
// Entry.MoreDimensionedVariants.
type VariantPropertiesPattern struct {
	entries map[string]*string
}

// BuildPattern constructs the pattern for an Entry: concrete is seeded
// with depending's variant properties, then every name in
// moreDimensionedVariants is widened to a wildcard, overwriting any
// concrete value already present under that name.
func BuildPattern(depending RecordId, moreDimensionedVariants []string) VariantPropertiesPattern {
	entries := make(map[string]*string, len(depending.variants)+len(moreDimensionedVariants))
	for _, vp := range depending.variants {
		v := vp.Value
		entries[vp.Name] = &v
	}
	for _, name := range moreDimensionedVariants {
		entries[name] = nil
	}
	return VariantPropertiesPattern{entries: entries}
}

// NewVariantPropertiesPattern builds a pattern directly from a
// name->optional-value map, copying it.
func NewVariantPropertiesPattern(entries map[string]*string) VariantPropertiesPattern {
	out := make(map[string]*string, len(entries))
	for k, v := range entries {
		if v == nil {
			out[k] = nil
			continue
		}
		val := *v
		out[k] = &val
	}
	return VariantPropertiesPattern{entries: out}
}

// Entries returns the pattern's name->optional-value map, copied.
func (p VariantPropertiesPattern) Entries() map[string]*string {
	return NewVariantPropertiesPattern(p.entries).entries
}

// Matches reports whether the concrete variant properties v satisfy the
// pattern: same cardinality, same name set, and for every name either
// the pattern entry is a wildcard (nil) or equals v's value.
func (p VariantPropertiesPattern) Matches(v map[string]string) bool {
	if len(v) != len(p.entries) {
		return false
	}
	for name, want := range p.entries {
		got, ok := v[name]
		if !ok {
			return false
		}
		if want != nil && *want != got {
			return false
		}
	}
	return true
}

// Equal reports whether two patterns have the same name set and the
// same wildcard/value per name.
func (p VariantPropertiesPattern) Equal(o VariantPropertiesPattern) bool {
	if len(p.entries) != len(o.entries) {
		return false
	}
	for name, v := range p.entries {
		ov, ok := o.entries[name]
		if !ok {
			return false
		}
		if (v == nil) != (ov == nil) {
			return false
		}
		if v != nil && *v != *ov {
			return false
		}
	}
	return true
}
