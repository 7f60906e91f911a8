// Package kvindex provides the backend contract the DerefMap core is
// built on: a thin adapter over a sorted key-value store exposing
// addEntry/removeEntry/performQuery, plus a bbolt-backed implementation.
package kvindex

// Field is one named column of a row's data map. The core uses this for
// the forward row's "depending" column and the backward row's "fields"
// and "pattern" columns.
type Field struct {
	Name string
	Data []byte
}

// Fields is a row's data map, keyed by field name for convenience.
type Fields []Field

// Get returns the named field's data and whether it was present.
func (f Fields) Get(name string) ([]byte, bool) {
	for _, field := range f {
		if field.Name == name {
			return field.Data, true
		}
	}
	return nil, false
}

// Cursor iterates the rows a PerformQuery call matched, in key order.
// Callers must call Close once done, on every exit path.
type Cursor interface {
	// Next advances to the next row and returns false when exhausted or
	// on error (check Err after Next returns false).
	Next() bool
	// Identifier returns the current row's identifier.
	Identifier() []byte
	// Data returns the current row's data map.
	Data() Fields
	// Err returns the first error encountered by Next, if any.
	Err() error
	// Close releases the cursor's backend resources.
	Close() error
}

// Backend is the contract the DerefMap core consumes from a sorted
// key-value store. Implementations must treat AddEntry as an upsert and
// RemoveEntry as tolerant of absence, and must not assume transactions
// spanning multiple calls.
type Backend interface {
	// AddEntry writes (overwriting any existing row with the same key
	// and identifier) a row.
	AddEntry(key []byte, identifier []byte, data Fields) error
	// RemoveEntry deletes the row at (key, identifier), if present.
	RemoveEntry(key []byte, identifier []byte) error
	// PerformQuery returns a cursor over every row whose key has
	// equalityPrefix as a prefix, in key order.
	PerformQuery(equalityPrefix []byte) (Cursor, error)
	// Close releases the backend's resources.
	Close() error
}
