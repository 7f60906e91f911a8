package lilyproject

import (
	"io"
	"sync"

	"github.com/guoquans/lilyproject/codec"
	"github.com/guoquans/lilyproject/errors"
	"github.com/guoquans/lilyproject/kvindex"
	"github.com/guoquans/lilyproject/logger"
)

// Config holds the on-disk location and durability settings for a
// DerefMap's backing store.
type Config struct {
	// Path is the bbolt file backing both the forward and backward
	// tables of every index opened against this Config.
	Path string
	// FsyncEnabled, when true, forces every write transaction to sync
	// to disk before returning.
	FsyncEnabled bool
}

const fieldDepending = "depending"
const fieldFields = "fields"
const fieldPattern = "pattern"

func forwardTableName(indexName string) string  { return "deref-forward-" + indexName }
func backwardTableName(indexName string) string { return "deref-backward-" + indexName }

// DerefMap is a durable, bidirectional dependency index: for every
// (dependant, vtag) pair it records which other records and vtags the
// dependant's indexed value depends on, and supports the reverse
// lookup needed to decide which dependants to re-index when one of
// their dependencies changes.
//
// Concurrent UpdateDependencies calls for the same (dependant, vtag)
// pair are not safe: they race on the read-diff-write of the forward
// row. Callers must serialize updates per (dependant, vtag) themselves,
// typically via a per-record lock held by the indexer.
type DerefMap struct {
	forward  kvindex.Backend
	backward kvindex.Backend
	idGen    IdGenerator
	log      logger.Logger
}

// Create opens or creates the forward and backward tables for
// indexName inside config.Path, deriving their names as
// deref-forward-{indexName} and deref-backward-{indexName}.
func Create(indexName string, config Config, idGen IdGenerator) (*DerefMap, error) {
	forward, backward, err := kvindex.OpenBoltPair(config.Path, forwardTableName(indexName), backwardTableName(indexName), config.FsyncEnabled)
	if err != nil {
		return nil, errors.Wrapf(err, "create derefmap %s", indexName)
	}
	return &DerefMap{forward: forward, backward: backward, idGen: idGen, log: logger.NopLogger}, nil
}

// SetLogger installs a logger used to report non-fatal anomalies
// (currently, skipped CorruptEncoding rows during query iteration).
func (dm *DerefMap) SetLogger(l logger.Logger) {
	dm.log = l
}

// OpenReadOnly opens the forward and backward tables for indexName
// without creating them, failing with CodeIndexNotFound if either is
// absent. Intended for operational tooling (see cmd/derefmap-inspect)
// that must never bring a new index into existence by inspecting it.
func OpenReadOnly(indexName string, config Config, idGen IdGenerator) (*DerefMap, error) {
	forward, backward, err := kvindex.OpenExistingBoltPair(config.Path, forwardTableName(indexName), backwardTableName(indexName))
	if err != nil {
		return nil, errors.Wrapf(err, "open derefmap %s read-only", indexName)
	}
	return &DerefMap{forward: forward, backward: backward, idGen: idGen, log: logger.NopLogger}, nil
}

// Delete drops both tables for indexName, failing with
// CodeIndexNotFound if either is absent.
func Delete(indexName string, config Config) error {
	return kvindex.DropBoltPair(config.Path, forwardTableName(indexName), backwardTableName(indexName))
}

// Close releases the underlying backend's resources. Closing either of
// the two shared-file backends closes both; Close only needs to be
// called once.
func (dm *DerefMap) Close() error {
	return dm.forward.Close()
}

// Snapshot writes a consistent, point-in-time copy of this DerefMap's
// entire backing file (both the forward and backward tables) to w.
// Snapshot requires a bbolt-backed DerefMap, since streaming a whole
// file is a bbolt-specific operation not part of the kvindex.Backend
// contract.
func (dm *DerefMap) Snapshot(w io.Writer) (int64, error) {
	bb, ok := dm.forward.(*kvindex.BoltBackend)
	if !ok {
		return 0, errors.New(errors.CodeInvariantViolation, "Snapshot requires a bbolt-backed DerefMap")
	}
	return bb.Snapshot(w)
}

// Restore overwrites this DerefMap's backing file with the content
// read from r (produced by a prior Snapshot of the same indexName) and
// reopens both tables against the restored file. Like Snapshot, this
// requires a bbolt-backed DerefMap.
func (dm *DerefMap) Restore(r io.Reader, indexName string, config Config) error {
	bb, ok := dm.forward.(*kvindex.BoltBackend)
	if !ok {
		return errors.New(errors.CodeInvariantViolation, "Restore requires a bbolt-backed DerefMap")
	}
	forward, backward, _, err := kvindex.RestoreBoltPair(bb, r, forwardTableName(indexName), backwardTableName(indexName), config.FsyncEnabled)
	if err != nil {
		return errors.Wrap(err, "restore derefmap")
	}
	dm.forward = forward
	dm.backward = backward
	return nil
}

func forwardKey(dependant RecordId, vtag SchemaId) []byte {
	vtagBytes := vtag.Bytes()
	b := codec.EncodeVarBytesWithPrefix(nil, dependant.ToBytes())
	return codec.EncodeFixedBytes(b, vtagBytes[:])
}

func backwardKey(dependingMaster RecordId, vtag SchemaId) []byte {
	vtagBytes := vtag.Bytes()
	b := codec.EncodeVarBytesWithPrefix(nil, dependingMaster.Master().ToBytes())
	return codec.EncodeFixedBytes(b, vtagBytes[:])
}

// depKey is the (master, vtag) comparison key used by the update
// protocol's diff step: comparison is by master id and vtag only, per
// spec, never by the full variant-qualified record id.
type depKey struct {
	master string
	vtag   SchemaId
}

func newDepKey(master []byte, vtag SchemaId) depKey {
	return depKey{master: string(master), vtag: vtag}
}

// Dependency pairs an Entry (a depending record plus extra variant
// dimensions) with the set of fields through which the dependency
// holds. UpdateDependencies takes a slice of these rather than a Go map
// keyed by Entry: Entry embeds DependingRecord, which embeds RecordId,
// which holds slice fields (master []byte, variants []variantProperty),
// so Entry is not a valid Go map key. Guava's Multimap<Entry, SchemaId>
// never required this — Java's object equals()/hashCode() don't carry
// Go's map-key comparability restriction.
type Dependency struct {
	Entry  Entry
	Fields []SchemaId
}

// UpdateDependencies replaces the full set of records the (dependant,
// dependantVtag) pair depends on with the one described by
// newDependencies.
//
// The three mutation steps run in the fixed order required for
// crash-safety: backward rows for dependencies no longer present are
// removed first, the forward row is then overwritten with the new
// state, and backward rows for newly added dependencies are written
// last. A crash at any point between these steps leaves backward ⊆
// forward as a safe over-approximation, never an under-approximation.
func (dm *DerefMap) UpdateDependencies(dependant RecordId, dependantVtag SchemaId, newDependencies []Dependency) error {
	fk := forwardKey(dependant, dependantVtag)
	identifier := dependant.ToBytes()

	existing, err := dm.readForward(fk)
	if err != nil {
		return err
	}

	existingSet := make(map[depKey]DependingRecordBytesView, len(existing))
	for _, d := range existing {
		existingSet[newDepKey(d.Master, d.Vtag)] = d
	}

	// representative/fieldsByKey pick one Dependency per depending-record
	// key among newDependencies: later entries in the slice overwrite
	// earlier ones for the same key, matching the inherited last-write-wins
	// dedup behavior of the original's Map<DependingRecord, Entry>.put loop.
	representative := make(map[depKey]Entry, len(newDependencies))
	fieldsByKey := make(map[depKey][]SchemaId, len(newDependencies))
	newKeys := make(map[depKey]bool, len(newDependencies))
	for _, dep := range newDependencies {
		masterBytes := dep.Entry.DependingRecord.RecordId.Master().ToBytes()
		k := newDepKey(masterBytes, dep.Entry.DependingRecord.Vtag)
		newKeys[k] = true
		representative[k] = dep.Entry
		fieldsByKey[k] = dep.Fields
	}

	var removed []depKey
	for k := range existingSet {
		if !newKeys[k] {
			removed = append(removed, k)
		}
	}
	var added []depKey
	for k := range newKeys {
		if _, ok := existingSet[k]; !ok {
			added = append(added, k)
		}
	}

	// Step 1: remove backward entries no longer valid.
	for _, k := range removed {
		d := existingSet[k]
		master, err := dm.idGen.FromBytes(d.Master)
		if err != nil {
			return errors.Wrap(err, "decode removed depending record master")
		}
		if err := dm.backward.RemoveEntry(backwardKey(master, k.vtag), identifier); err != nil {
			return errors.Wrap(err, "remove backward entry")
		}
	}

	// Step 2: overwrite the forward row with the new state, one entry
	// per distinct depending-record key.
	newList := make([]codec.DependingRecordBytes, 0, len(newKeys))
	for k := range newKeys {
		entry := representative[k]
		masterBytes := entry.DependingRecord.RecordId.Master().ToBytes()
		vtagBytes := entry.DependingRecord.Vtag.Bytes()
		newList = append(newList, codec.DependingRecordBytes{Master: masterBytes, Vtag: vtagBytes})
	}
	fwdValue := codec.SerializeDependingRecordsForward(newList)
	if err := dm.forward.AddEntry(fk, nil, kvindex.Fields{{Name: fieldDepending, Data: fwdValue}}); err != nil {
		return errors.Wrap(err, "write forward entry")
	}

	// Step 3: add backward entries for newly added dependencies.
	for _, k := range added {
		entry := representative[k]
		fields := fieldsByKey[k]
		fieldBytes := make([][codec.SchemaIDLen]byte, 0, len(fields))
		for _, f := range fields {
			fieldBytes = append(fieldBytes, f.Bytes())
		}
		pattern := BuildPattern(entry.DependingRecord.RecordId, entry.MoreDimensionedVariants)
		patternEntries := make([]codec.PatternEntry, 0, len(pattern.entries))
		for name, value := range pattern.entries {
			patternEntries = append(patternEntries, codec.PatternEntry{Name: name, Value: value})
		}
		bk := backwardKey(entry.DependingRecord.RecordId.Master(), entry.DependingRecord.Vtag)
		bFields := kvindex.Fields{
			{Name: fieldFields, Data: codec.SerializeFields(fieldBytes)},
			{Name: fieldPattern, Data: codec.SerializeVariantPropertiesPattern(patternEntries)},
		}
		if err := dm.backward.AddEntry(bk, identifier, bFields); err != nil {
			return errors.Wrap(err, "write backward entry")
		}
	}

	return nil
}

// DependingRecordBytesView mirrors codec.DependingRecordBytes with a
// SchemaId already decoded, used internally by the diff step.
type DependingRecordBytesView struct {
	Master []byte
	Vtag   SchemaId
}

func (dm *DerefMap) readForward(fk []byte) ([]DependingRecordBytesView, error) {
	cur, err := dm.forward.PerformQuery(fk)
	if err != nil {
		return nil, errors.Wrap(err, "query forward row")
	}
	defer cur.Close()

	var out []DependingRecordBytesView
	rows := 0
	for cur.Next() {
		rows++
		if rows > 1 {
			return nil, errors.New(errors.CodeInvariantViolation, "forward index returned more than one row for a single key")
		}
		data, ok := cur.Data().Get(fieldDepending)
		if !ok {
			continue
		}
		decoded, err := codec.DeserializeDependingRecordsForward(data)
		if err != nil {
			return nil, err
		}
		for _, d := range decoded {
			vtag, err := SchemaIdFromBytes(d.Vtag[:])
			if err != nil {
				return nil, err
			}
			out = append(out, DependingRecordBytesView{Master: d.Master, Vtag: vtag})
		}
	}
	if err := cur.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate forward row")
	}
	return out, nil
}

// FindDependencies returns the set of depending records (decoded down
// to their master id and vtag, per spec invariant 3) that
// (dependant, dependantVtag)'s forward row currently lists. A missing
// forward row and a forward row with an empty list are equivalent: both
// return an empty, nil-error result (see DESIGN.md Open Question 1).
func (dm *DerefMap) FindDependencies(dependant RecordId, dependantVtag SchemaId) ([]DependingRecord, error) {
	fk := forwardKey(dependant, dependantVtag)
	existing, err := dm.readForward(fk)
	if err != nil {
		return nil, err
	}
	out := make([]DependingRecord, 0, len(existing))
	for _, d := range existing {
		master, err := dm.idGen.FromBytes(d.Master)
		if err != nil {
			return nil, errors.Wrap(err, "decode depending record master")
		}
		out = append(out, DependingRecord{RecordId: master, Vtag: d.Vtag})
	}
	return out, nil
}

// FindDependantsOf returns a forward-only, explicitly-closeable cursor
// streaming the RecordId of every dependant that depends on
// depending.RecordId (under depending.Vtag) through field.
func (dm *DerefMap) FindDependantsOf(depending DependingRecord, field SchemaId) (*DependantCursor, error) {
	bk := backwardKey(depending.RecordId, depending.Vtag)
	cur, err := dm.backward.PerformQuery(bk)
	if err != nil {
		return nil, errors.Wrap(err, "query backward index")
	}
	return &DependantCursor{
		backend:       cur,
		idGen:         dm.idGen,
		log:           dm.log,
		wantField:     field,
		wantVariants:  depending.RecordId.VariantProperties(),
	}, nil
}

// DependantCursor streams dependant RecordIds matching a
// FindDependantsOf query. hasNext/next share one buffered slot under a
// mutex, so the two methods are well-defined in either call order; the
// cursor may be advanced from only one goroutine at a time and must be
// closed on every exit path.
type DependantCursor struct {
	backend      kvindex.Cursor
	idGen        IdGenerator
	log          logger.Logger
	wantField    SchemaId
	wantVariants map[string]string

	mu      sync.Mutex
	slot    *RecordId
	slotSet bool
	done    bool
	err     error
}

// fill advances the backend cursor until a row matches the field and
// pattern filters, or the backend is exhausted, populating slot.
// Caller must hold mu.
func (c *DependantCursor) fill() {
	if c.slotSet || c.done {
		return
	}
	for c.backend.Next() {
		data := c.backend.Data()
		fieldsBytes, ok := data.Get(fieldFields)
		if !ok {
			continue
		}
		fields, err := codec.DeserializeFields(fieldsBytes)
		if err != nil {
			c.log.Warnf("skipping corrupt fields row: %v", err)
			continue
		}
		hasField := false
		wantFieldBytes := c.wantField.Bytes()
		for _, f := range fields {
			if string(f[:]) == string(wantFieldBytes[:]) {
				hasField = true
				break
			}
		}
		if !hasField {
			continue
		}
		patternBytes, ok := data.Get(fieldPattern)
		if !ok {
			continue
		}
		patternEntries, err := codec.DeserializeVariantPropertiesPattern(patternBytes)
		if err != nil {
			c.log.Warnf("skipping corrupt pattern row: %v", err)
			continue
		}
		entries := make(map[string]*string, len(patternEntries))
		for _, e := range patternEntries {
			entries[e.Name] = e.Value
		}
		pattern := NewVariantPropertiesPattern(entries)
		if !pattern.Matches(c.wantVariants) {
			continue
		}
		rid, err := c.idGen.FromBytes(c.backend.Identifier())
		if err != nil {
			c.log.Warnf("skipping row with corrupt identifier: %v", err)
			continue
		}
		c.slot = &rid
		c.slotSet = true
		return
	}
	if err := c.backend.Err(); err != nil {
		c.err = err
	}
	c.done = true
}

// HasNext reports whether another dependant RecordId is available,
// advancing the backend cursor as needed.
func (c *DependantCursor) HasNext() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fill()
	if c.err != nil {
		return false, c.err
	}
	return c.slotSet, nil
}

// Next returns the next dependant RecordId, advancing the backend
// cursor if HasNext was not already called.
func (c *DependantCursor) Next() (RecordId, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fill()
	if c.err != nil {
		return RecordId{}, c.err
	}
	if !c.slotSet {
		return RecordId{}, errors.New(errors.CodeInvariantViolation, "Next called with no more rows")
	}
	rid := *c.slot
	c.slot = nil
	c.slotSet = false
	return rid, nil
}

// Close releases the cursor's backend resources.
func (c *DependantCursor) Close() error {
	return c.backend.Close()
}
