package kvindex

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/guoquans/lilyproject/errors"
)

const snapshotExt = ".snapshotting"

// BoltBackend is a Backend implementation on top of an embedded bbolt
// file, grounded on the bucket-per-table, fsync-gated translate store
// pattern: rows are stored under key = table-key ++ identifier so that
// a prefix scan on table-key alone recovers every row sharing it
// (the backward index's many-rows-per-key shape), while the forward
// index's single-row-per-key shape falls out of the same storage for
// free.
type BoltBackend struct {
	db     *bolt.DB
	bucket []byte
	path   string
}

// OpenBoltBackend opens (creating if absent) a bucket named table
// inside the bbolt file at path, creating the file and its parent
// directory if necessary.
func OpenBoltBackend(path, table string, fsyncEnabled bool) (*BoltBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, errors.Wrap(err, "mkdir for bolt backend")
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second, NoSync: !fsyncEnabled})
	if err != nil {
		return nil, errors.Wrapf(err, "open bolt file %s", path)
	}
	bucket := []byte(table)
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "create bucket %s", table)
	}
	return &BoltBackend{db: db, bucket: bucket, path: path}, nil
}

// OpenExistingBoltBackend opens table, failing with CodeIndexNotFound
// if it does not already exist. The file is opened read-only, so no
// state is created. (DerefMap's own read-only open uses
// OpenExistingBoltPair instead.)
func OpenExistingBoltBackend(path, table string) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, errors.Wrapf(err, "open bolt file %s", path)
	}
	bucket := []byte(table)
	found := false
	if err := db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucket) != nil
		return nil
	}); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "inspect bucket")
	}
	if !found {
		db.Close()
		return nil, errors.Newf(errors.CodeIndexNotFound, "table %s not found in %s", table, path)
	}
	return &BoltBackend{db: db, bucket: bucket, path: path}, nil
}

// DropBoltTable deletes table from the bbolt file at path, failing
// with CodeIndexNotFound if it does not exist.
func DropBoltTable(path, table string) error {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return errors.Wrapf(err, "open bolt file %s", path)
	}
	defer db.Close()
	bucket := []byte(table)
	return db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucket) == nil {
			return errors.Newf(errors.CodeIndexNotFound, "table %s not found", table)
		}
		return tx.DeleteBucket(bucket)
	})
}

// OpenBoltPair opens a single bbolt file at path and returns two
// Backend views onto forwardTable and backwardTable, creating both
// buckets if absent. The two views share one underlying *bolt.DB
// (bbolt takes an exclusive file lock on open, so the forward and
// backward tables of one DerefMap must live in one file rather than
// two); call Close on at most one of the returned backends, since
// closing either closes the shared file for both.
func OpenBoltPair(path, forwardTable, backwardTable string, fsyncEnabled bool) (forward, backward *BoltBackend, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, nil, errors.Wrap(err, "mkdir for bolt backend")
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second, NoSync: !fsyncEnabled})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open bolt file %s", path)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(forwardTable)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(backwardTable))
		return err
	}); err != nil {
		db.Close()
		return nil, nil, errors.Wrap(err, "create forward/backward buckets")
	}
	forward = &BoltBackend{db: db, bucket: []byte(forwardTable), path: path}
	backward = &BoltBackend{db: db, bucket: []byte(backwardTable), path: path}
	return forward, backward, nil
}

// OpenExistingBoltPair is OpenBoltPair's read-only, non-creating
// counterpart: it fails with CodeIndexNotFound if either bucket is
// missing. Used by the inspector CLI, which must never create state.
func OpenExistingBoltPair(path, forwardTable, backwardTable string) (forward, backward *BoltBackend, err error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open bolt file %s", path)
	}
	missing := ""
	if err := db.View(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(forwardTable)) == nil {
			missing = forwardTable
		} else if tx.Bucket([]byte(backwardTable)) == nil {
			missing = backwardTable
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, nil, errors.Wrap(err, "inspect buckets")
	}
	if missing != "" {
		db.Close()
		return nil, nil, errors.Newf(errors.CodeIndexNotFound, "table %s not found in %s", missing, path)
	}
	forward = &BoltBackend{db: db, bucket: []byte(forwardTable), path: path}
	backward = &BoltBackend{db: db, bucket: []byte(backwardTable), path: path}
	return forward, backward, nil
}

// DropBoltPair deletes forwardTable and backwardTable from the bbolt
// file at path, failing with CodeIndexNotFound if either is absent,
// per the create/delete symmetry required of DerefMap index names.
func DropBoltPair(path, forwardTable, backwardTable string) error {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return errors.Wrapf(err, "open bolt file %s", path)
	}
	defer db.Close()
	return db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(forwardTable)) == nil {
			return errors.Newf(errors.CodeIndexNotFound, "table %s not found", forwardTable)
		}
		if tx.Bucket([]byte(backwardTable)) == nil {
			return errors.Newf(errors.CodeIndexNotFound, "table %s not found", backwardTable)
		}
		if err := tx.DeleteBucket([]byte(forwardTable)); err != nil {
			return err
		}
		return tx.DeleteBucket([]byte(backwardTable))
	})
}

func storageKey(key, identifier []byte) []byte {
	// identifier length is recorded so storageKey is unambiguous even
	// though key itself is already self-delimiting (fixed-length or
	// terminated) on every caller in this module.
	k := make([]byte, 0, len(key)+4+len(identifier))
	k = append(k, key...)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(identifier)))
	k = append(k, lenBuf[:]...)
	k = append(k, identifier...)
	return k
}

func splitStorageKey(stored []byte, keyLen int) (identifier []byte) {
	idLenOffset := keyLen
	n := binary.BigEndian.Uint32(stored[idLenOffset : idLenOffset+4])
	return stored[idLenOffset+4 : idLenOffset+4+int(n)]
}

func encodeFields(fields Fields) []byte {
	var b []byte
	var lenBuf [4]byte
	for _, f := range fields {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f.Name)))
		b = append(b, lenBuf[:]...)
		b = append(b, f.Name...)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f.Data)))
		b = append(b, lenBuf[:]...)
		b = append(b, f.Data...)
	}
	return b
}

func decodeFields(b []byte) (Fields, error) {
	var out Fields
	for len(b) > 0 {
		if len(b) < 4 {
			return nil, errors.New(errors.CodeCorruptEncoding, "truncated field name length")
		}
		nameLen := binary.BigEndian.Uint32(b[:4])
		b = b[4:]
		if len(b) < int(nameLen) {
			return nil, errors.New(errors.CodeCorruptEncoding, "truncated field name")
		}
		name := string(b[:nameLen])
		b = b[nameLen:]
		if len(b) < 4 {
			return nil, errors.New(errors.CodeCorruptEncoding, "truncated field data length")
		}
		dataLen := binary.BigEndian.Uint32(b[:4])
		b = b[4:]
		if len(b) < int(dataLen) {
			return nil, errors.New(errors.CodeCorruptEncoding, "truncated field data")
		}
		data := append([]byte(nil), b[:dataLen]...)
		b = b[dataLen:]
		out = append(out, Field{Name: name, Data: data})
	}
	return out, nil
}

// AddEntry implements Backend.
func (b *BoltBackend) AddEntry(key []byte, identifier []byte, data Fields) error {
	sk := storageKey(key, identifier)
	value := encodeFields(data)
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Put(sk, value)
	})
	if err != nil {
		return errors.Wrap(err, "add entry")
	}
	return nil
}

// RemoveEntry implements Backend. Absence of the row is not an error.
func (b *BoltBackend) RemoveEntry(key []byte, identifier []byte) error {
	sk := storageKey(key, identifier)
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Delete(sk)
	})
	if err != nil {
		return errors.Wrap(err, "remove entry")
	}
	return nil
}

// boltCursor materializes matching rows eagerly inside one read
// transaction, then iterates the in-memory slice. The core's update
// and query paths never hold a cursor open across a write, so the
// eager-materialize tradeoff (vs. a live bbolt cursor straddling
// transactions, which bbolt forbids) costs nothing in practice.
type boltCursor struct {
	rows []cursorRow
	pos  int
	err  error
}

type cursorRow struct {
	identifier []byte
	data       Fields
}

func (c *boltCursor) Next() bool {
	if c.pos >= len(c.rows) {
		return false
	}
	c.pos++
	return true
}

func (c *boltCursor) Identifier() []byte { return c.rows[c.pos-1].identifier }
func (c *boltCursor) Data() Fields       { return c.rows[c.pos-1].data }
func (c *boltCursor) Err() error         { return c.err }
func (c *boltCursor) Close() error       { return nil }

// PerformQuery implements Backend.
func (b *BoltBackend) PerformQuery(equalityPrefix []byte) (Cursor, error) {
	var rows []cursorRow
	err := b.db.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket(b.bucket).Cursor()
		for k, v := cur.Seek(equalityPrefix); k != nil && bytes.HasPrefix(k, equalityPrefix); k, v = cur.Next() {
			identifier := splitStorageKey(k, len(equalityPrefix))
			fields, err := decodeFields(v)
			if err != nil {
				return err
			}
			rows = append(rows, cursorRow{identifier: append([]byte(nil), identifier...), data: fields})
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "perform query")
	}
	return &boltCursor{rows: rows}, nil
}

// Close implements Backend.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}

// Snapshot writes a consistent copy of the whole bbolt file to w,
// grounded on the teacher's TranslateStore.WriteTo: a single read
// transaction's own WriteTo serializes a point-in-time copy without
// blocking concurrent readers.
func (b *BoltBackend) Snapshot(w io.Writer) (int64, error) {
	tx, err := b.db.Begin(false)
	if err != nil {
		return 0, errors.Wrap(err, "begin snapshot transaction")
	}
	defer tx.Rollback()
	n, err := tx.WriteTo(w)
	if err != nil {
		return n, errors.Wrap(err, "snapshot write")
	}
	return n, nil
}

// Restore overwrites the backend's on-disk file with the content read
// from r, via a temp-file-then-rename swap so a crash mid-restore
// never leaves a half-written file in place. The backend is closed
// before and reopened after, matching the teacher's ReadFrom.
func (b *BoltBackend) Restore(r io.Reader, table string, fsyncEnabled bool) (int64, error) {
	path := b.path
	if err := b.db.Close(); err != nil {
		return 0, errors.Wrap(err, "closing backend before restore")
	}
	snapshotPath := path + snapshotExt
	file, err := os.Create(snapshotPath)
	if err != nil {
		return 0, errors.Wrap(err, "creating snapshot file")
	}
	n, err := io.Copy(file, r)
	if err != nil {
		file.Close()
		return n, errors.Wrap(err, "writing snapshot")
	}
	file.Close()
	if err := os.Rename(snapshotPath, path); err != nil {
		return n, errors.Wrap(err, "renaming snapshot into place")
	}
	reopened, err := OpenBoltBackend(path, table, fsyncEnabled)
	if err != nil {
		return n, errors.Wrap(err, "reopening backend after restore")
	}
	b.db = reopened.db
	return n, nil
}

// RestoreBoltPair is Restore's pair-aware counterpart: existing's
// underlying file is shared by a forward and a backward Backend
// (see OpenBoltPair), so restoring through a single Backend's Restore
// would leave the other one holding a *bolt.DB handle to a file that
// has since been closed and replaced. RestoreBoltPair closes the
// shared handle once, swaps the file, and reopens both tables fresh.
func RestoreBoltPair(existing *BoltBackend, r io.Reader, forwardTable, backwardTable string, fsyncEnabled bool) (forward, backward *BoltBackend, n int64, err error) {
	path := existing.path
	if err := existing.db.Close(); err != nil {
		return nil, nil, 0, errors.Wrap(err, "closing backend before restore")
	}
	snapshotPath := path + snapshotExt
	file, err := os.Create(snapshotPath)
	if err != nil {
		return nil, nil, 0, errors.Wrap(err, "creating snapshot file")
	}
	n, err = io.Copy(file, r)
	if err != nil {
		file.Close()
		return nil, nil, n, errors.Wrap(err, "writing snapshot")
	}
	file.Close()
	if err := os.Rename(snapshotPath, path); err != nil {
		return nil, nil, n, errors.Wrap(err, "renaming snapshot into place")
	}
	forward, backward, err = OpenBoltPair(path, forwardTable, backwardTable, fsyncEnabled)
	if err != nil {
		return nil, nil, n, errors.Wrap(err, "reopening tables after restore")
	}
	return forward, backward, n, nil
}
