// Package ledgerdb contains ledger related CRUD functionality backed by a
// bbolt database.
package ledgerdb

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/blockledger/blockledger/business/core/ledger"
	bolt "go.etcd.io/bbolt"
)

// Bucket names.
var (
	bucketBlocks  = []byte("blocks")  // height (big-endian) -> block record
	bucketTxs     = []byte("txs")     // tx id -> owning height (big-endian)
	bucketOutputs = []byte("outputs") // outpoint -> output record
	bucketAddrs   = []byte("addrs")   // address|outpoint -> nil (balance index)
	bucketSpends  = []byte("spends")  // spender tx id|outpoint -> nil (undo index)
)

// keySep separates the components of composite keys. Transaction ids and
// addresses are caller supplied strings, so a zero byte keeps the components
// unambiguous. Request validation rejects NUL bytes in those strings, which
// keeps prefix scans over these keys alias free.
const keySep = "\x00"

// Store manages the set of ledger buckets inside a bbolt database. bbolt
// serializes writers, so every Update call owns the database for its entire
// read-validate-write sequence.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the ledger database at the specified path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketBlocks, bucketTxs, bucketOutputs, bucketAddrs, bucketSpends} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping validates the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketBlocks) == nil {
			return fmt.Errorf("blocks bucket missing")
		}
		return nil
	})
}

// Update runs the specified function inside a single writable transaction.
// Any error returned by the function aborts the transaction and no partial
// state is ever observable afterwards.
func (s *Store) Update(ctx context.Context, fn func(sc ledger.Scope) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(scope{tx: tx})
	})
}

// View runs the specified function against a read-only snapshot of
// committed state.
func (s *Store) View(ctx context.Context, fn func(sc ledger.Scope) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.View(func(tx *bolt.Tx) error {
		return fn(scope{tx: tx})
	})
}

// =============================================================================

// scope binds the entity stores to one bolt transaction.
type scope struct {
	tx *bolt.Tx
}

// Blocks returns block access bound to this transaction.
func (sc scope) Blocks() ledger.BlockStorer {
	return blockStore{tx: sc.tx}
}

// Outputs returns output access bound to this transaction.
func (sc scope) Outputs() ledger.OutputStorer {
	return outputStore{tx: sc.tx}
}

// =============================================================================

// heightKey encodes a height as a big-endian key so the blocks bucket
// iterates in height order.
func heightKey(height int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(height))
	return key
}

// outpointKey identifies an output by its creating transaction and index.
func outpointKey(txID string, index int) []byte {
	return []byte(txID + keySep + strconv.Itoa(index))
}

// indexKey builds a composite index key from a prefix component and an
// outpoint key.
func indexKey(component string, outpoint []byte) []byte {
	key := make([]byte, 0, len(component)+1+len(outpoint))
	key = append(key, component...)
	key = append(key, keySep...)
	key = append(key, outpoint...)
	return key
}
