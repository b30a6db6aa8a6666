package ledgerdb

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/blockledger/blockledger/business/core/ledger"
	bolt "go.etcd.io/bbolt"
)

// outputStore provides output record access bound to one bolt transaction.
type outputStore struct {
	tx *bolt.Tx
}

// Create stores a new unspent output and its address index entry.
func (os outputStore) Create(out ledger.Output) error {
	outputs := os.tx.Bucket(bucketOutputs)

	key := outpointKey(out.TxID, out.Index)
	if outputs.Get(key) != nil {
		return fmt.Errorf("output %s:%d: %w", out.TxID, out.Index, ledger.ErrOutputExists)
	}

	data, err := json.Marshal(toDBOutput(out))
	if err != nil {
		return err
	}

	if err := outputs.Put(key, data); err != nil {
		return err
	}

	return os.tx.Bucket(bucketAddrs).Put(indexKey(out.Address, key), []byte{})
}

// QueryByPoint returns the output created at the specified transaction and
// index, or ledger.ErrNotFound.
func (os outputStore) QueryByPoint(txID string, index int) (ledger.Output, error) {
	data := os.tx.Bucket(bucketOutputs).Get(outpointKey(txID, index))
	if data == nil {
		return ledger.Output{}, fmt.Errorf("output %s:%d: %w", txID, index, ledger.ErrNotFound)
	}

	var db dbOutput
	if err := json.Unmarshal(data, &db); err != nil {
		return ledger.Output{}, err
	}

	return toCoreOutput(db), nil
}

// Spend marks the output as spent by the specified input, guarded by the
// output currently being unspent. bbolt serializes write transactions, so
// the check and the write form a single compare-and-set: a concurrent
// spender that lost the race observes ledger.ErrAlreadySpent, never a
// silent overwrite.
func (os outputStore) Spend(txID string, index int, spenderID string, spenderIndex int) error {
	outputs := os.tx.Bucket(bucketOutputs)

	key := outpointKey(txID, index)
	data := outputs.Get(key)
	if data == nil {
		return fmt.Errorf("output %s:%d: %w", txID, index, ledger.ErrNotFound)
	}

	var db dbOutput
	if err := json.Unmarshal(data, &db); err != nil {
		return err
	}

	if db.Spent {
		return fmt.Errorf("output %s:%d: %w", txID, index, ledger.ErrAlreadySpent)
	}

	db.Spent = true
	db.SpentBy = spenderID
	db.SpentByIndex = spenderIndex

	updated, err := json.Marshal(db)
	if err != nil {
		return err
	}

	if err := outputs.Put(key, updated); err != nil {
		return err
	}

	return os.tx.Bucket(bucketSpends).Put(indexKey(spenderID, key), []byte{})
}

// UnspendBySpender restores to unspent every output whose recorded spender
// is the specified transaction, clearing the spender reference and the undo
// index entries.
func (os outputStore) UnspendBySpender(spenderID string) error {
	spends := os.tx.Bucket(bucketSpends)
	outputs := os.tx.Bucket(bucketOutputs)

	prefix := []byte(spenderID + keySep)

	// Collect the index entries first: a bucket must not be modified while
	// a cursor walks it.
	var keys [][]byte
	c := spends.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}

	for _, k := range keys {
		outpoint := k[len(prefix):]

		data := outputs.Get(outpoint)
		if data == nil {
			return fmt.Errorf("spend index entry without output: %w", ledger.ErrNotFound)
		}

		var db dbOutput
		if err := json.Unmarshal(data, &db); err != nil {
			return err
		}

		db.Spent = false
		db.SpentBy = ""
		db.SpentByIndex = 0

		updated, err := json.Marshal(db)
		if err != nil {
			return err
		}

		if err := outputs.Put(outpoint, updated); err != nil {
			return err
		}

		if err := spends.Delete(k); err != nil {
			return err
		}
	}

	return nil
}

// Balance sums the values of the unspent outputs owned by the specified
// address. Addresses with no outputs report zero.
func (os outputStore) Balance(address string) (float64, error) {
	addrs := os.tx.Bucket(bucketAddrs)
	outputs := os.tx.Bucket(bucketOutputs)

	prefix := []byte(address + keySep)

	var balance float64
	c := addrs.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		data := outputs.Get(k[len(prefix):])
		if data == nil {
			return 0, fmt.Errorf("address index entry without output: %w", ledger.ErrNotFound)
		}

		var db dbOutput
		if err := json.Unmarshal(data, &db); err != nil {
			return 0, err
		}

		if !db.Spent {
			balance += db.Value
		}
	}

	return balance, nil
}

// deleteByTx removes every output created by the specified transaction along
// with its address and spend index entries. Used by the block cascade delete.
func (os outputStore) deleteByTx(txID string) error {
	outputs := os.tx.Bucket(bucketOutputs)
	addrs := os.tx.Bucket(bucketAddrs)
	spends := os.tx.Bucket(bucketSpends)

	prefix := []byte(txID + keySep)

	var keys [][]byte
	c := outputs.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}

	for _, k := range keys {
		var db dbOutput
		if err := json.Unmarshal(outputs.Get(k), &db); err != nil {
			return err
		}

		if err := addrs.Delete(indexKey(db.Address, k)); err != nil {
			return err
		}
		if db.Spent {
			if err := spends.Delete(indexKey(db.SpentBy, k)); err != nil {
				return err
			}
		}

		if err := outputs.Delete(k); err != nil {
			return err
		}
	}

	return nil
}
