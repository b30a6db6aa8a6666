package ledgerdb

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/blockledger/blockledger/business/core/ledger"
	bolt "go.etcd.io/bbolt"
)

// blockStore provides block record access bound to one bolt transaction.
type blockStore struct {
	tx *bolt.Tx
}

// Create stores the block record and a membership record for each of its
// transactions. A transaction id duplicated within the block or already
// present in retained history fails with ledger.ErrTxExists before any
// record is written by the caller's transaction commit.
func (bs blockStore) Create(blk ledger.Block) error {
	blocks := bs.tx.Bucket(bucketBlocks)
	txs := bs.tx.Bucket(bucketTxs)

	key := heightKey(blk.Height)
	if blocks.Get(key) != nil {
		return fmt.Errorf("block at height %d already exists", blk.Height)
	}

	seen := make(map[string]struct{}, len(blk.TxIDs))
	for _, txID := range blk.TxIDs {
		if _, exists := seen[txID]; exists {
			return fmt.Errorf("tx %s: %w", txID, ledger.ErrTxExists)
		}
		seen[txID] = struct{}{}

		if txs.Get([]byte(txID)) != nil {
			return fmt.Errorf("tx %s: %w", txID, ledger.ErrTxExists)
		}
	}

	for _, txID := range blk.TxIDs {
		if err := txs.Put([]byte(txID), key); err != nil {
			return err
		}
	}

	data, err := json.Marshal(toDBBlock(blk))
	if err != nil {
		return err
	}

	return blocks.Put(key, data)
}

// CurrentHeight returns the height of the latest stored block, or zero when
// no blocks exist.
func (bs blockStore) CurrentHeight() (int, error) {
	c := bs.tx.Bucket(bucketBlocks).Cursor()

	k, _ := c.Last()
	if k == nil {
		return 0, nil
	}

	return int(binary.BigEndian.Uint64(k)), nil
}

// QueryAbove returns every block with a height greater than the specified
// height, in ascending height order.
func (bs blockStore) QueryAbove(height int) ([]ledger.Block, error) {
	var blocks []ledger.Block

	c := bs.tx.Bucket(bucketBlocks).Cursor()
	for k, v := c.Seek(heightKey(height + 1)); k != nil; k, v = c.Next() {
		var db dbBlock
		if err := json.Unmarshal(v, &db); err != nil {
			return nil, err
		}
		blocks = append(blocks, toCoreBlock(db))
	}

	return blocks, nil
}

// QueryRange returns the blocks in the specified inclusive height range, in
// ascending height order.
func (bs blockStore) QueryRange(from int, to int) ([]ledger.Block, error) {
	var blocks []ledger.Block

	c := bs.tx.Bucket(bucketBlocks).Cursor()
	for k, v := c.Seek(heightKey(from)); k != nil; k, v = c.Next() {
		if int(binary.BigEndian.Uint64(k)) > to {
			break
		}

		var db dbBlock
		if err := json.Unmarshal(v, &db); err != nil {
			return nil, err
		}
		blocks = append(blocks, toCoreBlock(db))
	}

	return blocks, nil
}

// DeleteAbove removes every block with a height greater than the specified
// height. The delete cascades: the blocks' transaction membership records go
// with them, as do the outputs those transactions created and the index
// entries pointing at those outputs.
func (bs blockStore) DeleteAbove(height int) error {
	blocks, err := bs.QueryAbove(height)
	if err != nil {
		return err
	}

	outputs := outputStore{tx: bs.tx}
	blocksBkt := bs.tx.Bucket(bucketBlocks)
	txsBkt := bs.tx.Bucket(bucketTxs)

	for _, blk := range blocks {
		for _, txID := range blk.TxIDs {
			if err := outputs.deleteByTx(txID); err != nil {
				return err
			}
			if err := txsBkt.Delete([]byte(txID)); err != nil {
				return err
			}
		}

		if err := blocksBkt.Delete(heightKey(blk.Height)); err != nil {
			return err
		}
	}

	return nil
}
