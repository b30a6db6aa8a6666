// Package ledger provides the ledger consistency engine: block admission
// validation, the transactional state transition that applies a block's
// effect on the unspent output set, and bounded rollback.
package ledger

import (
	"context"
	"errors"
	"math"

	"github.com/blockledger/blockledger/business/sys/validate"
)

// valueTolerance absorbs floating point representation error when checking
// value conservation.
const valueTolerance = 1e-6

// DefaultMaxRollbackDepth bounds how many blocks a single rollback may undo.
const DefaultMaxRollbackDepth = 2000

// =============================================================================

// Storer represents the durable store the engine issues its operations
// against. Update runs the specified function inside a single atomic write
// transaction: either every write lands or none do. View runs the function
// against a read-only snapshot of committed state.
type Storer interface {
	Update(ctx context.Context, fn func(s Scope) error) error
	View(ctx context.Context, fn func(s Scope) error) error
}

// Scope provides entity level access bound to one store transaction so the
// engine can compose multiple entity operations inside one atomic unit.
type Scope interface {
	Blocks() BlockStorer
	Outputs() OutputStorer
}

// BlockStorer is the set of operations the engine needs over block records.
// Create also records the block's transaction memberships and fails with
// ErrTxExists when a transaction id is already present in retained history.
// DeleteAbove cascades to the owned transactions and the outputs they created.
type BlockStorer interface {
	Create(blk Block) error
	CurrentHeight() (int, error)
	QueryAbove(height int) ([]Block, error)
	QueryRange(from int, to int) ([]Block, error)
	DeleteAbove(height int) error
}

// OutputStorer is the set of operations the engine needs over output records.
// Spend is a conditional update guarded by the output being unspent: a spent
// output fails with ErrAlreadySpent, it is never silently overwritten.
type OutputStorer interface {
	Create(out Output) error
	QueryByPoint(txID string, index int) (Output, error)
	Spend(txID string, index int, spenderID string, spenderIndex int) error
	UnspendBySpender(spenderID string) error
	Balance(address string) (float64, error)
}

// =============================================================================

// EvHandler defines a function that is called when ledger events occur.
type EvHandler func(v string, args ...any)

// Config represents the configuration required to start the engine.
type Config struct {
	Storer           Storer
	MaxRollbackDepth int
	EvHandler        EvHandler
}

// Core manages the ledger. All mutating operations run their full
// read-validate-write sequence inside one store transaction; the engine holds
// no cross-request state beyond this configuration.
type Core struct {
	storer   Storer
	maxDepth int
	ev       EvHandler
}

// NewCore constructs a core for ledger api access.
func NewCore(cfg Config) (*Core, error) {
	if cfg.Storer == nil {
		return nil, errors.New("storer is required")
	}

	maxDepth := cfg.MaxRollbackDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxRollbackDepth
	}

	ev := cfg.EvHandler
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	core := Core{
		storer:   cfg.Storer,
		maxDepth: maxDepth,
		ev:       ev,
	}

	return &core, nil
}

// SubmitBlock validates the submitted block and, when every check passes,
// applies its transactions to the ledger as one atomic unit. The checks run
// in a fixed order and the first violated check determines the reported
// error kind.
func (c *Core) SubmitBlock(ctx context.Context, nb NewBlock) error {
	if err := validate.Check(nb); err != nil {
		return NewError(KindStructural, "invalid block: %w", err)
	}

	txIDs := make([]string, len(nb.Transactions))
	for i, tx := range nb.Transactions {
		txIDs[i] = tx.ID
	}

	c.ev("ledger: SubmitBlock: started: blk[%d] id[%s] txs[%d]", nb.Height, nb.ID, len(nb.Transactions))

	return c.storer.Update(ctx, func(s Scope) error {

		// The block must carry the next height in the sequence.
		current, err := s.Blocks().CurrentHeight()
		if err != nil {
			return err
		}
		if nb.Height != current+1 {
			return NewError(KindSequencing, "block is not the next height, got %d, exp %d", nb.Height, current+1)
		}

		// The block id must match the hash recomputed from its contents.
		if hash := BlockHash(nb.Height, txIDs); nb.ID != hash {
			return NewError(KindIdentity, "block id does not match contents, got %s, exp %s", nb.ID, hash)
		}

		// Every input must reference an output that exists and is unspent.
		// The referenced values are accumulated for the conservation check.
		var totalIn float64
		var totalOut float64
		for _, tx := range nb.Transactions {
			for _, in := range tx.Inputs {
				out, err := s.Outputs().QueryByPoint(in.TxID, in.Index)
				if err != nil {
					if errors.Is(err, ErrNotFound) {
						return NewError(KindReferential, "input %s:%d references an unknown output", in.TxID, in.Index)
					}
					return err
				}
				if out.Spent {
					return NewError(KindConflict, "input %s:%d references a spent output", in.TxID, in.Index)
				}
				totalIn += out.Value
			}

			for _, out := range tx.Outputs {
				totalOut += out.Value
			}
		}

		// Input value must equal output value. The genesis block is exempt
		// since it mints the initial value with no inputs.
		if nb.Height != 1 && math.Abs(totalIn-totalOut) > valueTolerance {
			return NewError(KindConservation, "input value %v does not match output value %v", totalIn, totalOut)
		}

		// All checks passed. Apply the block.
		blk := Block{
			ID:     nb.ID,
			Height: nb.Height,
			TxIDs:  txIDs,
		}
		if err := s.Blocks().Create(blk); err != nil {
			if errors.Is(err, ErrTxExists) {
				return NewError(KindConflict, "block carries a known transaction id: %s", err)
			}
			return err
		}

		for _, tx := range nb.Transactions {
			for i, in := range tx.Inputs {

				// Conditional update guarded by the unspent flag. Losing the
				// race to another spender reports a conflict, the flag is
				// never overwritten.
				if err := s.Outputs().Spend(in.TxID, in.Index, tx.ID, i); err != nil {
					if errors.Is(err, ErrAlreadySpent) {
						return NewError(KindConflict, "input %s:%d references a spent output", in.TxID, in.Index)
					}
					return err
				}
			}

			for i, out := range tx.Outputs {
				output := Output{
					TxID:    tx.ID,
					Index:   i,
					Address: out.Address,
					Value:   out.Value,
				}
				if err := s.Outputs().Create(output); err != nil {
					return err
				}
			}
		}

		c.ev("ledger: SubmitBlock: accepted: blk[%d] id[%s]", nb.Height, nb.ID)
		return nil
	})
}

// Rollback reverts the ledger to the specified height, undoing the effect of
// every block above it as one atomic unit. Outputs spent by the removed
// transactions are restored to unspent; outputs created by them are deleted
// with their owning blocks.
func (c *Core) Rollback(ctx context.Context, height int) error {
	if height < 0 {
		return NewError(KindRange, "rollback height must not be negative, got %d", height)
	}

	c.ev("ledger: Rollback: started: target[%d]", height)

	return c.storer.Update(ctx, func(s Scope) error {
		current, err := s.Blocks().CurrentHeight()
		if err != nil {
			return err
		}

		if height > current {
			return NewError(KindRange, "cannot rollback to a future height, got %d, current %d", height, current)
		}
		if current-height > c.maxDepth {
			return NewError(KindRange, "rollback depth %d exceeds the maximum of %d", current-height, c.maxDepth)
		}

		blocks, err := s.Blocks().QueryAbove(height)
		if err != nil {
			return err
		}

		// Undo the spends recorded by every transaction being removed. Each
		// block's undo is independent, the reverse walk mirrors reverse
		// replay of history.
		for i := len(blocks) - 1; i >= 0; i-- {
			blk := blocks[i]
			for _, txID := range blk.TxIDs {
				if err := s.Outputs().UnspendBySpender(txID); err != nil {
					return err
				}
			}

			c.ev("ledger: Rollback: unwound: blk[%d] id[%s]", blk.Height, blk.ID)
		}

		// Deleting the blocks cascades to their transactions and the outputs
		// those transactions created.
		if err := s.Blocks().DeleteAbove(height); err != nil {
			return err
		}

		c.ev("ledger: Rollback: completed: height[%d]", height)
		return nil
	})
}

// Balance returns the sum of the unspent output values owned by the
// specified address. Unknown addresses report zero, never an error.
func (c *Core) Balance(ctx context.Context, address string) (float64, error) {
	var balance float64

	err := c.storer.View(ctx, func(s Scope) error {
		var err error
		balance, err = s.Outputs().Balance(address)
		return err
	})
	if err != nil {
		return 0, err
	}

	return balance, nil
}

// CurrentHeight returns the height of the latest accepted block, or zero
// when the ledger is empty.
func (c *Core) CurrentHeight(ctx context.Context) (int, error) {
	var height int

	err := c.storer.View(ctx, func(s Scope) error {
		var err error
		height, err = s.Blocks().CurrentHeight()
		return err
	})
	if err != nil {
		return 0, err
	}

	return height, nil
}

// QueryBlocksByHeight returns the block records in the specified inclusive
// height range.
func (c *Core) QueryBlocksByHeight(ctx context.Context, from int, to int) ([]Block, error) {
	if from < 1 || to < from {
		return nil, NewError(KindRange, "invalid block range [%d,%d]", from, to)
	}

	var blocks []Block

	err := c.storer.View(ctx, func(s Scope) error {
		var err error
		blocks, err = s.Blocks().QueryRange(from, to)
		return err
	})
	if err != nil {
		return nil, err
	}

	return blocks, nil
}
