package ledger_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/blockledger/blockledger/business/core/ledger"
	"github.com/blockledger/blockledger/business/core/ledger/stores/ledgerdb"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// =============================================================================

func newTestCore(t *testing.T, maxDepth int) *ledger.Core {
	t.Helper()

	store, err := ledgerdb.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open the ledger database: %v", failed, err)
	}
	t.Cleanup(func() { store.Close() })

	core, err := ledger.NewCore(ledger.Config{
		Storer:           store,
		MaxRollbackDepth: maxDepth,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the core: %v", failed, err)
	}

	return core
}

// makeBlock builds a block at the specified height carrying the specified
// transactions, with its id computed from its contents.
func makeBlock(height int, txs ...ledger.NewTx) ledger.NewBlock {
	nb := ledger.NewBlock{
		Height:       height,
		Transactions: txs,
	}
	nb.ID = nb.Hash()
	return nb
}

// genesis mints 100 to addr1 through tx1.
func genesis() ledger.NewBlock {
	return makeBlock(1, ledger.NewTx{
		ID:      "tx1",
		Outputs: []ledger.NewOutput{{Address: "addr1", Value: 100}},
	})
}

// checkBalance queries a balance and compares it against the expectation.
func checkBalance(t *testing.T, core *ledger.Core, address string, exp float64) {
	t.Helper()

	balance, err := core.Balance(context.Background(), address)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to query balance of %s: %v", failed, address, err)
	}

	if balance != exp {
		t.Errorf("\t%s\tShould have the correct balance for %s.", failed, address)
		t.Logf("\t%s\tgot: %v", failed, balance)
		t.Logf("\t%s\texp: %v", failed, exp)
		return
	}
	t.Logf("\t%s\tShould have the correct balance for %s.", success, address)
}

// =============================================================================

func Test_GenesisAdmission(t *testing.T) {
	t.Log("Given the need to admit a genesis block that mints value.")
	{
		core := newTestCore(t, 0)
		ctx := context.Background()

		if err := core.SubmitBlock(ctx, genesis()); err != nil {
			t.Fatalf("\t%s\tShould be able to admit the genesis block: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to admit the genesis block.", success)

		height, err := core.CurrentHeight(ctx)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to query the height: %v", failed, err)
		}
		if height != 1 {
			t.Fatalf("\t%s\tShould have height 1, got %d.", failed, height)
		}
		t.Logf("\t%s\tShould have height 1.", success)

		checkBalance(t, core, "addr1", 100)
	}
}

func Test_SpendFlow(t *testing.T) {
	t.Log("Given the need to spend an output across two new outputs.")
	{
		core := newTestCore(t, 0)
		ctx := context.Background()

		if err := core.SubmitBlock(ctx, genesis()); err != nil {
			t.Fatalf("\t%s\tShould be able to admit the genesis block: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to admit the genesis block.", success)

		blk2 := makeBlock(2, ledger.NewTx{
			ID:     "tx2",
			Inputs: []ledger.NewInput{{TxID: "tx1", Index: 0}},
			Outputs: []ledger.NewOutput{
				{Address: "addr2", Value: 40},
				{Address: "addr3", Value: 60},
			},
		})
		if err := core.SubmitBlock(ctx, blk2); err != nil {
			t.Fatalf("\t%s\tShould be able to admit the spending block: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to admit the spending block.", success)

		checkBalance(t, core, "addr1", 0)
		checkBalance(t, core, "addr2", 40)
		checkBalance(t, core, "addr3", 60)
	}
}

func Test_AdmissionChecks(t *testing.T) {
	type table struct {
		name  string
		setup []ledger.NewBlock
		blk   ledger.NewBlock
		kind  ledger.Kind
	}

	spend := func(height int, txID string, value float64) ledger.NewBlock {
		return makeBlock(height, ledger.NewTx{
			ID:      txID,
			Inputs:  []ledger.NewInput{{TxID: "tx1", Index: 0}},
			Outputs: []ledger.NewOutput{{Address: "addr2", Value: value}},
		})
	}

	tt := []table{
		{
			name: "missing block id",
			blk:  ledger.NewBlock{Height: 1},
			kind: ledger.KindStructural,
		},
		{
			name: "zero height",
			blk:  ledger.NewBlock{ID: "abc", Height: 0},
			kind: ledger.KindStructural,
		},
		{
			name: "negative output value",
			blk: ledger.NewBlock{ID: "abc", Height: 1, Transactions: []ledger.NewTx{
				{ID: "tx1", Outputs: []ledger.NewOutput{{Address: "addr1", Value: -5}}},
			}},
			kind: ledger.KindStructural,
		},
		{
			name: "missing input tx id",
			blk: ledger.NewBlock{ID: "abc", Height: 1, Transactions: []ledger.NewTx{
				{ID: "tx1", Inputs: []ledger.NewInput{{Index: 0}}},
			}},
			kind: ledger.KindStructural,
		},
		{
			name: "nul byte in tx id",
			blk: ledger.NewBlock{ID: "abc", Height: 1, Transactions: []ledger.NewTx{
				{ID: "tx\x001", Outputs: []ledger.NewOutput{{Address: "addr1", Value: 100}}},
			}},
			kind: ledger.KindStructural,
		},
		{
			name: "nul byte in output address",
			blk: ledger.NewBlock{ID: "abc", Height: 1, Transactions: []ledger.NewTx{
				{ID: "tx1", Outputs: []ledger.NewOutput{{Address: "addr\x001", Value: 100}}},
			}},
			kind: ledger.KindStructural,
		},
		{
			name: "height out of sequence",
			blk:  makeBlock(2, ledger.NewTx{ID: "tx1", Outputs: []ledger.NewOutput{{Address: "addr1", Value: 100}}}),
			kind: ledger.KindSequencing,
		},
		{
			name:  "height resubmitted",
			setup: []ledger.NewBlock{genesis()},
			blk:   makeBlock(1, ledger.NewTx{ID: "tx9", Outputs: []ledger.NewOutput{{Address: "addr1", Value: 1}}}),
			kind:  ledger.KindSequencing,
		},
		{
			name: "wrong block id",
			blk: ledger.NewBlock{ID: "deadbeef", Height: 1, Transactions: []ledger.NewTx{
				{ID: "tx1", Outputs: []ledger.NewOutput{{Address: "addr1", Value: 100}}},
			}},
			kind: ledger.KindIdentity,
		},
		{
			name:  "unknown output reference",
			setup: []ledger.NewBlock{genesis()},
			blk: makeBlock(2, ledger.NewTx{
				ID:      "tx2",
				Inputs:  []ledger.NewInput{{TxID: "nope", Index: 0}},
				Outputs: []ledger.NewOutput{{Address: "addr2", Value: 100}},
			}),
			kind: ledger.KindReferential,
		},
		{
			name:  "spent output reference",
			setup: []ledger.NewBlock{genesis(), spend(2, "tx2", 100)},
			blk:   spend(3, "tx3", 100),
			kind:  ledger.KindConflict,
		},
		{
			name:  "value not conserved",
			setup: []ledger.NewBlock{genesis()},
			blk: makeBlock(2, ledger.NewTx{
				ID:     "tx2",
				Inputs: []ledger.NewInput{{TxID: "tx1", Index: 0}},
				Outputs: []ledger.NewOutput{
					{Address: "addr2", Value: 40},
					{Address: "addr3", Value: 70},
				},
			}),
			kind: ledger.KindConservation,
		},
		{
			name:  "duplicate transaction id",
			setup: []ledger.NewBlock{genesis()},
			blk: makeBlock(2, ledger.NewTx{
				ID:      "tx1",
				Inputs:  []ledger.NewInput{{TxID: "tx1", Index: 0}},
				Outputs: []ledger.NewOutput{{Address: "addr2", Value: 100}},
			}),
			kind: ledger.KindConflict,
		},
		{
			name: "duplicate transaction id within the block",
			blk: makeBlock(1,
				ledger.NewTx{ID: "dup", Outputs: []ledger.NewOutput{{Address: "addr1", Value: 50}}},
				ledger.NewTx{ID: "dup", Outputs: []ledger.NewOutput{{Address: "addr1", Value: 50}}},
			),
			kind: ledger.KindConflict,
		},
		{
			name: "duplicate empty transactions within the block",
			blk:  makeBlock(1, ledger.NewTx{ID: "dup"}, ledger.NewTx{ID: "dup"}),
			kind: ledger.KindConflict,
		},
	}

	t.Log("Given the need to reject blocks violating the admission rules.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a block with %s.", testID, tst.name)
			{
				f := func(t *testing.T) {
					core := newTestCore(t, 0)
					ctx := context.Background()

					for _, blk := range tst.setup {
						if err := core.SubmitBlock(ctx, blk); err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould be able to admit setup block %d: %v", failed, testID, blk.Height, err)
						}
					}

					err := core.SubmitBlock(ctx, tst.blk)
					if err == nil {
						t.Fatalf("\t%s\tTest %d:\tShould reject the block.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould reject the block.", success, testID)

					if kind := ledger.GetKind(err); kind != tst.kind {
						t.Errorf("\t%s\tTest %d:\tShould report the %s kind, got %s.", failed, testID, tst.kind, kind)
					} else {
						t.Logf("\t%s\tTest %d:\tShould report the %s kind.", success, testID, kind)
					}
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_ConservationTolerance(t *testing.T) {
	t.Log("Given the need to absorb floating point representation error.")
	{
		core := newTestCore(t, 0)
		ctx := context.Background()

		if err := core.SubmitBlock(ctx, genesis()); err != nil {
			t.Fatalf("\t%s\tShould be able to admit the genesis block: %v", failed, err)
		}

		blk2 := makeBlock(2, ledger.NewTx{
			ID:     "tx2",
			Inputs: []ledger.NewInput{{TxID: "tx1", Index: 0}},
			Outputs: []ledger.NewOutput{
				{Address: "addr2", Value: 40},
				{Address: "addr3", Value: 60.0000001},
			},
		})
		if err := core.SubmitBlock(ctx, blk2); err != nil {
			t.Fatalf("\t%s\tShould accept a mismatch inside the tolerance: %v", failed, err)
		}
		t.Logf("\t%s\tShould accept a mismatch inside the tolerance.", success)
	}
}

func Test_Rollback(t *testing.T) {
	t.Log("Given the need to rollback the ledger to a prior height.")
	{
		core := newTestCore(t, 0)
		ctx := context.Background()

		if err := core.SubmitBlock(ctx, genesis()); err != nil {
			t.Fatalf("\t%s\tShould be able to admit the genesis block: %v", failed, err)
		}

		blk2 := makeBlock(2, ledger.NewTx{
			ID:     "tx2",
			Inputs: []ledger.NewInput{{TxID: "tx1", Index: 0}},
			Outputs: []ledger.NewOutput{
				{Address: "addr2", Value: 40},
				{Address: "addr3", Value: 60},
			},
		})
		if err := core.SubmitBlock(ctx, blk2); err != nil {
			t.Fatalf("\t%s\tShould be able to admit the spending block: %v", failed, err)
		}

		if err := core.Rollback(ctx, 1); err != nil {
			t.Fatalf("\t%s\tShould be able to rollback to height 1: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to rollback to height 1.", success)

		height, err := core.CurrentHeight(ctx)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to query the height: %v", failed, err)
		}
		if height != 1 {
			t.Fatalf("\t%s\tShould have height 1 after rollback, got %d.", failed, height)
		}
		t.Logf("\t%s\tShould have height 1 after rollback.", success)

		checkBalance(t, core, "addr1", 100)
		checkBalance(t, core, "addr2", 0)
		checkBalance(t, core, "addr3", 0)

		// The restored output must be spendable again.
		blk2b := makeBlock(2, ledger.NewTx{
			ID:      "tx2b",
			Inputs:  []ledger.NewInput{{TxID: "tx1", Index: 0}},
			Outputs: []ledger.NewOutput{{Address: "addr4", Value: 100}},
		})
		if err := core.SubmitBlock(ctx, blk2b); err != nil {
			t.Fatalf("\t%s\tShould be able to respend the restored output: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to respend the restored output.", success)

		checkBalance(t, core, "addr4", 100)
	}
}

func Test_RollbackBounds(t *testing.T) {
	t.Log("Given the need to reject rollback targets outside the allowed range.")
	{
		core := newTestCore(t, 2)
		ctx := context.Background()

		if err := core.SubmitBlock(ctx, genesis()); err != nil {
			t.Fatalf("\t%s\tShould be able to admit the genesis block: %v", failed, err)
		}

		// Chain two more blocks, each moving the full value forward.
		prev := "tx1"
		for height := 2; height <= 3; height++ {
			txID := prev + "n"
			blk := makeBlock(height, ledger.NewTx{
				ID:      txID,
				Inputs:  []ledger.NewInput{{TxID: prev, Index: 0}},
				Outputs: []ledger.NewOutput{{Address: "addr1", Value: 100}},
			})
			if err := core.SubmitBlock(ctx, blk); err != nil {
				t.Fatalf("\t%s\tShould be able to admit block %d: %v", failed, height, err)
			}
			prev = txID
		}

		err := core.Rollback(ctx, -1)
		if kind := ledger.GetKind(err); kind != ledger.KindRange {
			t.Errorf("\t%s\tShould reject a negative target with the range kind, got %v.", failed, err)
		} else {
			t.Logf("\t%s\tShould reject a negative target with the range kind.", success)
		}

		err = core.Rollback(ctx, 4)
		if kind := ledger.GetKind(err); kind != ledger.KindRange {
			t.Errorf("\t%s\tShould reject a future target with the range kind, got %v.", failed, err)
		} else {
			t.Logf("\t%s\tShould reject a future target with the range kind.", success)
		}

		err = core.Rollback(ctx, 0)
		if kind := ledger.GetKind(err); kind != ledger.KindRange {
			t.Errorf("\t%s\tShould reject an excessive depth with the range kind, got %v.", failed, err)
		} else {
			t.Logf("\t%s\tShould reject an excessive depth with the range kind.", success)
		}

		if err := core.Rollback(ctx, 3); err != nil {
			t.Errorf("\t%s\tShould allow a rollback to the current height: %v", failed, err)
		} else {
			t.Logf("\t%s\tShould allow a rollback to the current height.", success)
		}

		if err := core.Rollback(ctx, 1); err != nil {
			t.Errorf("\t%s\tShould allow a rollback inside the depth bound: %v", failed, err)
		} else {
			t.Logf("\t%s\tShould allow a rollback inside the depth bound.", success)
		}

		checkBalance(t, core, "addr1", 100)
	}
}

func Test_RollbackEquivalence(t *testing.T) {
	t.Log("Given the need for rollback to be a true inverse of apply.")
	{
		ctx := context.Background()

		blk2 := makeBlock(2, ledger.NewTx{
			ID:     "tx2",
			Inputs: []ledger.NewInput{{TxID: "tx1", Index: 0}},
			Outputs: []ledger.NewOutput{
				{Address: "addr2", Value: 40},
				{Address: "addr3", Value: 60},
			},
		})
		blk3 := makeBlock(3, ledger.NewTx{
			ID:      "tx3",
			Inputs:  []ledger.NewInput{{TxID: "tx2", Index: 1}},
			Outputs: []ledger.NewOutput{{Address: "addr4", Value: 60}},
		})

		// One ledger built to height 3 then rolled back to 2.
		rolled := newTestCore(t, 0)
		for _, blk := range []ledger.NewBlock{genesis(), blk2, blk3} {
			if err := rolled.SubmitBlock(ctx, blk); err != nil {
				t.Fatalf("\t%s\tShould be able to admit block %d: %v", failed, blk.Height, err)
			}
		}
		if err := rolled.Rollback(ctx, 2); err != nil {
			t.Fatalf("\t%s\tShould be able to rollback to height 2: %v", failed, err)
		}

		// Another ledger only ever built to height 2.
		direct := newTestCore(t, 0)
		for _, blk := range []ledger.NewBlock{genesis(), blk2} {
			if err := direct.SubmitBlock(ctx, blk); err != nil {
				t.Fatalf("\t%s\tShould be able to admit block %d: %v", failed, blk.Height, err)
			}
		}

		for _, address := range []string{"addr1", "addr2", "addr3", "addr4"} {
			want, err := direct.Balance(ctx, address)
			if err != nil {
				t.Fatalf("\t%s\tShould be able to query %s: %v", failed, address, err)
			}
			checkBalance(t, rolled, address, want)
		}
	}
}

func Test_UnknownAddress(t *testing.T) {
	t.Log("Given the need to report zero for unknown addresses.")
	{
		core := newTestCore(t, 0)
		checkBalance(t, core, "never-seen", 0)
	}
}

func Test_ConcurrentDoubleSpend(t *testing.T) {
	t.Log("Given the need to admit exactly one of two racing spenders.")
	{
		core := newTestCore(t, 0)
		ctx := context.Background()

		if err := core.SubmitBlock(ctx, genesis()); err != nil {
			t.Fatalf("\t%s\tShould be able to admit the genesis block: %v", failed, err)
		}

		blkA := makeBlock(2, ledger.NewTx{
			ID:      "txA",
			Inputs:  []ledger.NewInput{{TxID: "tx1", Index: 0}},
			Outputs: []ledger.NewOutput{{Address: "addrA", Value: 100}},
		})
		blkB := makeBlock(2, ledger.NewTx{
			ID:      "txB",
			Inputs:  []ledger.NewInput{{TxID: "tx1", Index: 0}},
			Outputs: []ledger.NewOutput{{Address: "addrB", Value: 100}},
		})

		results := make([]error, 2)
		var wg sync.WaitGroup
		wg.Add(2)
		for i, blk := range []ledger.NewBlock{blkA, blkB} {
			go func(i int, blk ledger.NewBlock) {
				defer wg.Done()
				results[i] = core.SubmitBlock(ctx, blk)
			}(i, blk)
		}
		wg.Wait()

		var oks int
		for _, err := range results {
			if err == nil {
				oks++
				continue
			}
			if kind := ledger.GetKind(err); kind != ledger.KindSequencing && kind != ledger.KindConflict {
				t.Errorf("\t%s\tShould fail the loser with a sequencing or conflict kind, got %v.", failed, err)
			}
		}
		if oks != 1 {
			t.Fatalf("\t%s\tShould admit exactly one block, got %d.", failed, oks)
		}
		t.Logf("\t%s\tShould admit exactly one block.", success)

		balA, err := core.Balance(ctx, "addrA")
		if err != nil {
			t.Fatalf("\t%s\tShould be able to query addrA: %v", failed, err)
		}
		balB, err := core.Balance(ctx, "addrB")
		if err != nil {
			t.Fatalf("\t%s\tShould be able to query addrB: %v", failed, err)
		}
		if balA+balB != 100 {
			t.Fatalf("\t%s\tShould have moved the output exactly once, got %v and %v.", failed, balA, balB)
		}
		t.Logf("\t%s\tShould have moved the output exactly once.", success)

		checkBalance(t, core, "addr1", 0)
	}
}

func Test_StoreErrorsKeepKindUnknown(t *testing.T) {
	t.Log("Given the need to keep unexpected errors out of the client taxonomy.")
	{
		if kind := ledger.GetKind(errors.New("disk on fire")); kind != ledger.KindUnknown {
			t.Fatalf("\t%s\tShould report KindUnknown for foreign errors, got %s.", failed, kind)
		}
		t.Logf("\t%s\tShould report KindUnknown for foreign errors.", success)
	}
}
