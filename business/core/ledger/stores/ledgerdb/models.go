package ledgerdb

import "github.com/blockledger/blockledger/business/core/ledger"

// dbBlock represents a block record as stored in the blocks bucket.
type dbBlock struct {
	ID     string   `json:"id"`
	Height int      `json:"height"`
	TxIDs  []string `json:"tx_ids"`
}

// dbOutput represents an output record as stored in the outputs bucket.
type dbOutput struct {
	TxID         string  `json:"tx_id"`
	Index        int     `json:"index"`
	Address      string  `json:"address"`
	Value        float64 `json:"value"`
	Spent        bool    `json:"spent"`
	SpentBy      string  `json:"spent_by,omitempty"`
	SpentByIndex int     `json:"spent_by_index,omitempty"`
}

func toDBBlock(blk ledger.Block) dbBlock {
	return dbBlock{
		ID:     blk.ID,
		Height: blk.Height,
		TxIDs:  blk.TxIDs,
	}
}

func toCoreBlock(db dbBlock) ledger.Block {
	return ledger.Block{
		ID:     db.ID,
		Height: db.Height,
		TxIDs:  db.TxIDs,
	}
}

func toDBOutput(out ledger.Output) dbOutput {
	return dbOutput{
		TxID:         out.TxID,
		Index:        out.Index,
		Address:      out.Address,
		Value:        out.Value,
		Spent:        out.Spent,
		SpentBy:      out.SpentBy,
		SpentByIndex: out.SpentByIndex,
	}
}

func toCoreOutput(db dbOutput) ledger.Output {
	return ledger.Output{
		TxID:         db.TxID,
		Index:        db.Index,
		Address:      db.Address,
		Value:        db.Value,
		Spent:        db.Spent,
		SpentBy:      db.SpentBy,
		SpentByIndex: db.SpentByIndex,
	}
}
