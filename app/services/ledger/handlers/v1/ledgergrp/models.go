package ledgergrp

import "github.com/blockledger/blockledger/business/core/ledger"

// newBlock represents a block submitted for admission.
type newBlock struct {
	ID           string  `json:"id"`
	Height       int     `json:"height"`
	Transactions []newTx `json:"transactions"`
}

// newTx represents a transaction inside a submitted block.
type newTx struct {
	ID      string      `json:"id"`
	Inputs  []newInput  `json:"inputs"`
	Outputs []newOutput `json:"outputs"`
}

// newInput represents a reference to an output being consumed.
type newInput struct {
	TxID  string `json:"txId"`
	Index int    `json:"index"`
}

// newOutput represents an output being created.
type newOutput struct {
	Address string  `json:"address"`
	Value   float64 `json:"value"`
}

// toCoreNewBlock converts the app layer block into the core layer block.
func toCoreNewBlock(app newBlock) ledger.NewBlock {
	txs := make([]ledger.NewTx, len(app.Transactions))
	for i, tx := range app.Transactions {
		inputs := make([]ledger.NewInput, len(tx.Inputs))
		for j, in := range tx.Inputs {
			inputs[j] = ledger.NewInput{
				TxID:  in.TxID,
				Index: in.Index,
			}
		}

		outputs := make([]ledger.NewOutput, len(tx.Outputs))
		for j, out := range tx.Outputs {
			outputs[j] = ledger.NewOutput{
				Address: out.Address,
				Value:   out.Value,
			}
		}

		txs[i] = ledger.NewTx{
			ID:      tx.ID,
			Inputs:  inputs,
			Outputs: outputs,
		}
	}

	return ledger.NewBlock{
		ID:           app.ID,
		Height:       app.Height,
		Transactions: txs,
	}
}

// =============================================================================

// block represents a stored block in API responses.
type block struct {
	ID     string   `json:"id"`
	Height int      `json:"height"`
	TxIDs  []string `json:"txIds"`
}

func toAppBlock(blk ledger.Block) block {
	return block{
		ID:     blk.ID,
		Height: blk.Height,
		TxIDs:  blk.TxIDs,
	}
}
