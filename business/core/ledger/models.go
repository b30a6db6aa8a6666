package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// NewBlock is an untrusted block submitted for admission into the ledger.
type NewBlock struct {
	ID           string  `validate:"required"`
	Height       int     `validate:"required,gte=1"`
	Transactions []NewTx `validate:"dive"`
}

// NewTx is a transaction carried inside a submitted block.
type NewTx struct {
	ID      string      `validate:"required,nonul"`
	Inputs  []NewInput  `validate:"dive"`
	Outputs []NewOutput `validate:"dive"`
}

// NewInput references a previously created output being consumed.
type NewInput struct {
	TxID  string `validate:"required,nonul"`
	Index int    `validate:"gte=0"`
}

// NewOutput is a new output being created by a transaction.
type NewOutput struct {
	Address string  `validate:"required,nonul"`
	Value   float64 `validate:"gte=0"`
}

// Hash computes the content identity this block must carry to be accepted.
func (nb NewBlock) Hash() string {
	txIDs := make([]string, len(nb.Transactions))
	for i, tx := range nb.Transactions {
		txIDs[i] = tx.ID
	}

	return BlockHash(nb.Height, txIDs)
}

// =============================================================================

// Block represents an accepted block stored in the ledger.
type Block struct {
	ID     string
	Height int
	TxIDs  []string
}

// Output represents a transaction output tracked by the ledger. An output is
// created unspent and is marked spent exactly once by a later transaction's
// input. SpentBy and SpentByIndex identify that input when Spent is true.
type Output struct {
	TxID         string
	Index        int
	Address      string
	Value        float64
	Spent        bool
	SpentBy      string
	SpentByIndex int
}

// =============================================================================

// BlockHash computes a block's identity: the hex encoded SHA-256 of the
// decimal height concatenated with every transaction id in block order. No
// separators are written between the components. This layout is part of the
// wire contract and can't change without breaking existing block ids.
func BlockHash(height int, txIDs []string) string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(height))
	for _, txID := range txIDs {
		sb.WriteString(txID)
	}

	hash := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(hash[:])
}
