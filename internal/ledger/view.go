package ledger

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// TokenBalance is a post-transaction token account snapshot, reduced to the
// fields the verifiers match on.
type TokenBalance struct {
	Owner    *solana.PublicKey
	Mint     solana.PublicKey
	Decimals uint8
}

// TransactionView is the bridge's RPC-independent view of a fetched
// transaction. Verifiers consume this, never raw RPC shapes.
type TransactionView struct {
	Slot              uint64
	Failed            bool
	AccountKeys       []solana.PublicKey
	Instructions      []Instruction
	PostTokenBalances []TokenBalance
}

// NewTransactionView parses a decoded transaction and its metadata into the
// domain view, classifying each instruction into the closed variant set.
func NewTransactionView(tx *solana.Transaction, meta *rpc.TransactionMeta, slot uint64) *TransactionView {
	view := &TransactionView{
		Slot:        slot,
		AccountKeys: tx.Message.AccountKeys,
	}
	if meta != nil {
		view.Failed = meta.Err != nil
		for _, b := range meta.PostTokenBalances {
			if b.UiTokenAmount == nil {
				continue
			}
			view.PostTokenBalances = append(view.PostTokenBalances, TokenBalance{
				Owner:    b.Owner,
				Mint:     b.Mint,
				Decimals: b.UiTokenAmount.Decimals,
			})
		}
	}
	view.Instructions = ClassifyInstructions(&tx.Message)
	return view
}

// FirstSigner returns the fee payer, by convention the first account key of
// the signed message. It cannot be spoofed through instruction payloads.
func (v *TransactionView) FirstSigner() (solana.PublicKey, error) {
	if len(v.AccountKeys) == 0 {
		return solana.PublicKey{}, fmt.Errorf("transaction has no account keys")
	}
	return v.AccountKeys[0], nil
}
