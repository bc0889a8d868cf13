// Package verifier implements the acceptance checks that turn a caller
// supplied transaction signature into a trusted VerifiedPayment. It is the
// bridge's security boundary: amounts and payers are only ever taken from
// fetched, confirmed on-chain state.
package verifier

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/maltlabs/malt-bridge/internal/domain"
	"github.com/maltlabs/malt-bridge/internal/ledger"
)

// fetchConfirmed runs the checks shared by both verifiers: the transaction
// exists, did not fail on chain, and has independently reached confirmed
// finality. A transaction object existing is not proof of irreversibility,
// so the status is fetched separately.
func fetchConfirmed(ctx context.Context, lc ledger.Client, ref domain.PaymentReference) (*ledger.TransactionView, error) {
	sig, err := solana.SignatureFromBase58(ref.String())
	if err != nil {
		return nil, domain.WrapError(domain.KindReferenceNotFound, "malformed payment reference", err)
	}

	view, err := lc.GetTransaction(ctx, sig)
	if err != nil {
		return nil, err
	}
	if view.Failed {
		return nil, domain.NewError(domain.KindOnChainFailure, "transaction failed on-chain")
	}

	status, err := lc.GetStatus(ctx, sig)
	if err != nil {
		return nil, err
	}
	if !status.AtLeastConfirmed() {
		return nil, domain.Errorf(domain.KindNotConfirmed, "transaction not confirmed (status=%s)", status)
	}
	return view, nil
}
