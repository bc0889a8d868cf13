// Package settlement executes and orchestrates the outbound leg of the
// bridge: moving reward tokens from the treasury to a verified payer.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/maltlabs/malt-bridge/internal/domain"
	"github.com/maltlabs/malt-bridge/internal/ledger"
)

// UncertainError reports that an outbound transfer was broadcast but its
// confirmation could not be observed in time. The signature must be persisted
// so reconciliation can resolve the final outcome; the transfer may still
// land.
type UncertainError struct {
	Signature solana.Signature
	Err       error
}

func (e *UncertainError) Error() string {
	return fmt.Sprintf("outbound %s outcome uncertain: %v", e.Signature, e.Err)
}

func (e *UncertainError) Unwrap() error { return e.Err }

// Executor builds, signs, submits and confirms outbound reward-token
// transfers from the treasury.
type Executor struct {
	ledger         ledger.Client
	treasury       *ledger.Treasury
	mint           solana.PublicKey
	decimals       uint8
	confirmTimeout time.Duration
	logger         *zap.Logger
}

func NewExecutor(lc ledger.Client, treasury *ledger.Treasury, mint solana.PublicKey, decimals uint8, confirmTimeout time.Duration, logger *zap.Logger) *Executor {
	if confirmTimeout <= 0 {
		confirmTimeout = 90 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		ledger:         lc,
		treasury:       treasury,
		mint:           mint,
		decimals:       decimals,
		confirmTimeout: confirmTimeout,
		logger:         logger,
	}
}

// Execute transfers output reward tokens to payer and blocks until the
// transfer is confirmed. On confirmation timeout it returns *UncertainError
// carrying the broadcast signature; the caller must not retry the transfer.
func (e *Executor) Execute(ctx context.Context, ref domain.PaymentReference, payer solana.PublicKey, output decimal.Decimal) (*domain.SettlementReceipt, error) {
	units, err := domain.ToBaseUnits(output, e.decimals)
	if err != nil {
		return nil, domain.WrapError(domain.KindInvalidAmount, "output amount not transferable", err)
	}

	sourceATA, _, err := solana.FindAssociatedTokenAddress(e.treasury.PublicKey(), e.mint)
	if err != nil {
		return nil, fmt.Errorf("derive treasury token account: %w", err)
	}
	destATA, _, err := solana.FindAssociatedTokenAddress(payer, e.mint)
	if err != nil {
		return nil, fmt.Errorf("derive payer token account: %w", err)
	}

	instructions := make([]solana.Instruction, 0, 3)
	srcExists, err := e.ledger.AccountExists(ctx, sourceATA)
	if err != nil {
		return nil, domain.WrapError(domain.KindSubmissionFailed, "check treasury token account", err)
	}
	if !srcExists {
		// startup provisioning may not have run; create the treasury's own
		// account in the same transaction
		instructions = append(instructions,
			associatedtokenaccount.NewCreateInstruction(e.treasury.PublicKey(), e.treasury.PublicKey(), e.mint).Build())
	}
	exists, err := e.ledger.AccountExists(ctx, destATA)
	if err != nil {
		return nil, domain.WrapError(domain.KindSubmissionFailed, "check payer token account", err)
	}
	if !exists {
		// fund the payer's token account in the same transaction, fee paid
		// by the treasury
		instructions = append(instructions,
			associatedtokenaccount.NewCreateInstruction(e.treasury.PublicKey(), payer, e.mint).Build())
	}
	instructions = append(instructions,
		token.NewTransferInstruction(units, sourceATA, destATA, e.treasury.PublicKey(), nil).Build())

	checkpoint, err := e.ledger.LatestCheckpoint(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.KindSubmissionFailed, "fetch blockhash", err)
	}

	tx, err := solana.NewTransaction(instructions, checkpoint.Blockhash,
		solana.TransactionPayer(e.treasury.PublicKey()))
	if err != nil {
		return nil, domain.WrapError(domain.KindSubmissionFailed, "build transaction", err)
	}
	if _, err := tx.Sign(e.treasury.Signer()); err != nil {
		return nil, domain.WrapError(domain.KindSubmissionFailed, "sign transaction", err)
	}

	sig, err := e.ledger.Submit(ctx, tx)
	if err != nil {
		return nil, domain.WrapError(domain.KindSubmissionFailed, "broadcast transaction", err)
	}
	e.logger.Info("outbound transfer submitted",
		zap.String("reference", ref.String()),
		zap.String("signature", sig.String()),
		zap.String("output", output.String()))

	confirmCtx, cancel := context.WithTimeout(ctx, e.confirmTimeout)
	defer cancel()
	if err := e.ledger.AwaitConfirmation(confirmCtx, sig, checkpoint.LastValidBlockHeight); err != nil {
		return nil, &UncertainError{
			Signature: sig,
			Err:       domain.WrapError(domain.KindConfirmationTimeout, "outbound transfer unconfirmed", err),
		}
	}

	return &domain.SettlementReceipt{
		Reference: ref,
		Payer:     payer,
		Output:    output,
		Outbound:  sig,
		SettledAt: time.Now().UTC(),
	}, nil
}

// EnsureTreasuryAccount provisions the treasury's own reward-token account if
// the mint was freshly configured. Best effort; settlement does not depend on
// it having run.
func (e *Executor) EnsureTreasuryAccount(ctx context.Context) error {
	ata, _, err := solana.FindAssociatedTokenAddress(e.treasury.PublicKey(), e.mint)
	if err != nil {
		return fmt.Errorf("derive treasury token account: %w", err)
	}
	exists, err := e.ledger.AccountExists(ctx, ata)
	if err != nil || exists {
		return err
	}

	checkpoint, err := e.ledger.LatestCheckpoint(ctx)
	if err != nil {
		return fmt.Errorf("fetch blockhash: %w", err)
	}
	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			associatedtokenaccount.NewCreateInstruction(e.treasury.PublicKey(), e.treasury.PublicKey(), e.mint).Build(),
		},
		checkpoint.Blockhash,
		solana.TransactionPayer(e.treasury.PublicKey()),
	)
	if err != nil {
		return fmt.Errorf("build transaction: %w", err)
	}
	if _, err := tx.Sign(e.treasury.Signer()); err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	sig, err := e.ledger.Submit(ctx, tx)
	if err != nil {
		return fmt.Errorf("broadcast transaction: %w", err)
	}
	e.logger.Info("treasury token account provisioning submitted", zap.String("signature", sig.String()))
	return nil
}
