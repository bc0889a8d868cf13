package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/maltlabs/malt-bridge/internal/domain"
)

// ConfirmationStatus mirrors the cluster's commitment ladder.
type ConfirmationStatus string

const (
	StatusUnknown   ConfirmationStatus = "unknown"
	StatusProcessed ConfirmationStatus = "processed"
	StatusConfirmed ConfirmationStatus = "confirmed"
	StatusFinalized ConfirmationStatus = "finalized"
)

// AtLeastConfirmed reports whether the status satisfies the bridge's
// finality requirement.
func (s ConfirmationStatus) AtLeastConfirmed() bool {
	return s == StatusConfirmed || s == StatusFinalized
}

// Checkpoint is a recent blockhash and the block height up to which it may
// be used for signing.
type Checkpoint struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
}

// Client is the bridge's gateway to the chain. Every method blocks with a
// timeout; none retries internally.
type Client interface {
	// GetTransaction fetches and parses a transaction. Absent transactions
	// fail with KindReferenceNotFound.
	GetTransaction(ctx context.Context, sig solana.Signature) (*TransactionView, error)
	// GetStatus fetches the signature's confirmation status independently of
	// the transaction object.
	GetStatus(ctx context.Context, sig solana.Signature) (ConfirmationStatus, error)
	// LatestCheckpoint returns a fresh blockhash for signing.
	LatestCheckpoint(ctx context.Context) (Checkpoint, error)
	// Submit broadcasts a signed transaction.
	Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	// AwaitConfirmation blocks until sig reaches confirmed finality, the
	// checkpoint's validity window closes, or ctx expires.
	AwaitConfirmation(ctx context.Context, sig solana.Signature, lastValidBlockHeight uint64) error
	// AccountExists reports whether the account is funded on chain.
	AccountExists(ctx context.Context, account solana.PublicKey) (bool, error)
}

// RPCClient implements Client over a JSON-RPC node.
type RPCClient struct {
	rpc         *rpc.Client
	callTimeout time.Duration
	confirmPoll time.Duration
	logger      *zap.Logger
}

// NewRPCClient dials the given RPC endpoint. callTimeout bounds each
// individual RPC call, not the confirmation wait as a whole.
func NewRPCClient(rpcURL string, callTimeout time.Duration, logger *zap.Logger) *RPCClient {
	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RPCClient{
		rpc:         rpc.New(rpcURL),
		callTimeout: callTimeout,
		confirmPoll: 500 * time.Millisecond,
		logger:      logger,
	}
}

var _ Client = (*RPCClient)(nil)

func (c *RPCClient) GetTransaction(ctx context.Context, sig solana.Signature) (*TransactionView, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	maxVersion := uint64(0)
	res, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, domain.NewError(domain.KindReferenceNotFound, "transaction not found")
		}
		return nil, fmt.Errorf("get transaction %s: %w", sig, err)
	}
	if res == nil || res.Transaction == nil {
		return nil, domain.NewError(domain.KindReferenceNotFound, "transaction not found")
	}

	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", sig, err)
	}
	return NewTransactionView(tx, res.Meta, res.Slot), nil
}

func (c *RPCClient) GetStatus(ctx context.Context, sig solana.Signature) (ConfirmationStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	res, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return StatusUnknown, fmt.Errorf("get signature status %s: %w", sig, err)
	}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return StatusUnknown, nil
	}
	switch res.Value[0].ConfirmationStatus {
	case rpc.ConfirmationStatusProcessed:
		return StatusProcessed, nil
	case rpc.ConfirmationStatusConfirmed:
		return StatusConfirmed, nil
	case rpc.ConfirmationStatusFinalized:
		return StatusFinalized, nil
	default:
		return StatusUnknown, nil
	}
}

func (c *RPCClient) LatestCheckpoint(ctx context.Context) (Checkpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	res, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	return Checkpoint{
		Blockhash:            res.Value.Blockhash,
		LastValidBlockHeight: res.Value.LastValidBlockHeight,
	}, nil
}

func (c *RPCClient) Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	return sig, nil
}

func (c *RPCClient) AwaitConfirmation(ctx context.Context, sig solana.Signature, lastValidBlockHeight uint64) error {
	ticker := time.NewTicker(c.confirmPoll)
	defer ticker.Stop()

	for {
		status, err := c.GetStatus(ctx, sig)
		if err != nil {
			c.logger.Debug("confirmation poll failed", zap.String("signature", sig.String()), zap.Error(err))
		} else if status.AtLeastConfirmed() {
			return nil
		}

		heightCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		height, err := c.rpc.GetBlockHeight(heightCtx, rpc.CommitmentConfirmed)
		cancel()
		if err == nil && height > lastValidBlockHeight {
			return domain.Errorf(domain.KindConfirmationTimeout,
				"blockhash expired at height %d before %s confirmed", height, sig)
		}

		select {
		case <-ctx.Done():
			return domain.WrapError(domain.KindConfirmationTimeout, "confirmation wait aborted", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *RPCClient) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	_, err := c.rpc.GetAccountInfo(ctx, account)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get account info %s: %w", account, err)
	}
	return true, nil
}
