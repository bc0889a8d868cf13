package ledger

import (
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTx(t *testing.T, payer solana.PublicKey, instrs ...solana.Instruction) *solana.Transaction {
	t.Helper()
	tx, err := solana.NewTransaction(instrs, solana.Hash{}, solana.TransactionPayer(payer))
	require.NoError(t, err)
	return tx
}

func TestClassifyNativeTransfer(t *testing.T) {
	from := solana.NewWallet().PublicKey()
	to := solana.NewWallet().PublicKey()

	tx := mustTx(t, from, system.NewTransferInstruction(2_500_000_000, from, to).Build())
	instrs := ClassifyInstructions(&tx.Message)

	require.Len(t, instrs, 1)
	require.Equal(t, KindNativeTransfer, instrs[0].Kind)
	assert.True(t, instrs[0].Native.Source.Equals(from))
	assert.True(t, instrs[0].Native.Destination.Equals(to))
	assert.Equal(t, uint64(2_500_000_000), instrs[0].Native.Lamports)
}

func TestClassifyTokenTransfer(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	source := solana.NewWallet().PublicKey()
	dest := solana.NewWallet().PublicKey()

	tx := mustTx(t, owner, token.NewTransferInstruction(1_000_000, source, dest, owner, nil).Build())
	instrs := ClassifyInstructions(&tx.Message)

	require.Len(t, instrs, 1)
	require.Equal(t, KindTokenTransfer, instrs[0].Kind)
	assert.True(t, instrs[0].Token.Destination.Equals(dest))
	assert.Equal(t, uint64(1_000_000), instrs[0].Token.RawAmount)
	assert.Nil(t, instrs[0].Token.Mint)
	assert.Nil(t, instrs[0].Token.Decimals)
}

func TestClassifyTokenTransferChecked(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	source := solana.NewWallet().PublicKey()
	dest := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	tx := mustTx(t, owner, token.NewTransferCheckedInstruction(500, 6, source, mint, dest, owner, nil).Build())
	instrs := ClassifyInstructions(&tx.Message)

	require.Len(t, instrs, 1)
	require.Equal(t, KindTokenTransfer, instrs[0].Kind)
	require.NotNil(t, instrs[0].Token.Mint)
	assert.True(t, instrs[0].Token.Mint.Equals(mint))
	assert.True(t, instrs[0].Token.Destination.Equals(dest))
	require.NotNil(t, instrs[0].Token.Decimals)
	assert.Equal(t, uint8(6), *instrs[0].Token.Decimals)
	assert.Equal(t, uint64(500), instrs[0].Token.RawAmount)
}

func TestClassifyOpaque(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	program := solana.NewWallet().PublicKey()

	unknown := solana.NewInstruction(program, solana.AccountMetaSlice{
		solana.Meta(payer).SIGNER().WRITE(),
	}, []byte{0xde, 0xad})
	tx := mustTx(t, payer, unknown)
	instrs := ClassifyInstructions(&tx.Message)

	require.Len(t, instrs, 1)
	assert.Equal(t, KindOpaque, instrs[0].Kind)
	assert.Nil(t, instrs[0].Native)
	assert.Nil(t, instrs[0].Token)
}

func TestClassifySurvivesWireEncoding(t *testing.T) {
	wallet := solana.NewWallet()
	from := wallet.PublicKey()
	to := solana.NewWallet().PublicKey()

	tx := mustTx(t, from, system.NewTransferInstruction(1_000_000_000, from, to).Build())
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(from) {
			return &wallet.PrivateKey
		}
		return nil
	})
	require.NoError(t, err)

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	decoded, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	require.NoError(t, err)

	instrs := ClassifyInstructions(&decoded.Message)
	require.Len(t, instrs, 1)
	require.Equal(t, KindNativeTransfer, instrs[0].Kind)
	assert.Equal(t, uint64(1_000_000_000), instrs[0].Native.Lamports)
	assert.True(t, instrs[0].Native.Destination.Equals(to))
}

func TestFirstSigner(t *testing.T) {
	from := solana.NewWallet().PublicKey()
	to := solana.NewWallet().PublicKey()
	tx := mustTx(t, from, system.NewTransferInstruction(1, from, to).Build())

	view := NewTransactionView(tx, nil, 42)
	signer, err := view.FirstSigner()
	require.NoError(t, err)
	assert.True(t, signer.Equals(from))

	empty := &TransactionView{}
	_, err = empty.FirstSigner()
	assert.Error(t, err)
}
