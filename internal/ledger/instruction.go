package ledger

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
)

// InstructionKind is the closed set of instruction variants the verifiers
// scan. Anything the bridge cannot decode is Opaque and skipped.
type InstructionKind int

const (
	KindOpaque InstructionKind = iota
	KindNativeTransfer
	KindTokenTransfer
)

// NativeTransfer is a decoded system-program lamport transfer.
type NativeTransfer struct {
	Source      solana.PublicKey
	Destination solana.PublicKey
	Lamports    uint64
}

// TokenTransfer is a decoded token-program transfer. Mint and Decimals are
// only present for the checked variant; plain transfers carry neither.
type TokenTransfer struct {
	Source      solana.PublicKey
	Destination solana.PublicKey
	Mint        *solana.PublicKey
	RawAmount   uint64
	Decimals    *uint8
}

// Instruction is one classified instruction. Exactly one of Native/Token is
// set for the non-opaque kinds.
type Instruction struct {
	Kind   InstructionKind
	Native *NativeTransfer
	Token  *TokenTransfer
}

// ClassifyInstructions maps every compiled instruction of a message into the
// closed variant set.
func ClassifyInstructions(msg *solana.Message) []Instruction {
	out := make([]Instruction, 0, len(msg.Instructions))
	for _, ci := range msg.Instructions {
		out = append(out, classify(msg, ci))
	}
	return out
}

func classify(msg *solana.Message, ci solana.CompiledInstruction) Instruction {
	opaque := Instruction{Kind: KindOpaque}

	if int(ci.ProgramIDIndex) >= len(msg.AccountKeys) {
		return opaque
	}
	program := msg.AccountKeys[ci.ProgramIDIndex]

	switch {
	case program.Equals(solana.SystemProgramID):
		metas, err := accountMetas(msg, ci)
		if err != nil {
			return opaque
		}
		inst, err := system.DecodeInstruction(metas, ci.Data)
		if err != nil {
			return opaque
		}
		transfer, ok := inst.Impl.(*system.Transfer)
		if !ok || len(metas) < 2 || transfer.Lamports == nil {
			return opaque
		}
		return Instruction{
			Kind: KindNativeTransfer,
			Native: &NativeTransfer{
				Source:      metas[0].PublicKey,
				Destination: metas[1].PublicKey,
				Lamports:    *transfer.Lamports,
			},
		}

	case program.Equals(solana.TokenProgramID):
		metas, err := accountMetas(msg, ci)
		if err != nil {
			return opaque
		}
		inst, err := token.DecodeInstruction(metas, ci.Data)
		if err != nil {
			return opaque
		}
		switch impl := inst.Impl.(type) {
		case *token.Transfer:
			if len(metas) < 3 || impl.Amount == nil {
				return opaque
			}
			return Instruction{
				Kind: KindTokenTransfer,
				Token: &TokenTransfer{
					Source:      metas[0].PublicKey,
					Destination: metas[1].PublicKey,
					RawAmount:   *impl.Amount,
				},
			}
		case *token.TransferChecked:
			if len(metas) < 4 || impl.Amount == nil {
				return opaque
			}
			mint := metas[1].PublicKey
			return Instruction{
				Kind: KindTokenTransfer,
				Token: &TokenTransfer{
					Source:      metas[0].PublicKey,
					Destination: metas[2].PublicKey,
					Mint:        &mint,
					RawAmount:   *impl.Amount,
					Decimals:    impl.Decimals,
				},
			}
		}
	}
	return opaque
}

func accountMetas(msg *solana.Message, ci solana.CompiledInstruction) ([]*solana.AccountMeta, error) {
	metas := make([]*solana.AccountMeta, len(ci.Accounts))
	for i, idx := range ci.Accounts {
		if int(idx) >= len(msg.AccountKeys) {
			return nil, fmt.Errorf("account index %d out of range", idx)
		}
		pub := msg.AccountKeys[idx]
		writable, err := msg.IsWritable(pub)
		if err != nil {
			return nil, err
		}
		metas[i] = &solana.AccountMeta{
			PublicKey:  pub,
			IsSigner:   msg.IsSigner(pub),
			IsWritable: writable,
		}
	}
	return metas, nil
}
