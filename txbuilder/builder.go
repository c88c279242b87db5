// Copyright 2024 The PolliNet Authors
// This file is part of the PolliNet core.
//
// The PolliNet core is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The PolliNet core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the PolliNet core. If not, see <http://www.gnu.org/licenses/>.

package txbuilder

import (
	mapset "github.com/deckarep/golang-set"

	"github.com/pollinet/pollinet-core/common"
	"github.com/pollinet/pollinet-core/nonce"
	"github.com/pollinet/pollinet-core/params"
)

// Transaction is a Solana transaction: a compact-array of signatures
// (index-aligned with Message.AccountKeys[:NumRequiredSignatures])
// followed by the signed message.
type Transaction struct {
	Signatures []common.Signature
	Message    Message
}

// newMessageWithNonceAdvance seeds every builder's account list and
// instruction list with the mandatory AdvanceNonceAccount instruction:
// Solana requires this be the first instruction of any durable-nonce
// transaction.
func newMessageWithNonceAdvance(feePayer, nonceAccount, nonceAuthority common.Pubkey, blockhash common.Hash32) ([]common.Pubkey, []CompiledInstruction) {
	keys := []common.Pubkey{feePayer}
	var authIdx, nonceIdx, sysvarIdx, sysIdx uint8

	keys, nonceIdx = indexOfAccount(keys, nonceAccount)
	// RecentBlockhashes sysvar account; a well-known fixed address in real
	// Solana (SysvarRecentB1ockHashes11111111111111111), represented here
	// by a distinguishing non-zero pubkey so it is never confused with the
	// system program's all-zero id.
	sysvarRecentBlockhashes := common.Pubkey{0x06, 0xa7, 0xd5, 0x17, 0x19, 0x2c, 0x5c, 0x51, 0x21, 0x8c, 0xc9, 0x4c, 0x3d, 0x4a, 0xf1, 0x7f, 0x58, 0xda, 0xee, 0x08, 0x9b, 0xa1, 0xfd, 0x44, 0xe3, 0xdb, 0xd9, 0x8a, 0x00, 0x00, 0x00, 0x00}
	keys, sysvarIdx = indexOfAccount(keys, sysvarRecentBlockhashes)
	keys, authIdx = indexOfAccount(keys, nonceAuthority)
	keys, sysIdx = indexOfAccount(keys, SystemProgramID)

	advance := CompiledInstruction{
		ProgramIDIndex: sysIdx,
		Accounts:       []uint8{nonceIdx, sysvarIdx, authIdx},
		Data:           le32(systemInstructionAdvanceNonceAccount),
	}
	return keys, []CompiledInstruction{advance}
}

func finalizeMessage(keys []common.Pubkey, instructions []CompiledInstruction, blockhash common.Hash32, numSigners int) Message {
	return Message{
		Header: MessageHeader{
			NumRequiredSignatures: uint8(numSigners),
			NumReadonlySigned:     0,
			NumReadonlyUnsigned:   1, // the system program account
		},
		AccountKeys:     keys,
		RecentBlockhash: blockhash,
		Instructions:    instructions,
	}
}

// BuildTransfer produces an unsigned SOL transfer transaction using the
// given nonce's blockhash as its recent_blockhash.
func BuildTransfer(sender, recipient, feePayer, nonceAccount, nonceAuthority common.Pubkey, amountLamports uint64, blockhash common.Hash32) *Transaction {
	keys, instructions := newMessageWithNonceAdvance(feePayer, nonceAccount, nonceAuthority, blockhash)

	var senderIdx, recipientIdx, sysIdx uint8
	keys, senderIdx = indexOfAccount(keys, sender)
	keys, recipientIdx = indexOfAccount(keys, recipient)
	keys, sysIdx = indexOfAccount(keys, SystemProgramID)

	data := append(le32(systemInstructionTransfer), le64(amountLamports)...)
	instructions = append(instructions, CompiledInstruction{
		ProgramIDIndex: sysIdx,
		Accounts:       []uint8{senderIdx, recipientIdx},
		Data:           data,
	})

	numSigners := countDistinctSigners(sender, nonceAuthority, feePayer)
	return &Transaction{
		Signatures: make([]common.Signature, numSigners),
		Message:    finalizeMessage(keys, instructions, blockhash, numSigners),
	}
}

// BuildSplTransfer produces an unsigned SPL token transfer between two
// token accounts, owned respectively by senderWallet/recipientWallet.
func BuildSplTransfer(senderWallet, senderTokenAccount, recipientTokenAccount, mint, feePayer, nonceAccount, nonceAuthority common.Pubkey, amount uint64, blockhash common.Hash32) *Transaction {
	keys, instructions := newMessageWithNonceAdvance(feePayer, nonceAccount, nonceAuthority, blockhash)

	var srcIdx, dstIdx, ownerIdx, tokenProgIdx uint8
	keys, srcIdx = indexOfAccount(keys, senderTokenAccount)
	keys, dstIdx = indexOfAccount(keys, recipientTokenAccount)
	keys, ownerIdx = indexOfAccount(keys, senderWallet)
	keys, tokenProgIdx = indexOfAccount(keys, TokenProgramID)
	_ = mint // mint is implied by the token accounts in a Transfer (not TransferChecked) instruction

	data := append([]byte{tokenInstructionTransfer}, le64(amount)...)
	instructions = append(instructions, CompiledInstruction{
		ProgramIDIndex: tokenProgIdx,
		Accounts:       []uint8{srcIdx, dstIdx, ownerIdx},
		Data:           data,
	})

	numSigners := countDistinctSigners(senderWallet, nonceAuthority, feePayer)
	return &Transaction{
		Signatures: make([]common.Signature, numSigners),
		Message:    finalizeMessage(keys, instructions, blockhash, numSigners),
	}
}

// BuildVote produces an unsigned vote transaction casting choice on
// proposalID from voteAccount, authorized by voter.
func BuildVote(voter, proposalID, voteAccount, feePayer, nonceAccount, nonceAuthority common.Pubkey, choice uint8, blockhash common.Hash32) *Transaction {
	keys, instructions := newMessageWithNonceAdvance(feePayer, nonceAccount, nonceAuthority, blockhash)

	var voteAcctIdx, voterIdx, voteProgIdx uint8
	keys, voteAcctIdx = indexOfAccount(keys, voteAccount)
	keys, voterIdx = indexOfAccount(keys, voter)
	keys, voteProgIdx = indexOfAccount(keys, VoteProgramID)

	data := append(append([]byte{}, proposalID[:]...), choice)
	instructions = append(instructions, CompiledInstruction{
		ProgramIDIndex: voteProgIdx,
		Accounts:       []uint8{voteAcctIdx, voterIdx},
		Data:           data,
	})

	numSigners := countDistinctSigners(voter, nonceAuthority, feePayer)
	return &Transaction{
		Signatures: make([]common.Signature, numSigners),
		Message:    finalizeMessage(keys, instructions, blockhash, numSigners),
	}
}

// countDistinctSigners dedupes the builder's candidate signer list with
// a golang-set Set and returns how many distinct signers remain.
func countDistinctSigners(pubkeys ...common.Pubkey) int {
	seen := mapset.NewSet()
	for _, p := range pubkeys {
		seen.Add(p)
	}
	return seen.Cardinality()
}

// BuildOfflineUnsigned consumes one nonce from bundle (persisting the
// consumption before returning, per §4.4's crash-safety requirement) and
// produces an unsigned transfer transaction against it.
func BuildOfflineUnsigned(bundle *nonce.Bundle, senderPubkey, nonceAuthorityPubkey, recipient common.Pubkey, amountLamports uint64) (*Transaction, nonce.DurableNonce, error) {
	taken, err := bundle.TakeUnused()
	if err != nil {
		return nil, nonce.DurableNonce{}, err
	}
	tx := BuildTransfer(senderPubkey, recipient, senderPubkey, taken.NonceAccount, nonceAuthorityPubkey, amountLamports, taken.Blockhash)
	return tx, taken, nil
}

// BuildOfflineSplUnsigned consumes one nonce from bundle (same
// crash-safety requirement as BuildOfflineUnsigned) and produces an
// unsigned SPL token transfer against it, with senderWallet acting as
// its own fee payer.
func BuildOfflineSplUnsigned(bundle *nonce.Bundle, senderWallet, senderTokenAccount, recipientTokenAccount, mint, nonceAuthorityPubkey common.Pubkey, amount uint64) (*Transaction, nonce.DurableNonce, error) {
	taken, err := bundle.TakeUnused()
	if err != nil {
		return nil, nonce.DurableNonce{}, err
	}
	tx := BuildSplTransfer(senderWallet, senderTokenAccount, recipientTokenAccount, mint, senderWallet, taken.NonceAccount, nonceAuthorityPubkey, amount, taken.Blockhash)
	return tx, taken, nil
}

// MaxTxSize is re-exported for callers that only import txbuilder.
const MaxTxSize = params.MaxTxSize
