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
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollinet/pollinet-core/common"
)

func genPubkey(t *testing.T) (common.Pubkey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	var p common.Pubkey
	copy(p[:], pub)
	return p, priv
}

func TestBuildTransferRequiredSignersAndSigning(t *testing.T) {
	sender, senderPriv := genPubkey(t)
	recipient, _ := genPubkey(t)
	nonceAccount, _ := genPubkey(t)
	nonceAuthority := sender // sender authorizes its own nonce in this test

	var blockhash common.Hash32
	blockhash[0] = 0x42

	tx := BuildTransfer(sender, recipient, sender, nonceAccount, nonceAuthority, 1_000_000, blockhash)

	required := RequiredSigners(tx)
	require.Len(t, required, 1)
	assert.Equal(t, sender, required[0])

	require.NoError(t, Sign(tx, senderPriv))
	assert.Empty(t, RequiredSigners(tx))

	serialized, err := VerifyAndSerialize(tx)
	require.NoError(t, err)
	assert.NotEmpty(t, serialized)
}

func TestVerifyAndSerializeFailsOnMissingSignature(t *testing.T) {
	sender, _ := genPubkey(t)
	recipient, _ := genPubkey(t)
	nonceAccount, _ := genPubkey(t)
	var blockhash common.Hash32

	tx := BuildTransfer(sender, recipient, sender, nonceAccount, sender, 1, blockhash)
	_, err := VerifyAndSerialize(tx)
	assert.ErrorIs(t, err, common.ErrSignatureMissing)
}

func TestVerifyAndSerializeFailsOnInvalidSignature(t *testing.T) {
	sender, _ := genPubkey(t)
	recipient, _ := genPubkey(t)
	nonceAccount, _ := genPubkey(t)
	var blockhash common.Hash32

	tx := BuildTransfer(sender, recipient, sender, nonceAccount, sender, 1, blockhash)
	var bogus common.Signature
	bogus[0] = 0x01
	require.NoError(t, ApplySignature(tx, sender, bogus))

	_, err := VerifyAndSerialize(tx)
	assert.ErrorIs(t, err, common.ErrSignatureInvalid)
}

func TestApplySignatureRejectsUnknownSigner(t *testing.T) {
	sender, _ := genPubkey(t)
	recipient, _ := genPubkey(t)
	nonceAccount, _ := genPubkey(t)
	var blockhash common.Hash32

	tx := BuildTransfer(sender, recipient, sender, nonceAccount, sender, 1, blockhash)
	stranger, _ := genPubkey(t)
	var sig common.Signature
	err := ApplySignature(tx, stranger, sig)
	assert.ErrorIs(t, err, common.ErrRequiredSignerMismatch)
}

func TestBuildSplTransferSignsAndSerializes(t *testing.T) {
	owner, ownerPriv := genPubkey(t)
	srcAccount, _ := genPubkey(t)
	dstAccount, _ := genPubkey(t)
	mint, _ := genPubkey(t)
	nonceAccount, _ := genPubkey(t)
	var blockhash common.Hash32

	tx := BuildSplTransfer(owner, srcAccount, dstAccount, mint, owner, nonceAccount, owner, 500, blockhash)
	require.NoError(t, Sign(tx, ownerPriv))
	_, err := VerifyAndSerialize(tx)
	require.NoError(t, err)
}

func TestBuildVoteSignsAndSerializes(t *testing.T) {
	voter, voterPriv := genPubkey(t)
	proposalID, _ := genPubkey(t)
	voteAccount, _ := genPubkey(t)
	nonceAccount, _ := genPubkey(t)
	var blockhash common.Hash32

	tx := BuildVote(voter, proposalID, voteAccount, voter, nonceAccount, voter, 1, blockhash)
	require.NoError(t, Sign(tx, voterPriv))
	_, err := VerifyAndSerialize(tx)
	require.NoError(t, err)
}

func TestMessageToSignIsStableAcrossCalls(t *testing.T) {
	sender, _ := genPubkey(t)
	recipient, _ := genPubkey(t)
	nonceAccount, _ := genPubkey(t)
	var blockhash common.Hash32

	tx := BuildTransfer(sender, recipient, sender, nonceAccount, sender, 1, blockhash)
	a := MessageToSign(tx)
	b := MessageToSign(tx)
	assert.Equal(t, a, b)
}
