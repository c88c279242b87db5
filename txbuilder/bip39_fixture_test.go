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
	"github.com/tyler-smith/go-bip39"

	"github.com/pollinet/pollinet-core/common"
)

// fixedMnemonicSigner derives a deterministic ed25519 keypair from a
// well-known test mnemonic, the way a wallet would derive an account's
// signing key, so tests get a stable signer fixture instead of a fresh
// random key every run.
func fixedMnemonicSigner(t *testing.T, mnemonic string) (common.Pubkey, ed25519.PrivateKey) {
	t.Helper()
	require.True(t, bip39.IsMnemonicValid(mnemonic))
	seed := bip39.NewSeed(mnemonic, "")
	priv := ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])
	var pub common.Pubkey
	copy(pub[:], priv.Public().(ed25519.PublicKey))
	return pub, priv
}

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestBuildTransferSignsWithBip39DerivedKey(t *testing.T) {
	sender, senderPriv := fixedMnemonicSigner(t, testMnemonic)
	recipient, _ := genPubkey(t)
	nonceAccount, _ := genPubkey(t)

	var blockhash common.Hash32
	blockhash[0] = 0x7a

	tx := BuildTransfer(sender, recipient, sender, nonceAccount, sender, 1_000_000, blockhash)
	msg := MessageToSign(tx)

	sig := ed25519.Sign(senderPriv, msg)
	var signature common.Signature
	copy(signature[:], sig)
	require.NoError(t, ApplySignature(tx, sender, signature))

	raw, err := VerifyAndSerialize(tx)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
}
