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

	"github.com/pollinet/pollinet-core/common"
)

// MessageToSign returns the canonical bytes a signer must sign: the
// serialized message, with no signature placeholders.
func MessageToSign(tx *Transaction) []byte {
	return tx.Message.Serialize()
}

// RequiredSigners returns the pubkeys that still need to sign tx, in
// signer-index order (Message.AccountKeys[:NumRequiredSignatures]).
func RequiredSigners(tx *Transaction) []common.Pubkey {
	n := int(tx.Message.Header.NumRequiredSignatures)
	out := make([]common.Pubkey, 0, n)
	for i := 0; i < n; i++ {
		if i >= len(tx.Signatures) || tx.Signatures[i].IsZero() {
			out = append(out, tx.Message.AccountKeys[i])
		}
	}
	return out
}

// ApplySignature inserts sig at signerPubkey's index among the required
// signers. It fails with common.ErrRequiredSignerMismatch if
// signerPubkey is not among the transaction's required signers.
func ApplySignature(tx *Transaction, signerPubkey common.Pubkey, sig common.Signature) error {
	n := int(tx.Message.Header.NumRequiredSignatures)
	for i := 0; i < n; i++ {
		if tx.Message.AccountKeys[i] == signerPubkey {
			if len(tx.Signatures) != n {
				tx.Signatures = make([]common.Signature, n)
			}
			tx.Signatures[i] = sig
			return nil
		}
	}
	return common.ErrRequiredSignerMismatch
}

// VerifyAndSerialize checks that every required signature is present and
// verifies against the serialized message, then returns the wire-format
// transaction bytes: compact-array(signatures) || message.
func VerifyAndSerialize(tx *Transaction) ([]byte, error) {
	n := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) != n {
		return nil, common.ErrSignatureMissing
	}
	msgBytes := tx.Message.Serialize()
	for i := 0; i < n; i++ {
		if tx.Signatures[i].IsZero() {
			return nil, common.ErrSignatureMissing
		}
		pub := tx.Message.AccountKeys[i]
		if !ed25519.Verify(ed25519.PublicKey(pub[:]), msgBytes, tx.Signatures[i][:]) {
			return nil, common.ErrSignatureInvalid
		}
	}

	out := putCompactU16(nil, uint16(n))
	for i := 0; i < n; i++ {
		out = append(out, tx.Signatures[i][:]...)
	}
	out = append(out, msgBytes...)

	if len(out) > MaxTxSize {
		return nil, common.ErrTxTooLarge
	}
	return out, nil
}

// Sign is a convenience helper that signs the message with priv and
// applies the resulting signature for priv's public key in one step.
func Sign(tx *Transaction, priv ed25519.PrivateKey) error {
	pub := priv.Public().(ed25519.PublicKey)
	var signerPubkey common.Pubkey
	copy(signerPubkey[:], pub)

	sigBytes := ed25519.Sign(priv, MessageToSign(tx))
	var sig common.Signature
	copy(sig[:], sigBytes)
	return ApplySignature(tx, signerPubkey, sig)
}
