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

package core

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/pollinet/pollinet-core/common"
	"github.com/pollinet/pollinet-core/txbuilder"
)

// EncodeTransaction renders tx as the opaque "tx" handle host callers
// pass back into the signer operations (message_to_sign, apply_signature,
// verify_and_serialize). It is base64-of-JSON, not Solana's own wire
// format — the wire format only exists after VerifyAndSerialize, since
// an in-progress transaction still needs its signature slots and message
// to round-trip independently of how many signers have applied so far.
func EncodeTransaction(tx *txbuilder.Transaction) string {
	body, err := json.Marshal(tx)
	if err != nil {
		// Transaction holds only fixed-size arrays, slices of them, and
		// byte slices; Marshal cannot fail on this type.
		panic(fmt.Sprintf("core: unexpected tx marshal failure: %v", err))
	}
	return base64.StdEncoding.EncodeToString(body)
}

// DecodeTransaction parses a tx handle produced by EncodeTransaction.
func DecodeTransaction(handle string) (*txbuilder.Transaction, error) {
	body, err := base64.StdEncoding.DecodeString(handle)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed tx handle: %v", common.ErrMalformedHeader, err)
	}
	var tx txbuilder.Transaction
	if err := json.Unmarshal(body, &tx); err != nil {
		return nil, fmt.Errorf("%w: malformed tx handle: %v", common.ErrMalformedHeader, err)
	}
	return &tx, nil
}
