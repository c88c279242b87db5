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
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/pollinet/pollinet-core/common"
	"github.com/pollinet/pollinet-core/nonce"
)

type memStore struct{ data []byte }

func (s *memStore) Load() ([]byte, error) {
	if s.data == nil {
		return nil, common.ErrPersistenceIO
	}
	return s.data, nil
}

func (s *memStore) Save(data []byte) error {
	s.data = data
	return nil
}

type fakeRPC struct{ created int }

func (f *fakeRPC) FetchNonceValue(account common.Pubkey) (common.Hash32, error) {
	var h common.Hash32
	return h, nil
}

func (f *fakeRPC) CreateNonceAccount(authority common.Pubkey, lamports *uint256.Int) (common.Pubkey, common.Hash32, error) {
	f.created++
	var pk common.Pubkey
	pk[0] = byte(f.created)
	var h common.Hash32
	h[0] = 0x11
	return pk, h, nil
}

func TestBuildOfflineUnsignedConsumesNonceBeforeReturning(t *testing.T) {
	store := &memStore{}
	rpc := &fakeRPC{}
	bundle, err := nonce.Load(store, rpc)
	require.NoError(t, err)
	require.NoError(t, bundle.Prepare(1, common.Pubkey{0x09}, uint256.NewInt(1)))

	sender, _ := genPubkey(t)
	recipient, _ := genPubkey(t)

	tx, taken, err := BuildOfflineUnsigned(bundle, sender, sender, recipient, 42)
	require.NoError(t, err)
	require.NotNil(t, tx)

	// The nonce must already be marked used and persisted before this
	// function returns, so that a crash right after never leaves an
	// un-persisted consumption.
	snap := bundle.Snapshot()
	require.Len(t, snap, 1)
	require.True(t, snap[0].Used)
	require.Equal(t, taken.NonceAccount, snap[0].NonceAccount)

	reloaded, err := nonce.Load(store, rpc)
	require.NoError(t, err)
	require.True(t, reloaded.Snapshot()[0].Used)
}

func TestBuildOfflineSplUnsignedConsumesNonceBeforeReturning(t *testing.T) {
	store := &memStore{}
	rpc := &fakeRPC{}
	bundle, err := nonce.Load(store, rpc)
	require.NoError(t, err)
	require.NoError(t, bundle.Prepare(1, common.Pubkey{0x0a}, uint256.NewInt(1)))

	wallet, _ := genPubkey(t)
	senderTokenAccount, _ := genPubkey(t)
	recipientTokenAccount, _ := genPubkey(t)
	mint, _ := genPubkey(t)

	tx, taken, err := BuildOfflineSplUnsigned(bundle, wallet, senderTokenAccount, recipientTokenAccount, mint, wallet, 7)
	require.NoError(t, err)
	require.NotNil(t, tx)

	snap := bundle.Snapshot()
	require.Len(t, snap, 1)
	require.True(t, snap[0].Used)
	require.Equal(t, taken.NonceAccount, snap[0].NonceAccount)
}
