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

// Package nonce implements the durable-nonce bundle (§4.4): a persisted
// set of pre-funded Solana nonce accounts a device can consume while
// offline. Refreshing a used nonce is free; creating a new one costs an
// on-chain fee, so prepare always refreshes before it creates.
package nonce

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/pollinet/pollinet-core/common"
	"github.com/pollinet/pollinet-core/log"
)

// DurableNonce is one entry in the bundle.
type DurableNonce struct {
	NonceAccount common.Pubkey `json:"nonce_account"`
	AuthorityKey common.Pubkey `json:"authority_key"`
	Blockhash    common.Hash32 `json:"blockhash"`
	Used         bool          `json:"used"`
	LastRefresh  time.Time     `json:"last_refresh"`
}

// bundleFileVersion guards forward-incompatible persisted layouts.
const bundleFileVersion = 1

type bundleFile struct {
	Version int            `json:"version"`
	Nonces  []DurableNonce `json:"nonces"`
}

// RPCClient is the on-chain surface prepare() needs: fetching the current
// blockhash/value of a nonce account, and creating a brand-new one.
// A real implementation calls out to a Solana RPC endpoint; tests use a
// fake.
type RPCClient interface {
	FetchNonceValue(account common.Pubkey) (common.Hash32, error)
	CreateNonceAccount(authority common.Pubkey, lamports *uint256.Int) (common.Pubkey, common.Hash32, error)
}

// Store persists a bundleFile atomically; implemented by persistence.BundleStore.
type Store interface {
	Load() ([]byte, error)
	Save(data []byte) error
}

// Bundle is the in-memory, persisted durable-nonce bundle.
type Bundle struct {
	mu     sync.Mutex
	nonces []DurableNonce
	store  Store
	rpc    RPCClient
	log    *log.Logger
}

// Load reads a previously persisted bundle, or returns an empty Bundle if
// none exists yet.
func Load(store Store, rpc RPCClient) (*Bundle, error) {
	b := &Bundle{store: store, rpc: rpc, log: log.New("nonce")}
	raw, err := store.Load()
	if err != nil {
		return b, nil // no bundle yet; Prepare will create one
	}
	var bf bundleFile
	if jsonErr := json.Unmarshal(raw, &bf); jsonErr != nil {
		return nil, common.ErrBundleCorrupt
	}
	if bf.Version != bundleFileVersion {
		return nil, common.ErrBundleVersionUnsupported
	}
	b.nonces = bf.Nonces
	return b, nil
}

func (b *Bundle) persistLocked() error {
	bf := bundleFile{Version: bundleFileVersion, Nonces: b.nonces}
	data, err := json.Marshal(bf)
	if err != nil {
		return err
	}
	return b.store.Save(data)
}

// Prepare ensures at least count unused nonces are available: it refreshes
// every used==true entry first (free), then creates new entries only if
// still short of count (costs an on-chain fee). This ordering is a
// required invariant, not an optimization.
func (b *Bundle) Prepare(count int, authority common.Pubkey, lamportsPerCreate *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.nonces {
		if !b.nonces[i].Used {
			continue
		}
		bh, err := b.rpc.FetchNonceValue(b.nonces[i].NonceAccount)
		if err != nil {
			b.log.Warn("Failed to refresh nonce", "account", b.nonces[i].NonceAccount, "err", err)
			continue
		}
		b.nonces[i].Used = false
		b.nonces[i].Blockhash = bh
		b.nonces[i].LastRefresh = time.Now()
	}

	unused := 0
	for _, n := range b.nonces {
		if !n.Used {
			unused++
		}
	}
	for unused < count {
		account, bh, err := b.rpc.CreateNonceAccount(authority, lamportsPerCreate)
		if err != nil {
			return err
		}
		b.nonces = append(b.nonces, DurableNonce{
			NonceAccount: account,
			AuthorityKey: authority,
			Blockhash:    bh,
			Used:         false,
			LastRefresh:  time.Now(),
		})
		unused++
	}
	return b.persistLocked()
}

// TakeUnused atomically locates the first used==false entry, marks it
// used, persists the change, and returns a copy. Persisting happens
// before the caller observes the nonce, so a crash immediately after
// TakeUnused never leaves a nonce consumed-but-unpersisted.
func (b *Bundle) TakeUnused() (DurableNonce, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.nonces {
		if !b.nonces[i].Used {
			b.nonces[i].Used = true
			if err := b.persistLocked(); err != nil {
				// Roll back the in-memory flip; the nonce was never
				// observably consumed.
				b.nonces[i].Used = false
				return DurableNonce{}, err
			}
			return b.nonces[i], nil
		}
	}
	return DurableNonce{}, common.ErrNoAvailableNonce
}

// CacheAccounts adds externally-provisioned nonce accounts (created and
// funded by the host out of band) to the bundle as unused entries,
// fetching each one's current blockhash before persisting. Unlike
// Prepare, this never pays the on-chain fee to create a new account —
// it only onboards accounts the caller already owns, per the
// cache_nonce_accounts operation of spec §6.
func (b *Bundle) CacheAccounts(accounts []common.Pubkey, authority common.Pubkey) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, account := range accounts {
		already := false
		for _, n := range b.nonces {
			if n.NonceAccount == account {
				already = true
				break
			}
		}
		if already {
			continue
		}
		bh, err := b.rpc.FetchNonceValue(account)
		if err != nil {
			b.log.Warn("Failed to cache nonce account", "account", account, "err", err)
			continue
		}
		b.nonces = append(b.nonces, DurableNonce{
			NonceAccount: account,
			AuthorityKey: authority,
			Blockhash:    bh,
			Used:         false,
			LastRefresh:  time.Now(),
		})
	}
	return b.persistLocked()
}

// MarkRefunded releases a consumed nonce back to the unused pool, for the
// case where a signed-but-never-submitted transaction is abandoned.
func (b *Bundle) MarkRefunded(account common.Pubkey) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.nonces {
		if b.nonces[i].NonceAccount == account {
			b.nonces[i].Used = false
			return b.persistLocked()
		}
	}
	return common.ErrNoAvailableNonce
}

// Snapshot returns a copy of the bundle's current entries, for
// introspection/tests.
func (b *Bundle) Snapshot() []DurableNonce {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]DurableNonce, len(b.nonces))
	copy(out, b.nonces)
	return out
}
