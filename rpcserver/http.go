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

package rpcserver

import (
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/holiman/uint256"
	"github.com/julienschmidt/httprouter"

	"github.com/pollinet/pollinet-core/common"
	"github.com/pollinet/pollinet-core/core"
	"github.com/pollinet/pollinet-core/queue"
)

// ListenHTTP opens the HTTP+WS listener at addr and starts serving in
// the background. It also starts the WS event-broadcast loop.
func (s *Server) ListenHTTP(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.httpListener = ln
	s.log.Info("RPC HTTP endpoint opened", "addr", ln.Addr())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := http.Serve(ln, s.handler()); err != nil && err != http.ErrServerClosed {
			s.log.Warn("RPC HTTP server stopped", "err", err)
		}
	}()

	s.runEventLoop(time.Second)
	return nil
}

func writeEnvelope(w http.ResponseWriter, env core.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	if !env.OK {
		w.WriteHeader(http.StatusBadRequest)
	}
	json.NewEncoder(w).Encode(env)
}

func writeMalformed(w http.ResponseWriter, err error) {
	writeEnvelope(w, core.Fail(common.ErrMalformedHeader))
	_ = err // the client only needs the stable code; details stay server-side in logs
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func parsePubkey(s string) (common.Pubkey, error) { return common.ParsePubkey(s) }
func parseHash32(s string) (common.Hash32, error) { return common.ParseHash32(s) }

func (s *Server) handlePushInbound(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		Data string `json:"data"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMalformed(w, err)
		return
	}
	raw, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		writeMalformed(w, err)
		return
	}
	writeEnvelope(w, s.core.PushInbound(raw))
}

func (s *Server) handleNextOutbound(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	maxLen := 4096
	if v := r.URL.Query().Get("max_len"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeMalformed(w, err)
			return
		}
		maxLen = n
	}
	writeEnvelope(w, s.core.NextOutbound(maxLen))
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeEnvelope(w, s.core.Tick(time.Now()))
}

func (s *Server) handleSetNetworkAvailable(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		Available bool `json:"available"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMalformed(w, err)
		return
	}
	writeEnvelope(w, s.core.SetNetworkAvailable(req.Available))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeEnvelope(w, s.core.Metrics())
}

func (s *Server) handleClearTransaction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		TxID common.TxID `json:"tx_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMalformed(w, err)
		return
	}
	writeEnvelope(w, s.core.ClearTransaction(req.TxID))
}

func (s *Server) handleCreateUnsignedTransaction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		Sender         string `json:"sender"`
		Recipient      string `json:"recipient"`
		FeePayer       string `json:"fee_payer"`
		NonceAccount   string `json:"nonce_account"`
		NonceAuthority string `json:"nonce_authority"`
		AmountLamports uint64 `json:"amount_lamports"`
		Blockhash      string `json:"blockhash"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMalformed(w, err)
		return
	}
	sender, err1 := parsePubkey(req.Sender)
	recipient, err2 := parsePubkey(req.Recipient)
	feePayer, err3 := parsePubkey(req.FeePayer)
	nonceAccount, err4 := parsePubkey(req.NonceAccount)
	nonceAuthority, err5 := parsePubkey(req.NonceAuthority)
	blockhash, err6 := parseHash32(req.Blockhash)
	if err := firstErr(err1, err2, err3, err4, err5, err6); err != nil {
		writeMalformed(w, err)
		return
	}
	writeEnvelope(w, s.core.CreateUnsignedTransaction(sender, recipient, feePayer, nonceAccount, nonceAuthority, req.AmountLamports, blockhash))
}

func (s *Server) handleCreateUnsignedSplTransaction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		SenderWallet          string `json:"sender_wallet"`
		SenderTokenAccount    string `json:"sender_token_account"`
		RecipientTokenAccount string `json:"recipient_token_account"`
		Mint                  string `json:"mint"`
		FeePayer              string `json:"fee_payer"`
		NonceAccount          string `json:"nonce_account"`
		NonceAuthority        string `json:"nonce_authority"`
		Amount                uint64 `json:"amount"`
		Blockhash             string `json:"blockhash"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMalformed(w, err)
		return
	}
	senderWallet, err1 := parsePubkey(req.SenderWallet)
	senderTokenAccount, err2 := parsePubkey(req.SenderTokenAccount)
	recipientTokenAccount, err3 := parsePubkey(req.RecipientTokenAccount)
	mint, err4 := parsePubkey(req.Mint)
	feePayer, err5 := parsePubkey(req.FeePayer)
	nonceAccount, err6 := parsePubkey(req.NonceAccount)
	nonceAuthority, err7 := parsePubkey(req.NonceAuthority)
	blockhash, err8 := parseHash32(req.Blockhash)
	if err := firstErr(err1, err2, err3, err4, err5, err6, err7, err8); err != nil {
		writeMalformed(w, err)
		return
	}
	writeEnvelope(w, s.core.CreateUnsignedSplTransaction(senderWallet, senderTokenAccount, recipientTokenAccount, mint, feePayer, nonceAccount, nonceAuthority, req.Amount, blockhash))
}

func (s *Server) handleCastUnsignedVote(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		Voter          string `json:"voter"`
		ProposalID     string `json:"proposal_id"`
		VoteAccount    string `json:"vote_account"`
		FeePayer       string `json:"fee_payer"`
		NonceAccount   string `json:"nonce_account"`
		NonceAuthority string `json:"nonce_authority"`
		Choice         uint8  `json:"choice"`
		Blockhash      string `json:"blockhash"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMalformed(w, err)
		return
	}
	voter, err1 := parsePubkey(req.Voter)
	proposalID, err2 := parsePubkey(req.ProposalID)
	voteAccount, err3 := parsePubkey(req.VoteAccount)
	feePayer, err4 := parsePubkey(req.FeePayer)
	nonceAccount, err5 := parsePubkey(req.NonceAccount)
	nonceAuthority, err6 := parsePubkey(req.NonceAuthority)
	blockhash, err7 := parseHash32(req.Blockhash)
	if err := firstErr(err1, err2, err3, err4, err5, err6, err7); err != nil {
		writeMalformed(w, err)
		return
	}
	writeEnvelope(w, s.core.CastUnsignedVote(voter, proposalID, voteAccount, feePayer, nonceAccount, nonceAuthority, req.Choice, blockhash))
}

func (s *Server) handleCreateUnsignedOfflineTransaction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		SenderPubkey       string `json:"sender_pubkey"`
		NonceAuthorityKey  string `json:"nonce_authority_pubkey"`
		Recipient          string `json:"recipient"`
		AmountLamports     uint64 `json:"amount_lamports"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMalformed(w, err)
		return
	}
	sender, err1 := parsePubkey(req.SenderPubkey)
	nonceAuthority, err2 := parsePubkey(req.NonceAuthorityKey)
	recipient, err3 := parsePubkey(req.Recipient)
	if err := firstErr(err1, err2, err3); err != nil {
		writeMalformed(w, err)
		return
	}
	writeEnvelope(w, s.core.CreateUnsignedOfflineTransaction(sender, nonceAuthority, recipient, req.AmountLamports))
}

func (s *Server) handleCreateUnsignedOfflineSplTransaction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		SenderWallet          string `json:"sender_wallet"`
		SenderTokenAccount    string `json:"sender_token_account"`
		RecipientTokenAccount string `json:"recipient_token_account"`
		Mint                  string `json:"mint"`
		NonceAuthorityKey     string `json:"nonce_authority_pubkey"`
		Amount                uint64 `json:"amount"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMalformed(w, err)
		return
	}
	senderWallet, err1 := parsePubkey(req.SenderWallet)
	senderTokenAccount, err2 := parsePubkey(req.SenderTokenAccount)
	recipientTokenAccount, err3 := parsePubkey(req.RecipientTokenAccount)
	mint, err4 := parsePubkey(req.Mint)
	nonceAuthority, err5 := parsePubkey(req.NonceAuthorityKey)
	if err := firstErr(err1, err2, err3, err4, err5); err != nil {
		writeMalformed(w, err)
		return
	}
	writeEnvelope(w, s.core.CreateUnsignedOfflineSplTransaction(senderWallet, senderTokenAccount, recipientTokenAccount, mint, nonceAuthority, req.Amount))
}

func (s *Server) handleMessageToSign(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		Tx string `json:"tx"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMalformed(w, err)
		return
	}
	writeEnvelope(w, s.core.MessageToSign(req.Tx))
}

func (s *Server) handleRequiredSigners(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		Tx string `json:"tx"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMalformed(w, err)
		return
	}
	writeEnvelope(w, s.core.RequiredSigners(req.Tx))
}

func (s *Server) handleApplySignature(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		Tx        string `json:"tx"`
		Signer    string `json:"signer"`
		Signature string `json:"signature"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMalformed(w, err)
		return
	}
	signer, err1 := parsePubkey(req.Signer)
	sig, err2 := common.ParseSignature(req.Signature)
	if err := firstErr(err1, err2); err != nil {
		writeMalformed(w, err)
		return
	}
	writeEnvelope(w, s.core.ApplySignature(req.Tx, signer, sig))
}

func (s *Server) handleVerifyAndSerialize(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		Tx string `json:"tx"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMalformed(w, err)
		return
	}
	writeEnvelope(w, s.core.VerifyAndSerialize(req.Tx))
}

func (s *Server) handlePrepareOfflineBundle(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		Count             int    `json:"count"`
		Authority         string `json:"authority"`
		LamportsPerCreate uint64 `json:"lamports_per_create"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMalformed(w, err)
		return
	}
	authority, err := parsePubkey(req.Authority)
	if err != nil {
		writeMalformed(w, err)
		return
	}
	writeEnvelope(w, s.core.PrepareOfflineBundle(req.Count, authority, uint256.NewInt(req.LamportsPerCreate)))
}

func (s *Server) handleCreateOfflineTransaction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		SenderPubkey      string `json:"sender_pubkey"`
		NonceAuthorityKey string `json:"nonce_authority_pubkey"`
		Recipient         string `json:"recipient"`
		AmountLamports    uint64 `json:"amount_lamports"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMalformed(w, err)
		return
	}
	sender, err1 := parsePubkey(req.SenderPubkey)
	nonceAuthority, err2 := parsePubkey(req.NonceAuthorityKey)
	recipient, err3 := parsePubkey(req.Recipient)
	if err := firstErr(err1, err2, err3); err != nil {
		writeMalformed(w, err)
		return
	}
	writeEnvelope(w, s.core.CreateOfflineTransaction(sender, nonceAuthority, recipient, req.AmountLamports))
}

func (s *Server) handleRefreshOfflineBundle(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeEnvelope(w, s.core.RefreshOfflineBundle())
}

func (s *Server) handleCacheNonceAccounts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		Accounts  []string `json:"accounts"`
		Authority string   `json:"authority"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMalformed(w, err)
		return
	}
	authority, err := parsePubkey(req.Authority)
	if err != nil {
		writeMalformed(w, err)
		return
	}
	accounts := make([]common.Pubkey, len(req.Accounts))
	for i, a := range req.Accounts {
		pk, err := parsePubkey(a)
		if err != nil {
			writeMalformed(w, err)
			return
		}
		accounts[i] = pk
	}
	writeEnvelope(w, s.core.CacheNonceAccounts(accounts, authority))
}

func (s *Server) handleQueueSignedTransaction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		TxBytes    string `json:"tx_bytes"`
		MaxPayload int    `json:"max_payload"`
		Priority   string `json:"priority"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMalformed(w, err)
		return
	}
	txBytes, err := base64.StdEncoding.DecodeString(req.TxBytes)
	if err != nil {
		writeMalformed(w, err)
		return
	}
	priority, err := parsePriority(req.Priority)
	if err != nil {
		writeMalformed(w, err)
		return
	}
	writeEnvelope(w, s.core.QueueSignedTransaction(txBytes, req.MaxPayload, priority))
}

func parsePriority(s string) (queue.Priority, error) {
	switch s {
	case "", "normal":
		return queue.PriorityNormal, nil
	case "low":
		return queue.PriorityLow, nil
	case "high":
		return queue.PriorityHigh, nil
	default:
		return 0, common.ErrMalformedHeader
	}
}

func (s *Server) handleNextReceivedTransaction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeEnvelope(w, s.core.NextReceivedTransaction())
}

func (s *Server) handleQueueSizes(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeEnvelope(w, s.core.QueueSizes())
}

func (s *Server) handleSaveQueues(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeEnvelope(w, s.core.SaveQueues())
}

func (s *Server) handleFragment(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		TxBytes    string `json:"tx_bytes"`
		MaxPayload int    `json:"max_payload"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMalformed(w, err)
		return
	}
	txBytes, err := base64.StdEncoding.DecodeString(req.TxBytes)
	if err != nil {
		writeMalformed(w, err)
		return
	}
	writeEnvelope(w, s.core.Fragment(txBytes, req.MaxPayload))
}

func (s *Server) handleReassemble(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		Fragment string `json:"fragment"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMalformed(w, err)
		return
	}
	raw, err := base64.StdEncoding.DecodeString(req.Fragment)
	if err != nil {
		writeMalformed(w, err)
		return
	}
	writeEnvelope(w, s.core.Reassemble(raw))
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
