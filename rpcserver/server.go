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

// Package rpcserver is the debug/control binding of the §6 boundary
// surface: the same HTTP+WS+IPC split the teacher's node package uses
// for geth's own endpoints (rpc/http.go, rpc/websocket.go,
// rpc/ipc_unix.go/ipc_windows.go), pointed at core.Core instead of an
// Ethereum backend. It is additive operator/test tooling, not a
// replacement for the host's real BLE integration — the host can
// equally well link core directly and skip this package.
package rpcserver

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/pollinet/pollinet-core/core"
	"github.com/pollinet/pollinet-core/log"
)

// Server binds core.Core's ABI to HTTP, WebSocket, and IPC transports.
// A single Server can run any subset of the three concurrently.
type Server struct {
	core *core.Core
	log  *log.Logger

	upgrader websocket.Upgrader
	wsMu     sync.Mutex
	wsConns  map[*websocket.Conn]struct{}

	httpListener net.Listener
	ipcListener  net.Listener

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New returns a Server bound to c. Call ListenHTTP/ListenIPC to open
// the transports the host wants; Close tears down whichever are open.
func New(c *core.Core) *Server {
	return &Server{
		core:    c,
		log:     log.New("rpcserver"),
		wsConns: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			// Debug/control surface only ever serves localhost
			// tooling; any origin is accepted the same way the
			// teacher's devp2p debug endpoints do.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		stop: make(chan struct{}),
	}
}

func (s *Server) handler() http.Handler {
	r := httprouter.New()

	r.POST("/push_inbound", s.handlePushInbound)
	r.GET("/next_outbound", s.handleNextOutbound)
	r.POST("/tick", s.handleTick)
	r.POST("/set_network_available", s.handleSetNetworkAvailable)
	r.GET("/metrics", s.handleMetrics)
	r.POST("/clear_transaction", s.handleClearTransaction)

	r.POST("/create_unsigned_transaction", s.handleCreateUnsignedTransaction)
	r.POST("/create_unsigned_spl_transaction", s.handleCreateUnsignedSplTransaction)
	r.POST("/cast_unsigned_vote", s.handleCastUnsignedVote)
	r.POST("/create_unsigned_offline_transaction", s.handleCreateUnsignedOfflineTransaction)
	r.POST("/create_unsigned_offline_spl_transaction", s.handleCreateUnsignedOfflineSplTransaction)

	r.POST("/message_to_sign", s.handleMessageToSign)
	r.POST("/required_signers", s.handleRequiredSigners)
	r.POST("/apply_signature", s.handleApplySignature)
	r.POST("/verify_and_serialize", s.handleVerifyAndSerialize)

	r.POST("/prepare_offline_bundle", s.handlePrepareOfflineBundle)
	r.POST("/create_offline_transaction", s.handleCreateOfflineTransaction)
	r.POST("/refresh_offline_bundle", s.handleRefreshOfflineBundle)
	r.POST("/cache_nonce_accounts", s.handleCacheNonceAccounts)

	r.POST("/queue_signed_transaction", s.handleQueueSignedTransaction)
	r.GET("/next_received_transaction", s.handleNextReceivedTransaction)
	r.GET("/queue_sizes", s.handleQueueSizes)
	r.POST("/save_queues", s.handleSaveQueues)

	r.POST("/fragment", s.handleFragment)
	r.POST("/reassemble", s.handleReassemble)

	r.GET("/ws", s.handleWS)

	// Local-tool CORS: the debug surface is meant for a developer's own
	// browser-based console hitting 127.0.0.1, never a production origin.
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})
	return c.Handler(r)
}

// Close stops the event-broadcast loop and any open listeners.
func (s *Server) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()

	var err error
	if s.httpListener != nil {
		if e := s.httpListener.Close(); e != nil {
			err = e
		}
	}
	if s.ipcListener != nil {
		if e := s.ipcListener.Close(); e != nil {
			err = e
		}
	}

	s.wsMu.Lock()
	for conn := range s.wsConns {
		conn.Close()
	}
	s.wsConns = make(map[*websocket.Conn]struct{})
	s.wsMu.Unlock()

	return err
}

// runEventLoop polls core for confirmations and a metrics snapshot once
// per interval and pushes both to every connected WS client, per
// SPEC_FULL.md §2's "pushes Confirmation/MetricsSnapshot events live".
func (s *Server) runEventLoop(interval time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				for _, conf := range s.core.DrainConfirmations() {
					s.broadcast(wsEvent{Type: "confirmation", Data: conf})
				}
				s.broadcast(wsEvent{Type: "metrics", Data: s.core.Metrics().Data})
			}
		}
	}()
}
