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
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// wsEvent is the push frame runEventLoop broadcasts to every connected
// client: a confirmation drained from the mesh, or a metrics snapshot.
type wsEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// handleWS upgrades the request to a WebSocket and registers the
// connection for broadcast until the client disconnects. The debug
// console only ever reads from this socket; any frame the client sends
// is discarded once read.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("WS upgrade failed", "err", err)
		return
	}

	s.wsMu.Lock()
	s.wsConns[conn] = struct{}{}
	s.wsMu.Unlock()

	defer func() {
		s.wsMu.Lock()
		delete(s.wsConns, conn)
		s.wsMu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// broadcast writes event to every connected WS client, dropping any
// connection that errors on write.
func (s *Server) broadcast(event wsEvent) {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	for conn := range s.wsConns {
		if err := conn.WriteJSON(event); err != nil {
			conn.Close()
			delete(s.wsConns, conn)
		}
	}
}
