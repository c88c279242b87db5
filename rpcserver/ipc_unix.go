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

//go:build !windows

package rpcserver

import (
	"net"
	"net/http"
	"os"
)

// ListenIPC opens a unix domain socket at path and serves the same
// handler as ListenHTTP. Any stale socket file left behind by an
// unclean shutdown is removed first, mirroring the teacher's own
// IPC endpoint bring-up.
func (s *Server) ListenIPC(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	if err := os.Chmod(path, 0600); err != nil {
		ln.Close()
		return err
	}
	s.ipcListener = ln
	s.log.Info("RPC IPC endpoint opened", "path", path)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := http.Serve(ln, s.handler()); err != nil && err != http.ErrServerClosed {
			s.log.Warn("RPC IPC server stopped", "err", err)
		}
	}()
	return nil
}
