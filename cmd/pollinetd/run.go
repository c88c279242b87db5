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

package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rjeczalik/notify"
	"gopkg.in/urfave/cli.v1"

	"github.com/pollinet/pollinet-core/core"
	"github.com/pollinet/pollinet-core/log"
	"github.com/pollinet/pollinet-core/rpcserver"
)

// runCommand is the default action: bring up a core, bind rpcserver's
// HTTP/WS and IPC endpoints per config, and block until interrupted.
func runCommand(ctx *cli.Context) error {
	cfg := makeConfig(ctx)
	logger := log.New("pollinetd")

	c, err := core.Init(cfg, nil)
	if err != nil {
		fatalf("failed to init core: %v", err)
	}
	defer c.Shutdown()

	srv := rpcserver.New(c)
	defer srv.Close()

	if cfg.HTTPListenAddr != "" {
		if err := srv.ListenHTTP(cfg.HTTPListenAddr); err != nil {
			fatalf("failed to open HTTP endpoint: %v", err)
		}
	}
	if cfg.IPCPath != "" {
		if err := srv.ListenIPC(resolveIPCPath(cfg.StorageDirectory, cfg.IPCPath)); err != nil {
			fatalf("failed to open IPC endpoint: %v", err)
		}
	}

	stopWatch := watchReloadMarker(cfg.StorageDirectory, c, logger)
	defer stopWatch()

	logger.Info("pollinetd ready", "http", cfg.HTTPListenAddr, "ipc", cfg.IPCPath, "datadir", cfg.StorageDirectory)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")
	return nil
}

// resolveIPCPath joins a relative IPC path against the storage
// directory, the way the teacher resolves a bare "gprobe.ipc" against
// its datadir; an already-rooted path (including a Windows named pipe)
// is left untouched.
func resolveIPCPath(dir, ipcPath string) string {
	if filepath.IsAbs(ipcPath) || len(ipcPath) >= 2 && ipcPath[:2] == `\\` {
		return ipcPath
	}
	return filepath.Join(dir, ipcPath)
}

// watchReloadMarker watches storage_directory/reload for a touch/write
// event and, on one, refreshes the cached offline bundle. This is a thin
// operator convenience: "touch $datadir/reload" nudges a running daemon
// without a restart.
func watchReloadMarker(dir string, c *core.Core, logger *log.Logger) func() {
	events := make(chan notify.EventInfo, 8)
	marker := filepath.Join(dir, "reload")
	if err := notify.Watch(marker, events, notify.Create, notify.Write); err != nil {
		logger.Warn("reload watch disabled", "err", err)
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-events:
				if env := c.RefreshOfflineBundle(); !env.OK {
					logger.Warn("reload-triggered bundle refresh failed", "code", env.Code)
				} else {
					logger.Info("offline bundle refreshed via reload marker")
				}
			case <-done:
				return
			}
		}
	}()
	return func() {
		notify.Stop(events)
		close(done)
	}
}
