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
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/urfave/cli.v1"

	"github.com/pollinet/pollinet-core/config"
)

var (
	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	dataDirFlag = cli.StringFlag{
		Name:  "datadir",
		Usage: "Storage directory for queue/bundle persistence",
	}
	selfIDFlag = cli.StringFlag{
		Name:  "selfid",
		Usage: "This device's 16-byte mesh identity, hex-encoded",
	}
	rpcURLFlag = cli.StringFlag{
		Name:  "rpcurl",
		Usage: "Solana JSON-RPC endpoint used to submit and confirm transactions",
	}
	logLevelFlag = cli.StringFlag{
		Name:  "loglevel",
		Usage: "Log verbosity: trace, debug, info, warn, error, crit",
	}
	httpAddrFlag = cli.StringFlag{
		Name:  "http.addr",
		Usage: "rpcserver HTTP+WS listen address (empty disables)",
	}
	ipcPathFlag = cli.StringFlag{
		Name:  "ipc.path",
		Usage: "rpcserver IPC endpoint path (empty disables)",
	}

	nodeFlags = []cli.Flag{
		configFileFlag,
		dataDirFlag,
		selfIDFlag,
		rpcURLFlag,
		logLevelFlag,
	}
	rpcFlags = []cli.Flag{
		httpAddrFlag,
		ipcPathFlag,
	}

	dumpConfigCommand = cli.Command{
		Action:      dumpConfig,
		Name:        "dumpconfig",
		Usage:       "Show configuration values",
		ArgsUsage:   "",
		Flags:       append(nodeFlags, rpcFlags...),
		Category:    "MISCELLANEOUS COMMANDS",
		Description: "The dumpconfig command shows configuration values after flags and config file are applied.",
	}
)

// flagIsSet reports whether name was set either on ctx's own flag set
// (a subcommand like dumpconfig) or on the app-level flag set (the
// default run action), since cli.v1 does not unify the two.
func flagIsSet(ctx *cli.Context, name string) bool {
	return ctx.IsSet(name) || ctx.GlobalIsSet(name)
}

func flagString(ctx *cli.Context, name string) string {
	if ctx.IsSet(name) {
		return ctx.String(name)
	}
	return ctx.GlobalString(name)
}

// makeConfig loads config.Defaults, overlays a config file if given, then
// overlays any flags explicitly set on ctx, mirroring the teacher's
// makeConfigNode layering order.
func makeConfig(ctx *cli.Context) config.Config {
	cfg := config.Defaults
	if file := flagString(ctx, configFileFlag.Name); file != "" {
		loaded, err := config.LoadTOML(file)
		if err != nil {
			fatalf("failed to load config file: %v", err)
		}
		cfg = loaded
	}

	if flagIsSet(ctx, dataDirFlag.Name) {
		cfg.StorageDirectory = flagString(ctx, dataDirFlag.Name)
	}
	if flagIsSet(ctx, selfIDFlag.Name) {
		raw, err := hex.DecodeString(flagString(ctx, selfIDFlag.Name))
		if err != nil || len(raw) != 16 {
			fatalf("selfid must be 16 bytes hex-encoded")
		}
		copy(cfg.SelfID[:], raw)
	}
	if flagIsSet(ctx, rpcURLFlag.Name) {
		cfg.RPCURL = flagString(ctx, rpcURLFlag.Name)
	}
	if flagIsSet(ctx, logLevelFlag.Name) {
		cfg.LogLevel = flagString(ctx, logLevelFlag.Name)
	}
	if flagIsSet(ctx, httpAddrFlag.Name) {
		cfg.HTTPListenAddr = flagString(ctx, httpAddrFlag.Name)
	}
	if flagIsSet(ctx, ipcPathFlag.Name) {
		cfg.IPCPath = flagString(ctx, ipcPathFlag.Name)
	}
	return cfg
}

// dumpConfig is the dumpconfig command.
func dumpConfig(ctx *cli.Context) error {
	cfg := makeConfig(ctx)
	out, err := config.DumpTOML(cfg)
	if err != nil {
		return err
	}

	dump := os.Stdout
	if ctx.NArg() > 0 {
		dump, err = os.OpenFile(ctx.Args().Get(0), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		defer dump.Close()
	}
	fmt.Fprintln(dump, "# pollinetd configuration dump")
	dump.Write(out)
	return nil
}
