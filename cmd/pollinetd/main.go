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

// Command pollinetd runs a standalone PolliNet core behind the
// rpcserver debug/control surface, the way the teacher's cmd/gprobe
// runs a node behind geth's RPC endpoints. It is operator tooling for
// running and inspecting a core outside of a host application; it is
// not part of the §6 boundary surface itself.
package main

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/urfave/cli.v1"

	"github.com/pollinet/pollinet-core/log"
)

const clientIdentifier = "pollinetd"

var app = cli.NewApp()

func init() {
	app.Name = clientIdentifier
	app.Usage = "a store-and-forward mesh relay core for Solana transactions"
	app.Action = runCommand
	app.Flags = append(nodeFlags, rpcFlags...)
	app.Commands = []cli.Command{
		statusCommand,
		consoleCommand,
		inspectFragmentCommand,
		dumpConfigCommand,
	}
	sort.Sort(cli.CommandsByName(app.Commands))
	sort.Sort(cli.FlagsByName(app.Flags))
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func fatalf(format string, args ...interface{}) {
	log.New("pollinetd").Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}
