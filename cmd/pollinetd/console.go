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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/peterh/liner"
	"gopkg.in/urfave/cli.v1"
)

var consoleCommand = cli.Command{
	Action:    consoleAction,
	Name:      "console",
	Usage:     "Start an interactive REPL against a running pollinetd",
	ArgsUsage: "",
	Flags:     []cli.Flag{rpcAddrFlag},
	Category:  "CONSOLE COMMANDS",
	Description: `The console command opens a REPL that issues raw HTTP calls
against pollinetd's rpcserver endpoints, e.g.:
  > tick
  > queue_sizes
  > push_inbound {"data":"<base64>"}
  > quit`,
}

const consoleHistoryFile = ".pollinetd_history"

func consoleAction(ctx *cli.Context) error {
	client := newRPCClient(ctx.String(rpcAddrFlag.Name))

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if f, err := os.Open(consoleHistoryFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(consoleHistoryFile); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Println("pollinetd console — type a route name (optionally followed by a JSON body), or 'quit'")
	for {
		input, err := line.Prompt("> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)
		if input == "quit" || input == "exit" {
			return nil
		}
		if err := runConsoleCommand(client, input); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}

func runConsoleCommand(client *rpcClient, input string) error {
	route, body, _ := strings.Cut(input, " ")
	path := "/" + route

	var resp *http.Response
	var err error
	body = strings.TrimSpace(body)
	if body == "" {
		resp, err = client.http.Get(client.base + path)
	} else {
		resp, err = client.http.Post(client.base+path, "application/json", bytes.NewBufferString(body))
	}
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var pretty bytes.Buffer
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}
