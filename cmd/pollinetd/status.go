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
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/urfave/cli.v1"
)

var rpcAddrFlag = cli.StringFlag{
	Name:  "rpcaddr",
	Usage: "rpcserver HTTP address to query",
	Value: "127.0.0.1:8645",
}

var statusCommand = cli.Command{
	Action:    statusAction,
	Name:      "status",
	Usage:     "Report queue depths and counters from a running pollinetd",
	ArgsUsage: "",
	Flags:     []cli.Flag{rpcAddrFlag},
	Category:  "MISCELLANEOUS COMMANDS",
}

type rpcClient struct {
	base string
	http *http.Client
}

func newRPCClient(addr string) *rpcClient {
	return &rpcClient{base: "http://" + addr, http: &http.Client{Timeout: 5 * time.Second}}
}

func (c *rpcClient) get(path string, out interface{}) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

type envelope struct {
	OK      bool            `json:"ok"`
	Data    json.RawMessage `json:"data,omitempty"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
}

func statusAction(ctx *cli.Context) error {
	client := newRPCClient(ctx.String(rpcAddrFlag.Name))

	var sizes envelope
	if err := client.get("/queue_sizes", &sizes); err != nil {
		fatalf("could not reach pollinetd: %v", err)
	}
	if !sizes.OK {
		fatalf("queue_sizes failed: %s %s", sizes.Code, sizes.Message)
	}

	var queueCounts map[string]int
	if err := json.Unmarshal(sizes.Data, &queueCounts); err != nil {
		fatalf("malformed queue_sizes response: %v", err)
	}

	var metrics envelope
	if err := client.get("/metrics", &metrics); err != nil {
		fatalf("could not fetch metrics: %v", err)
	}
	var metricCounts map[string]interface{}
	if metrics.OK {
		json.Unmarshal(metrics.Data, &metricCounts)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"queue", "depth"})
	for _, name := range []string{"outbound", "received", "retry", "confirm", "dedup"} {
		table.Append([]string{name, strconv.Itoa(queueCounts[name])})
	}
	table.Render()

	if len(metricCounts) > 0 {
		mtable := tablewriter.NewWriter(os.Stdout)
		mtable.SetHeader([]string{"metric", "value"})
		for k, v := range metricCounts {
			mtable.Append([]string{k, fmt.Sprintf("%v", v)})
		}
		mtable.Render()
	}
	return nil
}
