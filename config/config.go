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

// Package config defines the host-supplied boundary configuration (§6
// init(config)) plus the ambient settings the rest of the module needs,
// and loads/dumps it as TOML the way the teacher's cmd/gprobe/config.go
// does for node.Config.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"time"
	"unicode"

	"github.com/naoina/toml"

	"github.com/pollinet/pollinet-core/common"
	"github.com/pollinet/pollinet-core/metrics"
)

// Config is the full configuration surface: spec §6's init(config) five
// fields, plus the ambient/domain settings this module's expansion adds
// (self identity, relay timing overrides, InfluxDB reporting).
type Config struct {
	// Boundary config, verbatim from spec §6.
	Version          uint32
	RPCURL           string `toml:",omitempty"`
	EnableLogging    bool
	LogLevel         string
	StorageDirectory string

	// SelfID is this device's 16-byte mesh identity, embedded as
	// sender_id on every packet this core originates.
	SelfID [16]byte

	// SelfAddress is this device's Solana pubkey, compared against the
	// recipient embedded in inbound TX_ACK/TEXT payloads (see router's
	// "addressed to us" convention, DESIGN.md Open Question 5).
	SelfAddress common.Pubkey

	// SuppressDuplicateConfirmation overrides the default "already
	// processed" handling (DESIGN.md Open Question 1): when true, an
	// RPC response indicating the transaction already landed records the
	// dedup entry but does not enqueue a confirmation back onto the mesh.
	SuppressDuplicateConfirmation bool

	// RPCTimeout is decoded from the config file, but RPC submissions
	// always use params.RPCTimeout; a non-zero value here does not
	// change the submission timeout.
	RPCTimeout time.Duration `toml:",omitempty"`

	// Metrics configures the optional periodic InfluxDB push (enrichment
	// over spec §7's bare counters).
	Metrics metrics.InfluxDBConfig `toml:",omitempty"`

	// HTTPListenAddr is the rpcserver debug/control HTTP+WS listen
	// address (e.g. "127.0.0.1:8645"); empty disables the HTTP surface.
	HTTPListenAddr string `toml:",omitempty"`

	// IPCPath is the rpcserver local control-channel path: a unix
	// socket path on POSIX, a named-pipe path on Windows. Empty
	// disables the IPC surface.
	IPCPath string `toml:",omitempty"`
}

// Defaults mirrors the teacher's DefaultConfig package vars: a Config
// with every field populated by a sane zero-config default.
var Defaults = Config{
	Version:          1,
	EnableLogging:    true,
	LogLevel:         "info",
	StorageDirectory: "./pollinet-data",
	HTTPListenAddr:   "127.0.0.1:8645",
	IPCPath:          defaultIPCPath(),
}

// Validate checks the boundary fields init(config) must reject outright,
// before any subsystem is constructed from them.
func (c *Config) Validate() error {
	if c.StorageDirectory == "" {
		return errors.New("config: storage_directory is required")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}

// tomlSettings matches struct field names to TOML keys one-for-one, as
// the teacher's cmd/gprobe/config.go does, and fails decoding with an
// error naming any field that Config does not define.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		id := fmt.Sprintf("%s.%s", rt.String(), field)
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// LoadTOML reads and decodes a TOML config file, starting from Defaults.
func LoadTOML(path string) (Config, error) {
	cfg := Defaults
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	if err := tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg); err != nil {
		if _, ok := err.(*toml.LineError); ok {
			err = errors.New(path + ", " + err.Error())
		}
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// DumpTOML renders cfg as TOML, for the dumpconfig CLI command.
func DumpTOML(cfg Config) ([]byte, error) {
	return tomlSettings.Marshal(&cfg)
}
