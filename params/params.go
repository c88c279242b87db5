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

// Package params collects the protocol constants and size/rate guards
// that bound the relay core's memory, bandwidth, and request behavior.
package params

import "time"

// Wire protocol version.
const (
	ProtocolVersion = 1
)

// Fragment/mesh packet shape limits.
const (
	MaxFragmentsPerTx  = 128
	MinPayload         = 20
	MaxMeshPayload     = 512
	InitialTTL         = 10
	MaxHops            = 10
	MeshHeaderSize     = 10 // type, version, ttl, hop_count, 6 reserved bytes
	MeshMsgIDSize      = 16
	MeshSenderIDSize   = 16
	FragmentTxIDSize   = 32
	FragmentChecksumSz = 32
)

// Transaction / builder guards.
const (
	MaxTxSize = 5120
)

// Reassembly guards.
const (
	MaxIncomplete      = 50
	ReassemblyTimeout  = 60 * time.Second
	FragmentByteBudget = 4 * 1024 * 1024 // fastcache byte budget for in-progress fragments
)

// Transport guards.
const (
	MaxOutboundFragments = 100
)

// Queue depths.
const (
	MaxOutboundTx = 1000
	MaxReceived   = 500
	MaxRetry      = 500
	MaxConfirm    = 500
)

// Retry / backoff schedule.
const (
	RetryBase        = 5 * time.Second
	RetryCapExponent = 6
	RetryMaxAge      = 1 * time.Hour
	RetryMaxAttempts = 10
)

// Dedup / seen-message caches.
const (
	SubmissionDedupTTL = 10 * time.Minute
	SeenCacheCapacity  = 1000
	SeenCacheTTL       = 10 * time.Minute
)

// Rate limiting.
const (
	MaxPeerRate = 20 // messages per second per sender_id
)

// Relay worker timing.
const (
	SubmitBatch      = 5
	RPCTimeout       = 30 * time.Second
	CleanupInterval  = 5 * time.Minute
	IdleTimeout      = 30 * time.Second
	ShutdownGrace    = 5 * time.Second
	AutoSaveInterval = 30 * time.Second
)
