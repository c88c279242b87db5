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

// Package metrics aggregates the counters named by spec §7 across the
// components that own them, and optionally pushes them to InfluxDB.
package metrics

import (
	"sync"

	"github.com/fjl/memsize"

	"github.com/pollinet/pollinet-core/queue"
	"github.com/pollinet/pollinet-core/reassembly"
	"github.com/pollinet/pollinet-core/router"
)

// Components is the set of subsystems Registry reads counters from. No
// component is written to: Registry is purely a read-side aggregator.
type Components struct {
	Reassembly *reassembly.Buffer
	Router     *router.Router
	Queues     *queue.Manager
}

// Snapshot is one aggregate() call's worth of counters, matching the
// fields spec §7 names plus the queue depths needed to judge backlog.
type Snapshot struct {
	FragmentsBuffered    int
	TransactionsComplete int
	ReassemblyFailures   int
	PacketsRebroadcast   int
	PacketsSeenDuplicate int
	RateLimitRejections  int
	OutboundDepth        int
	ReceivedDepth        int
	RetryDepth           int
	ConfirmDepth         int
	DedupSetSize         int
	RetryExhaustedTotal  int
	DuplicateSubmissions int
}

// Registry aggregates component counters and tracks a small number of
// its own cumulative totals: retry exhaustions taken from the retry
// queue's one-shot DrainDropped (which would otherwise lose their
// history once consumed), and duplicate submissions reported through
// RecordDuplicateSubmission.
type Registry struct {
	mu sync.Mutex

	components Components

	retryExhaustedTotal  int
	duplicateSubmissions int
}

// NewRegistry constructs a Registry over the given components.
func NewRegistry(c Components) *Registry {
	return &Registry{components: c}
}

// Collect gathers a fresh Snapshot, draining the retry queue's dropped
// items recorded since the last call and folding the RetryExhausted
// ones into its running total.
func (r *Registry) Collect() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range r.components.Queues.Retry.DrainDropped() {
		if d.Reason == "RetryExhausted" {
			r.retryExhaustedTotal++
		}
	}

	reasmMetrics := r.components.Reassembly.Metrics()
	routerMetrics := r.components.Router.Metrics()

	return Snapshot{
		FragmentsBuffered:    reasmMetrics.FragmentsBuffered,
		TransactionsComplete: reasmMetrics.TransactionsComplete,
		ReassemblyFailures:   reasmMetrics.ReassemblyFailures,
		PacketsRebroadcast:   routerMetrics.PacketsRebroadcast,
		PacketsSeenDuplicate: routerMetrics.PacketsSeenDuplicate,
		RateLimitRejections:  routerMetrics.RateLimitRejections,
		OutboundDepth:        r.components.Queues.Outbound.Depth(),
		ReceivedDepth:        r.components.Queues.Received.Depth(),
		RetryDepth:           r.components.Queues.Retry.Depth(),
		ConfirmDepth:         r.components.Queues.Confirm.Depth(),
		DedupSetSize:         r.components.Queues.Dedup.Len(),
		RetryExhaustedTotal:  r.retryExhaustedTotal,
		DuplicateSubmissions: r.duplicateSubmissions,
	}
}

// RecordDuplicateSubmission increments the duplicate-submission counter.
// core.Metrics calls this for each DuplicateSubmission drop it drains
// from the relay worker, i.e. a Received/Retry item dropped because
// SubmittedHashSet already holds its tx_id (spec §4.8's
// DuplicateSubmission event).
func (r *Registry) RecordDuplicateSubmission() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.duplicateSubmissions++
}

// MemoryReport scans the live in-memory footprint of the queue manager
// and reassembly buffer, for a diagnostics endpoint (spec §6
// `dump_state`-adjacent tooling) rather than the hot metrics path —
// memsize.Scan walks the full object graph and is not cheap enough to
// call on every CleanupTick.
func MemoryReport(c Components) string {
	sizes := memsize.Scan(struct {
		Queues     *queue.Manager
		Reassembly *reassembly.Buffer
	}{c.Queues, c.Reassembly})
	return sizes.Report()
}
