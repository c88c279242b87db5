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

// Package relay implements the relay worker (§4.8): a single cooperative
// event loop that drains the received and retry queues, submits
// transactions over RPC, and runs periodic maintenance.
package relay

import "github.com/pollinet/pollinet-core/common"

// EventKind identifies what woke the relay worker.
type EventKind int

const (
	EventOutboundReady EventKind = iota
	EventReceivedReady
	EventRetryReady
	EventConfirmationReady
	EventCleanupTick
	EventNetworkAvailable
	EventTimeout
)

func (k EventKind) String() string {
	switch k {
	case EventOutboundReady:
		return "OutboundReady"
	case EventReceivedReady:
		return "ReceivedReady"
	case EventRetryReady:
		return "RetryReady"
	case EventConfirmationReady:
		return "ConfirmationReady"
	case EventCleanupTick:
		return "CleanupTick"
	case EventNetworkAvailable:
		return "NetworkAvailable"
	case EventTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// Event is one wakeup delivered to the worker's event loop.
type Event struct {
	Kind      EventKind
	Available bool // valid only for EventNetworkAvailable
}

// SubmitOutcome classifies an RPC submission attempt per spec §4.8.
type SubmitOutcome int

const (
	OutcomeSuccess SubmitOutcome = iota
	OutcomeAlreadyProcessed
	OutcomeTransient
	OutcomePermanent
)

// DroppedSubmission records a submission the worker abandoned as a local
// duplicate, for observability. Permanent RPC failures are not recorded
// here; they surface as FAILED confirmations.
type DroppedSubmission struct {
	TxID   common.TxID
	Reason string
}
