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

package common

import "errors"

// Codec errors.
var (
	ErrMalformedHeader     = errors.New("malformed header")
	ErrLengthMismatch      = errors.New("length mismatch")
	ErrUnknownType         = errors.New("unknown type")
	ErrVersionUnsupported  = errors.New("version unsupported")
)

// Reassembler errors.
var (
	ErrChecksumFailed    = errors.New("checksum failed")
	ErrTooManyIncomplete = errors.New("too many incomplete reassembly groups")
	ErrReassemblyTimeout = errors.New("reassembly timeout")
)

// Builder / signer errors.
var (
	ErrTxTooLarge             = errors.New("transaction too large")
	ErrSignatureMissing       = errors.New("signature missing")
	ErrSignatureInvalid       = errors.New("signature invalid")
	ErrRequiredSignerMismatch = errors.New("required signer mismatch")
)

// Bundle errors.
var (
	ErrNoAvailableNonce       = errors.New("no available nonce")
	ErrBundleCorrupt          = errors.New("bundle corrupt")
	ErrBundleVersionUnsupported = errors.New("bundle version unsupported")
)

// Queue errors.
var (
	ErrQueueFull = errors.New("queue full")
)

// RPC submission errors.
var (
	ErrRpcTimeout          = errors.New("rpc timeout")
	ErrRpcRateLimited      = errors.New("rpc rate limited")
	ErrRpcTransient        = errors.New("rpc transient error")
	ErrRpcAlreadyProcessed = errors.New("rpc already processed")
)

// RpcPermanentError carries a reason string for a non-retryable submission failure.
type RpcPermanentError struct {
	Reason string
}

func (e *RpcPermanentError) Error() string { return "rpc permanent error: " + e.Reason }

// Persistence errors.
var (
	ErrPersistenceIO      = errors.New("persistence io error")
	ErrPersistenceCorrupt = errors.New("persistence corrupt")
)

// ErrDuplicateSubmission is informational, never returned as a failure upstream.
var ErrDuplicateSubmission = errors.New("duplicate submission")
