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

package core

import (
	"errors"

	"github.com/pollinet/pollinet-core/common"
)

// Envelope is the tagged result every host-invocable operation returns,
// per spec §6: {ok, data?, code?, message?}. rpcserver marshals this
// directly as the HTTP/WS/IPC response body.
type Envelope struct {
	OK      bool        `json:"ok"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Ok wraps a successful result.
func Ok(data interface{}) Envelope {
	return Envelope{OK: true, Data: data}
}

// Fail wraps err as a failed Envelope, translating it to one of the
// stable string error codes named in spec §7 where a sentinel matches,
// and falling back to "Internal" with err's message otherwise.
func Fail(err error) Envelope {
	return Envelope{OK: false, Code: errorCode(err), Message: err.Error()}
}

// errorCode maps a sentinel error from common to its spec §7 string
// code. Every sentinel in common/errors.go has a case here; an
// unrecognized error (a bug, not a documented failure mode) maps to
// "Internal" rather than silently mislabeling it as something specific.
func errorCode(err error) string {
	switch {
	case errors.Is(err, common.ErrMalformedHeader):
		return "MalformedHeader"
	case errors.Is(err, common.ErrLengthMismatch):
		return "LengthMismatch"
	case errors.Is(err, common.ErrUnknownType):
		return "UnknownType"
	case errors.Is(err, common.ErrVersionUnsupported):
		return "VersionUnsupported"
	case errors.Is(err, common.ErrChecksumFailed):
		return "ChecksumFailed"
	case errors.Is(err, common.ErrTooManyIncomplete):
		return "TooManyIncomplete"
	case errors.Is(err, common.ErrReassemblyTimeout):
		return "ReassemblyTimeout"
	case errors.Is(err, common.ErrTxTooLarge):
		return "TxTooLarge"
	case errors.Is(err, common.ErrSignatureMissing):
		return "SignatureMissing"
	case errors.Is(err, common.ErrSignatureInvalid):
		return "SignatureInvalid"
	case errors.Is(err, common.ErrRequiredSignerMismatch):
		return "RequiredSignerMismatch"
	case errors.Is(err, common.ErrNoAvailableNonce):
		return "NoAvailableNonce"
	case errors.Is(err, common.ErrBundleCorrupt):
		return "BundleCorrupt"
	case errors.Is(err, common.ErrBundleVersionUnsupported):
		return "BundleVersionUnsupported"
	case errors.Is(err, common.ErrQueueFull):
		return "QueueFull"
	case errors.Is(err, common.ErrRpcTimeout):
		return "RpcTimeout"
	case errors.Is(err, common.ErrRpcRateLimited):
		return "RpcRateLimited"
	case errors.Is(err, common.ErrRpcTransient):
		return "RpcTransient"
	case errors.Is(err, common.ErrPersistenceIO):
		return "PersistenceIO"
	case errors.Is(err, common.ErrPersistenceCorrupt):
		return "PersistenceCorrupt"
	case errors.Is(err, common.ErrDuplicateSubmission):
		return "DuplicateSubmission"
	case errors.Is(err, common.ErrRpcAlreadyProcessed):
		return "RpcAlreadyProcessed"
	}
	var permanent *common.RpcPermanentError
	if errors.As(err, &permanent) {
		return "RpcPermanent:" + permanent.Reason
	}
	return "Internal"
}
