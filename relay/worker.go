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

package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/mem"
	"golang.org/x/sync/singleflight"

	"github.com/pollinet/pollinet-core/common"
	"github.com/pollinet/pollinet-core/log"
	"github.com/pollinet/pollinet-core/params"
	"github.com/pollinet/pollinet-core/queue"
	"github.com/pollinet/pollinet-core/reassembly"
	"github.com/pollinet/pollinet-core/router"
)

// RPCClient submits a fully-signed transaction to the Solana cluster.
// Implementations classify their own transport errors using the
// sentinels in package common (ErrRpcTransient, ErrRpcAlreadyProcessed,
// *common.RpcPermanentError) so the worker never has to guess at a
// specific RPC provider's error shape.
type RPCClient interface {
	SubmitTransaction(ctx context.Context, txBytes []byte) (common.Signature, error)
}

// Worker is the single-threaded cooperative relay loop of spec §4.8. Its
// own state (network availability, last cleanup time) is guarded by mu;
// the queues, router and reassembly buffer it drives already serialize
// their own mutations, matching this repository's one-mutex-per-owner
// discipline (see queue.Manager's doc comment).
type Worker struct {
	mu sync.Mutex

	queues *queue.Manager
	rtr    *router.Router
	reasm  *reassembly.Buffer
	rpc    RPCClient

	submitGroup singleflight.Group

	suppressDuplicateConfirmation bool
	connected                     bool
	lastCleanup                   time.Time

	dropped []DroppedSubmission

	log *log.Logger
}

// NewWorker constructs a relay worker. suppressDuplicateConfirmation
// mirrors the host-configurable override named in spec §9 Open Question
// 1 (see DESIGN.md): when true, an "already processed" RPC response
// records the hash but does not enqueue a confirmation.
func NewWorker(queues *queue.Manager, rtr *router.Router, reasm *reassembly.Buffer, rpc RPCClient, suppressDuplicateConfirmation bool) *Worker {
	return &Worker{
		queues:                        queues,
		rtr:                           rtr,
		reasm:                         reasm,
		rpc:                           rpc,
		suppressDuplicateConfirmation: suppressDuplicateConfirmation,
		log:                           log.New("relay.worker"),
	}
}

// SetNetworkAvailable records a host-reported connectivity change
// (EventNetworkAvailable). Received/Retry processing is skipped while
// disconnected.
func (w *Worker) SetNetworkAvailable(available bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = available
}

func (w *Worker) networkAvailable() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

// lowMemory reports whether available system memory has dropped low
// enough that the worker should shed load rather than keep submitting,
// per spec §2's "battery and memory constraints" guidance.
func (w *Worker) lowMemory() bool {
	v, err := mem.VirtualMemory()
	if err != nil {
		return false // no signal is not a reason to stop relaying
	}
	return v.UsedPercent > 95
}

// ProcessReceived drains up to SUBMIT_BATCH received transactions and
// submits each, applying the outcome rules of spec §4.8. It requires
// host-reported connectivity and returns the count actually processed.
func (w *Worker) ProcessReceived(ctx context.Context, now time.Time) int {
	if !w.networkAvailable() || w.lowMemory() {
		return 0
	}

	processed := 0
	for i := 0; i < params.SubmitBatch; i++ {
		item, ok := w.queues.Received.Pop()
		if !ok {
			break
		}
		w.submitFresh(ctx, item.TxID, item.TxBytes, now)
		processed++
	}
	return processed
}

// ProcessRetryReady pops every retry item due now and re-submits it
// under the same outcome rules.
func (w *Worker) ProcessRetryReady(ctx context.Context, now time.Time) int {
	if !w.networkAvailable() || w.lowMemory() {
		return 0
	}

	ready := w.queues.Retry.PopReady(now)
	for _, item := range ready {
		w.submitRetry(ctx, item, now)
	}
	return len(ready)
}

// CleanupTick runs the periodic maintenance of spec §4.8: reassembly
// sweep, dedup TTL eviction, rate-limit window reset, and retry-queue
// age-out. Persistence flush is the caller's responsibility (it owns
// the storage directory and snapshot cadence, see persistence/).
func (w *Worker) CleanupTick(now time.Time) {
	w.reasm.Sweep(now)
	w.queues.Cleanup(now)
	w.rtr.CleanupTick(now)
	w.queues.Retry.PruneExpired(now)

	w.mu.Lock()
	w.lastCleanup = now
	w.mu.Unlock()
}

// HandleTimeout implements the Timeout event: run cleanup only if more
// than CLEANUP_INTERVAL has elapsed since the last one, otherwise idle.
func (w *Worker) HandleTimeout(now time.Time) {
	w.mu.Lock()
	due := now.Sub(w.lastCleanup) > params.CleanupInterval
	w.mu.Unlock()
	if due {
		w.CleanupTick(now)
	}
}

// submitFresh handles a transaction arriving from the received queue
// for the first time: on a transient failure it is pushed onto the
// retry queue at attempt zero.
func (w *Worker) submitFresh(ctx context.Context, txID common.TxID, txBytes []byte, now time.Time) {
	if w.queues.Dedup.Contains(txID) {
		w.recordDropped(txID, "DuplicateSubmission")
		return
	}

	outcome, sig, err := w.submit(ctx, txID, txBytes)
	switch outcome {
	case OutcomeSuccess, OutcomeAlreadyProcessed:
		w.onSubmitted(txID, sig, now)
	case OutcomeTransient:
		w.queues.Retry.Push(txID, txBytes, now)
	case OutcomePermanent:
		w.onPermanentFailure(txID, err)
	}
}

// submitRetry handles a transaction popped from the retry queue: on a
// transient failure it is re-scheduled with incremented backoff via
// ReinsertAfterAttempt rather than re-queued at attempt zero.
func (w *Worker) submitRetry(ctx context.Context, item queue.RetryItem, now time.Time) {
	if w.queues.Dedup.Contains(item.TxID) {
		w.recordDropped(item.TxID, "DuplicateSubmission")
		return
	}

	outcome, sig, err := w.submit(ctx, item.TxID, item.TxBytes)
	switch outcome {
	case OutcomeSuccess, OutcomeAlreadyProcessed:
		w.onSubmitted(item.TxID, sig, now)
	case OutcomeTransient:
		w.queues.Retry.ReinsertAfterAttempt(item, now)
	case OutcomePermanent:
		w.onPermanentFailure(item.TxID, err)
	}
}

// submit performs the actual RPC call, collapsing concurrent duplicate
// submissions for the same tx_id via singleflight (a device relaying
// the same transaction fragment set twice in quick succession should
// not open two outstanding RPC calls), applying RPC_TIMEOUT, and
// classifying the result.
func (w *Worker) submit(ctx context.Context, txID common.TxID, txBytes []byte) (SubmitOutcome, common.Signature, error) {
	submitCtx, cancel := context.WithTimeout(ctx, params.RPCTimeout)
	defer cancel()

	key := string(txID[:])
	v, err, _ := w.submitGroup.Do(key, func() (interface{}, error) {
		return w.rpc.SubmitTransaction(submitCtx, txBytes)
	})

	var sig common.Signature
	if v != nil {
		sig = v.(common.Signature)
	}
	return classify(err), sig, err
}

func (w *Worker) onSubmitted(txID common.TxID, sig common.Signature, now time.Time) {
	if err := w.queues.Dedup.Insert(txID, now); err != nil {
		w.log.Warn("Failed to persist submitted hash", "tx_id", txID, "err", err)
	}
	w.queues.Retry.Remove(txID)
	if !w.suppressDuplicateConfirmation {
		w.queues.Confirm.Push(queue.ConfirmationItem{
			TxID:      txID,
			Status:    queue.ConfirmationSuccess,
			Signature: sig,
		})
	}
}

func (w *Worker) onPermanentFailure(txID common.TxID, err error) {
	w.queues.Retry.Remove(txID)
	w.queues.Confirm.Push(queue.ConfirmationItem{
		TxID:   txID,
		Status: queue.ConfirmationFailed,
		Code:   err.Error(),
	})
}

func (w *Worker) recordDropped(txID common.TxID, reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dropped = append(w.dropped, DroppedSubmission{TxID: txID, Reason: reason})
}

// DrainDropped returns and clears submissions abandoned as local
// duplicates since the last drain.
func (w *Worker) DrainDropped() []DroppedSubmission {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.dropped
	w.dropped = nil
	return out
}

// classify maps a submission error onto the outcome rules of spec §4.8.
// Transport implementations are expected to return the common sentinels
// where possible; the substring fallback covers RPC providers that only
// ever return a bare message (e.g. "Transaction already processed").
func classify(err error) SubmitOutcome {
	if err == nil {
		return OutcomeSuccess
	}

	if errors.Is(err, common.ErrRpcAlreadyProcessed) || looksAlreadyProcessed(err.Error()) {
		return OutcomeAlreadyProcessed
	}

	var permanent *common.RpcPermanentError
	if errors.As(err, &permanent) {
		return OutcomePermanent
	}

	if errors.Is(err, common.ErrRpcTimeout) || errors.Is(err, common.ErrRpcRateLimited) || errors.Is(err, common.ErrRpcTransient) {
		return OutcomeTransient
	}

	// Unrecognized errors default to transient: silently dropping a
	// transaction on an error we don't understand would violate the
	// store-and-forward guarantee the retry queue exists to provide.
	return OutcomeTransient
}

func looksAlreadyProcessed(msg string) bool {
	msg = strings.ToLower(msg)
	for _, needle := range []string{"already processed", "already confirmed", "duplicate"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
