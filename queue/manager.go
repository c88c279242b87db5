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

package queue

import (
	"crypto/sha256"
	"path/filepath"
	"time"

	"github.com/pollinet/pollinet-core/common"
	"github.com/pollinet/pollinet-core/log"
	"github.com/pollinet/pollinet-core/wire"
)

// Manager is the queue manager (§4.6): it owns the four queues and the
// submission dedup set. Each queue already serializes its own mutation,
// so Manager itself adds no further locking — it is a thin façade that
// keeps the call sites in relay/ simple, matching spec §5's "behind a
// single mutex" framing at the level of one component per structure.
type Manager struct {
	Outbound *OutboundQueue
	Received *ReceivedQueue
	Retry    *RetryQueue
	Confirm  *ConfirmationQueue
	Dedup    *SubmittedHashSet

	log *log.Logger
}

// NewManager constructs a Manager with a SubmittedHashSet persisted
// under storageDir/dedup.db.
func NewManager(storageDir string) (*Manager, error) {
	dedup, err := OpenSubmittedHashSet(filepath.Join(storageDir, "dedup.db"))
	if err != nil {
		return nil, err
	}
	return &Manager{
		Outbound: NewOutboundQueue(),
		Received: NewReceivedQueue(),
		Retry:    NewRetryQueue(),
		Confirm:  NewConfirmationQueue(),
		Dedup:    dedup,
		log:      log.New("queue.manager"),
	}, nil
}

// QueueTransaction fragments txBytes at maxPayload and pushes the result
// onto the outbound queue at the given priority, per §4.3's
// queue_transaction(tx_bytes, max_payload).
func (m *Manager) QueueTransaction(txBytes []byte, maxPayload int, priority Priority) common.TxID {
	txID := common.ComputeTxID(txBytes)
	sum := sha256.Sum256(txBytes)
	frags := wire.Split(txBytes, sum, txID, maxPayload)
	m.Outbound.Push(OutboundItem{
		TxID:      txID,
		TxBytes:   txBytes,
		Fragments: frags,
		Priority:  priority,
	})
	return txID
}

// ClearTransaction removes tx_id from the retry queue and the dedup set.
// It does not touch the outbound, received or confirmation queues: an
// entry for tx_id already in one of those stays there until it drains.
func (m *Manager) ClearTransaction(txID common.TxID) {
	// Outbound/received/confirm don't expose targeted removal by design
	// (they are FIFO structures meant to drain naturally); retry and
	// dedup are the two structures clear_transaction can act on directly
	// without violating FIFO ordering for unrelated items.
	m.Retry.Remove(txID)
	m.Dedup.Remove(txID)
}

// Cleanup runs the dedup TTL eviction part of the periodic maintenance
// §4.8 groups under "Cleanup". Retry-queue age-out
// (RetryQueue.PruneExpired), the reassembly sweep and the rate-limit
// window reset are run separately by relay.Worker.CleanupTick.
func (m *Manager) Cleanup(now time.Time) {
	m.Dedup.EvictExpired(now)
}

// Close releases the dedup set's LevelDB handle.
func (m *Manager) Close() error {
	return m.Dedup.Close()
}
