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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollinet/pollinet-core/common"
	"github.com/pollinet/pollinet-core/queue"
	"github.com/pollinet/pollinet-core/reassembly"
	"github.com/pollinet/pollinet-core/router"
)

type fakeRPC struct {
	mu    sync.Mutex
	calls int
	fn    func(txID []byte) (common.Signature, error)
}

func (f *fakeRPC) SubmitTransaction(ctx context.Context, txBytes []byte) (common.Signature, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(txBytes)
}

func (f *fakeRPC) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestWorker(t *testing.T, rpc RPCClient, suppress bool) (*Worker, *queue.Manager) {
	t.Helper()
	m, err := queue.NewManager(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	reasm := reassembly.New()
	var selfID [16]byte
	var selfAddr common.Pubkey
	rtr := router.New(selfID, selfAddr, reasm, m.Received)

	w := NewWorker(m, rtr, reasm, rpc, suppress)
	w.SetNetworkAvailable(true)
	return w, m
}

func TestProcessReceivedSuccessRecordsDedupAndConfirmation(t *testing.T) {
	var sig common.Signature
	sig[0] = 0x42
	rpc := &fakeRPC{fn: func([]byte) (common.Signature, error) { return sig, nil }}
	w, m := newTestWorker(t, rpc, false)

	var txID common.TxID
	txID[0] = 1
	m.Received.Push(queue.ReceivedItem{TxID: txID, TxBytes: []byte("tx")})

	n := w.ProcessReceived(context.Background(), time.Now())
	assert.Equal(t, 1, n)
	assert.True(t, m.Dedup.Contains(txID))
	assert.Equal(t, 0, m.Retry.Depth())

	conf, ok := m.Confirm.Pop()
	require.True(t, ok)
	assert.Equal(t, queue.ConfirmationSuccess, conf.Status)
	assert.Equal(t, sig, conf.Signature)
}

func TestProcessReceivedPermanentFailureDropsAndConfirmsFailure(t *testing.T) {
	rpc := &fakeRPC{fn: func([]byte) (common.Signature, error) {
		return common.Signature{}, &common.RpcPermanentError{Reason: "insufficient funds"}
	}}
	w, m := newTestWorker(t, rpc, false)

	var txID common.TxID
	txID[0] = 2
	m.Received.Push(queue.ReceivedItem{TxID: txID, TxBytes: []byte("tx")})

	w.ProcessReceived(context.Background(), time.Now())
	assert.False(t, m.Dedup.Contains(txID))
	assert.Equal(t, 0, m.Retry.Depth())

	conf, ok := m.Confirm.Pop()
	require.True(t, ok)
	assert.Equal(t, queue.ConfirmationFailed, conf.Status)
	assert.Contains(t, conf.Code, "insufficient funds")
}

func TestProcessReceivedTransientFailurePushesToRetry(t *testing.T) {
	rpc := &fakeRPC{fn: func([]byte) (common.Signature, error) {
		return common.Signature{}, common.ErrRpcTransient
	}}
	w, m := newTestWorker(t, rpc, false)

	var txID common.TxID
	txID[0] = 3
	m.Received.Push(queue.ReceivedItem{TxID: txID, TxBytes: []byte("tx")})

	w.ProcessReceived(context.Background(), time.Now())
	assert.Equal(t, 1, m.Retry.Depth())
	_, ok := m.Confirm.Pop()
	assert.False(t, ok)
}

func TestProcessReceivedAlreadyProcessedTreatedAsSuccess(t *testing.T) {
	rpc := &fakeRPC{fn: func([]byte) (common.Signature, error) {
		return common.Signature{}, errAlreadyProcessedText("Transaction already processed")
	}}
	w, m := newTestWorker(t, rpc, false)

	var txID common.TxID
	txID[0] = 4
	m.Received.Push(queue.ReceivedItem{TxID: txID, TxBytes: []byte("tx")})

	w.ProcessReceived(context.Background(), time.Now())
	assert.True(t, m.Dedup.Contains(txID))
	_, ok := m.Confirm.Pop()
	assert.True(t, ok)
}

func TestProcessReceivedSuppressesConfirmationWhenConfigured(t *testing.T) {
	rpc := &fakeRPC{fn: func([]byte) (common.Signature, error) {
		return common.Signature{}, common.ErrRpcAlreadyProcessed
	}}
	w, m := newTestWorker(t, rpc, true)

	var txID common.TxID
	txID[0] = 5
	m.Received.Push(queue.ReceivedItem{TxID: txID, TxBytes: []byte("tx")})

	w.ProcessReceived(context.Background(), time.Now())
	assert.True(t, m.Dedup.Contains(txID))
	_, ok := m.Confirm.Pop()
	assert.False(t, ok)
}

func TestProcessReceivedSkipsLocalDuplicateWithoutCallingRPC(t *testing.T) {
	rpc := &fakeRPC{fn: func([]byte) (common.Signature, error) { return common.Signature{}, nil }}
	w, m := newTestWorker(t, rpc, false)

	var txID common.TxID
	txID[0] = 6
	require.NoError(t, m.Dedup.Insert(txID, time.Now()))
	m.Received.Push(queue.ReceivedItem{TxID: txID, TxBytes: []byte("tx")})

	w.ProcessReceived(context.Background(), time.Now())
	assert.Equal(t, 0, rpc.callCount())

	dropped := w.DrainDropped()
	require.Len(t, dropped, 1)
	assert.Equal(t, "DuplicateSubmission", dropped[0].Reason)
}

func TestProcessReceivedRequiresNetworkConnectivity(t *testing.T) {
	rpc := &fakeRPC{fn: func([]byte) (common.Signature, error) { return common.Signature{}, nil }}
	w, m := newTestWorker(t, rpc, false)
	w.SetNetworkAvailable(false)

	var txID common.TxID
	txID[0] = 7
	m.Received.Push(queue.ReceivedItem{TxID: txID, TxBytes: []byte("tx")})

	n := w.ProcessReceived(context.Background(), time.Now())
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, rpc.callCount())
	assert.Equal(t, 1, m.Received.Depth())
}

func TestProcessRetryReadyReschedulesOnTransientFailure(t *testing.T) {
	rpc := &fakeRPC{fn: func([]byte) (common.Signature, error) {
		return common.Signature{}, common.ErrRpcTransient
	}}
	w, m := newTestWorker(t, rpc, false)

	var txID common.TxID
	txID[0] = 8
	now := time.Now()
	m.Retry.Push(txID, []byte("tx"), now.Add(-time.Minute))

	n := w.ProcessRetryReady(context.Background(), now)
	assert.Equal(t, 1, n)

	snap := m.Retry.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 1, snap[0].Attempts)
}

func TestCleanupTickAdvancesLastCleanupAndPrunesExpiredRetry(t *testing.T) {
	rpc := &fakeRPC{fn: func([]byte) (common.Signature, error) { return common.Signature{}, nil }}
	w, m := newTestWorker(t, rpc, false)

	var txID common.TxID
	txID[0] = 9
	old := time.Now().Add(-2 * time.Hour)
	m.Retry.Push(txID, []byte("tx"), old)

	w.CleanupTick(time.Now())
	assert.Equal(t, 0, m.Retry.Depth())
}

func TestHandleTimeoutSkipsCleanupBeforeInterval(t *testing.T) {
	rpc := &fakeRPC{fn: func([]byte) (common.Signature, error) { return common.Signature{}, nil }}
	w, _ := newTestWorker(t, rpc, false)

	now := time.Now()
	w.CleanupTick(now)
	w.HandleTimeout(now.Add(time.Second))

	w.mu.Lock()
	last := w.lastCleanup
	w.mu.Unlock()
	assert.Equal(t, now, last)
}

// errAlreadyProcessedText is a plain error whose text alone should be
// recognized as "already processed" by classify's substring fallback,
// simulating an RPC provider that doesn't use the common sentinel.
type errAlreadyProcessedText string

func (e errAlreadyProcessedText) Error() string { return string(e) }
