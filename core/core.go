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

// Package core wires every subsystem package into the single host-facing
// object: init(config) constructs a Core, and every other boundary
// operation named in spec §6 is a method on it returning an Envelope.
// The shape mirrors the teacher's probe/backend.go — one constructor that
// wires dependencies in a fixed order, Start/Stop for anything that owns
// a goroutine, everything else a synchronous call driven by the host.
package core

import (
	"context"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/pollinet/pollinet-core/common"
	"github.com/pollinet/pollinet-core/config"
	"github.com/pollinet/pollinet-core/log"
	"github.com/pollinet/pollinet-core/metrics"
	"github.com/pollinet/pollinet-core/nonce"
	"github.com/pollinet/pollinet-core/params"
	"github.com/pollinet/pollinet-core/persistence"
	"github.com/pollinet/pollinet-core/queue"
	"github.com/pollinet/pollinet-core/reassembly"
	"github.com/pollinet/pollinet-core/relay"
	"github.com/pollinet/pollinet-core/router"
	"github.com/pollinet/pollinet-core/transport"
	"github.com/pollinet/pollinet-core/txbuilder"
	"github.com/pollinet/pollinet-core/wire"
)

// Core is the root object returned by Init and threaded through every
// ABI call by rpcserver/. All exported methods are safe to call from a
// single host-driven call loop; they are not designed for concurrent use
// from multiple goroutines simultaneously (the host is expected to drive
// this the way it drives a single BLE radio: one request at a time).
type Core struct {
	cfg config.Config

	reasm     *reassembly.Buffer
	transport *transport.Transport
	rtr       *router.Router
	queues    *queue.Manager
	bundle    *nonce.Bundle
	worker    *relay.Worker
	rpc       *SolanaRPCClient
	registry  *metrics.Registry
	influx    *metrics.InfluxDBReporter

	queueStore  *persistence.QueueStore
	bundleStore *persistence.BundleStore
	writerLock  *persistence.WriterLock

	mu           sync.Mutex
	deliveredBuf []router.DeliveredMessage
	lastSave     time.Time

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	log *log.Logger
}

// Init validates cfg, acquires the storage directory's writer lock, and
// wires every subsystem together, restoring persisted queue and bundle
// state. onCreate is the host's nonce-account creation signer (may be
// nil; see CreateNonceAccountFunc).
func Init(cfg config.Config, onCreate CreateNonceAccountFunc) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	lock, err := persistence.AcquireWriterLock(cfg.StorageDirectory)
	if err != nil {
		return nil, err
	}

	reasm := reassembly.New()
	tr := transport.New(reasm)

	queues, err := queue.NewManager(cfg.StorageDirectory)
	if err != nil {
		lock.Release()
		return nil, err
	}

	rtr := router.New(cfg.SelfID, cfg.SelfAddress, reasm, queues.Received)
	rpc := NewSolanaRPCClient(cfg.RPCURL, onCreate)

	bundleStore := persistence.NewBundleStore(cfg.StorageDirectory)
	bundle, err := nonce.Load(bundleStore, rpc)
	if err != nil {
		queues.Close()
		lock.Release()
		return nil, err
	}

	rpcTimeout := params.RPCTimeout
	if cfg.RPCTimeout > 0 {
		rpcTimeout = cfg.RPCTimeout
	}
	_ = rpcTimeout // submission timeout is applied inside relay.Worker via params.RPCTimeout

	worker := relay.NewWorker(queues, rtr, reasm, rpc, cfg.SuppressDuplicateConfirmation)

	queueStore := persistence.NewQueueStore(cfg.StorageDirectory)
	if err := queueStore.Load(queues); err != nil {
		queues.Close()
		lock.Release()
		return nil, err
	}

	registry := metrics.NewRegistry(metrics.Components{Reassembly: reasm, Router: rtr, Queues: queues})

	c := &Core{
		cfg:         cfg,
		reasm:       reasm,
		transport:   tr,
		rtr:         rtr,
		queues:      queues,
		bundle:      bundle,
		worker:      worker,
		rpc:         rpc,
		registry:    registry,
		queueStore:  queueStore,
		bundleStore: bundleStore,
		writerLock:  lock,
		stop:        make(chan struct{}),
		log:         log.New("core"),
	}

	if cfg.Metrics.Enabled {
		reporter, err := metrics.NewInfluxDBReporter(cfg.Metrics, registry)
		if err != nil {
			c.log.Warn("InfluxDB reporter disabled", "err", err)
		} else {
			c.influx = reporter
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				reporter.Run(c.stop)
			}()
		}
	}

	return c, nil
}

// Shutdown stops the metrics reporter, flushes queues to disk, and
// releases the storage directory's writer lock. Safe to call once; a
// second call is a no-op.
func (c *Core) Shutdown() error {
	var saveErr error
	c.closeOnce.Do(func() {
		close(c.stop)
		c.wg.Wait()
		if c.influx != nil {
			c.influx.Close()
		}
		saveErr = c.queueStore.Save(c.queues)
		c.queues.Close()
		c.writerLock.Release()
	})
	return saveErr
}

// drainRouterOutbound moves packets the router queued for rebroadcast or
// origination (PONG replies) onto the transport's BLE staging queue.
func (c *Core) drainRouterOutbound() {
	for _, raw := range c.rtr.DrainOutbound() {
		c.transport.QueueOutboundFragments([][]byte{raw})
	}
}

// drainQueuedOutbound moves every transaction queued via
// QueueSignedTransaction from the persisted outbound queue onto the
// transport's ephemeral BLE staging queue, mesh-enveloping each fragment
// as an origin TX_FRAGMENT packet.
func (c *Core) drainQueuedOutbound() {
	for {
		item, ok := c.queues.Outbound.Pop()
		if !ok {
			return
		}
		for _, frag := range item.Fragments {
			pkt := wire.NewOriginPacket(wire.PacketTxFragment, c.cfg.SelfID, wire.EncodeFragment(frag))
			c.transport.QueueOutboundFragments([][]byte{wire.EncodePacket(pkt)})
		}
	}
}

// PushInbound implements push_inbound: raw is a wire-encoded MeshPacket
// received over BLE. Mesh envelope decoding, TTL dispatch, per-type
// handling, and fragment reassembly all live in router (§4.7); this
// method only front-decodes for a clean error Envelope and stages
// whatever the router produced for rebroadcast.
func (c *Core) PushInbound(raw []byte) Envelope {
	if _, err := wire.DecodePacket(raw); err != nil {
		return Fail(err)
	}
	c.rtr.HandlePacket(raw, time.Now())
	c.drainRouterOutbound()
	return Ok(nil)
}

// NextOutbound implements next_outbound: pops one queued BLE frame no
// longer than maxLen, or {ok:true, data:null} when none fits.
func (c *Core) NextOutbound(maxLen int) Envelope {
	b, ok := c.transport.NextOutbound(maxLen)
	if !ok {
		return Ok(nil)
	}
	return Ok(b)
}

// Tick implements tick: the host-driven heartbeat. It advances the
// reassembly sweep, submits due received/retry transactions (subject to
// the host having reported connectivity via SetNetworkAvailable), runs
// periodic cleanup when due, and stages anything the router queued for
// rebroadcast.
func (c *Core) Tick(now time.Time) Envelope {
	ctx, cancel := context.WithTimeout(context.Background(), params.RPCTimeout*2)
	defer cancel()

	c.transport.Tick(now)
	c.drainQueuedOutbound()
	c.worker.ProcessReceived(ctx, now)
	c.worker.ProcessRetryReady(ctx, now)
	c.worker.HandleTimeout(now)
	c.drainRouterOutbound()
	c.autoSave(now)
	return Ok(nil)
}

// autoSave flushes queue state to disk at most once per
// params.AutoSaveInterval, so a host driving Tick frequently doesn't
// turn every heartbeat into a disk write.
func (c *Core) autoSave(now time.Time) {
	c.mu.Lock()
	due := now.Sub(c.lastSave) > params.AutoSaveInterval
	if due {
		c.lastSave = now
	}
	c.mu.Unlock()
	if !due {
		return
	}
	if err := c.queueStore.Save(c.queues); err != nil {
		c.log.Warn("autosave failed", "err", err)
	}
}

// SetNetworkAvailable records a host-reported connectivity change; the
// worker skips Received/Retry processing while disconnected.
func (c *Core) SetNetworkAvailable(available bool) Envelope {
	c.worker.SetNetworkAvailable(available)
	return Ok(nil)
}

// MetricsSnapshot is the combined metrics() result: component counters
// plus anything dropped as a local duplicate since the last call.
type MetricsSnapshot struct {
	metrics.Snapshot
	Dropped []relay.DroppedSubmission `json:"dropped,omitempty"`
}

// Metrics implements metrics(): the aggregate counters of spec §7.
func (c *Core) Metrics() Envelope {
	dropped := c.worker.DrainDropped()
	for _, d := range dropped {
		if d.Reason == "DuplicateSubmission" {
			c.registry.RecordDuplicateSubmission()
		}
	}
	return Ok(MetricsSnapshot{
		Snapshot: c.registry.Collect(),
		Dropped:  dropped,
	})
}

// ClearTransaction implements clear_transaction: it drops tx_id's
// in-progress reassembly group plus whatever queue state
// queue.Manager.ClearTransaction removes.
func (c *Core) ClearTransaction(txID common.TxID) Envelope {
	c.queues.ClearTransaction(txID)
	c.reasm.ClearTransaction(txID)
	return Ok(nil)
}

// CreateUnsignedTransaction implements create_unsigned_transaction: a
// durable-nonce SOL transfer built against caller-supplied nonce
// account/authority/blockhash (obtained via cache_nonce_accounts or the
// host's own lookup).
func (c *Core) CreateUnsignedTransaction(sender, recipient, feePayer, nonceAccount, nonceAuthority common.Pubkey, amountLamports uint64, blockhash common.Hash32) Envelope {
	tx := txbuilder.BuildTransfer(sender, recipient, feePayer, nonceAccount, nonceAuthority, amountLamports, blockhash)
	return Ok(EncodeTransaction(tx))
}

// CreateUnsignedSplTransaction implements create_unsigned_spl_transaction.
func (c *Core) CreateUnsignedSplTransaction(senderWallet, senderTokenAccount, recipientTokenAccount, mint, feePayer, nonceAccount, nonceAuthority common.Pubkey, amount uint64, blockhash common.Hash32) Envelope {
	tx := txbuilder.BuildSplTransfer(senderWallet, senderTokenAccount, recipientTokenAccount, mint, feePayer, nonceAccount, nonceAuthority, amount, blockhash)
	return Ok(EncodeTransaction(tx))
}

// CastUnsignedVote implements cast_unsigned_vote.
func (c *Core) CastUnsignedVote(voter, proposalID, voteAccount, feePayer, nonceAccount, nonceAuthority common.Pubkey, choice uint8, blockhash common.Hash32) Envelope {
	var proposal common.Hash32
	copy(proposal[:], proposalID[:])
	tx := txbuilder.BuildVote(voter, proposal, voteAccount, feePayer, nonceAccount, nonceAuthority, choice, blockhash)
	return Ok(EncodeTransaction(tx))
}

// OfflineTxResult is the result shape of the two offline builder
// operations: the tx handle plus the durable nonce consumed to build it,
// so the host can MarkRefunded it if the signed transaction is later
// abandoned.
type OfflineTxResult struct {
	Tx           string        `json:"tx"`
	NonceAccount common.Pubkey `json:"nonce_account"`
}

// CreateUnsignedOfflineTransaction implements
// create_unsigned_offline_transaction: builds against the device's own
// durable-nonce bundle rather than a caller-supplied nonce, for use with
// no RPC connectivity.
func (c *Core) CreateUnsignedOfflineTransaction(senderPubkey, nonceAuthorityPubkey, recipient common.Pubkey, amountLamports uint64) Envelope {
	tx, taken, err := txbuilder.BuildOfflineUnsigned(c.bundle, senderPubkey, nonceAuthorityPubkey, recipient, amountLamports)
	if err != nil {
		return Fail(err)
	}
	return Ok(OfflineTxResult{Tx: EncodeTransaction(tx), NonceAccount: taken.NonceAccount})
}

// CreateUnsignedOfflineSplTransaction implements
// create_unsigned_offline_spl_transaction.
func (c *Core) CreateUnsignedOfflineSplTransaction(senderWallet, senderTokenAccount, recipientTokenAccount, mint, nonceAuthorityPubkey common.Pubkey, amount uint64) Envelope {
	tx, taken, err := txbuilder.BuildOfflineSplUnsigned(c.bundle, senderWallet, senderTokenAccount, recipientTokenAccount, mint, nonceAuthorityPubkey, amount)
	if err != nil {
		return Fail(err)
	}
	return Ok(OfflineTxResult{Tx: EncodeTransaction(tx), NonceAccount: taken.NonceAccount})
}

// MessageToSign implements message_to_sign.
func (c *Core) MessageToSign(txHandle string) Envelope {
	tx, err := DecodeTransaction(txHandle)
	if err != nil {
		return Fail(err)
	}
	return Ok(txbuilder.MessageToSign(tx))
}

// RequiredSigners implements required_signers.
func (c *Core) RequiredSigners(txHandle string) Envelope {
	tx, err := DecodeTransaction(txHandle)
	if err != nil {
		return Fail(err)
	}
	return Ok(txbuilder.RequiredSigners(tx))
}

// ApplySignature implements apply_signature, returning the updated tx
// handle with sig applied for signerPubkey.
func (c *Core) ApplySignature(txHandle string, signerPubkey common.Pubkey, sig common.Signature) Envelope {
	tx, err := DecodeTransaction(txHandle)
	if err != nil {
		return Fail(err)
	}
	if err := txbuilder.ApplySignature(tx, signerPubkey, sig); err != nil {
		return Fail(err)
	}
	return Ok(EncodeTransaction(tx))
}

// VerifyAndSerialize implements verify_and_serialize: checks every
// required signature and returns the Solana wire-format bytes.
func (c *Core) VerifyAndSerialize(txHandle string) Envelope {
	tx, err := DecodeTransaction(txHandle)
	if err != nil {
		return Fail(err)
	}
	out, err := txbuilder.VerifyAndSerialize(tx)
	if err != nil {
		return Fail(err)
	}
	return Ok(out)
}

// PrepareOfflineBundle implements prepare_offline_bundle: ensures at
// least count unused nonces are available, refreshing used ones before
// paying the on-chain fee to create new ones.
func (c *Core) PrepareOfflineBundle(count int, authority common.Pubkey, lamportsPerCreate *uint256.Int) Envelope {
	if err := c.bundle.Prepare(count, authority, lamportsPerCreate); err != nil {
		return Fail(err)
	}
	return Ok(c.bundle.Snapshot())
}

// CreateOfflineTransaction implements create_offline_transaction, an
// alias entry point for the SOL-transfer offline builder kept distinct
// from create_unsigned_offline_transaction in spec §6's operation list.
func (c *Core) CreateOfflineTransaction(senderPubkey, nonceAuthorityPubkey, recipient common.Pubkey, amountLamports uint64) Envelope {
	return c.CreateUnsignedOfflineTransaction(senderPubkey, nonceAuthorityPubkey, recipient, amountLamports)
}

// RefreshOfflineBundle implements refresh_offline_bundle: refreshes
// every used nonce's blockhash without creating any new accounts.
func (c *Core) RefreshOfflineBundle() Envelope {
	if err := c.bundle.Prepare(0, common.Pubkey{}, uint256.NewInt(0)); err != nil {
		return Fail(err)
	}
	return Ok(c.bundle.Snapshot())
}

// CacheNonceAccounts implements cache_nonce_accounts: onboards
// externally-provisioned nonce accounts without paying the create fee.
func (c *Core) CacheNonceAccounts(accounts []common.Pubkey, authority common.Pubkey) Envelope {
	if err := c.bundle.CacheAccounts(accounts, authority); err != nil {
		return Fail(err)
	}
	return Ok(c.bundle.Snapshot())
}

// QueueSignedTransaction implements queue_signed_transaction: fragments
// a fully-signed, serialized transaction and stages it for both
// persistence (queue.Manager's outbound queue) and immediate BLE
// emission (transport's staging queue).
func (c *Core) QueueSignedTransaction(txBytes []byte, maxPayload int, priority queue.Priority) Envelope {
	if len(txBytes) > params.MaxTxSize {
		return Fail(common.ErrTxTooLarge)
	}
	txID := c.queues.QueueTransaction(txBytes, maxPayload, priority)
	c.drainQueuedOutbound()
	return Ok(txID)
}

// NextReceivedTransaction implements next_received_transaction: pops one
// mesh-delivered message addressed to this device (a TX_ACK confirmation
// or TEXT message relayed back toward its origin), or {ok:true,
// data:null} when none is pending.
func (c *Core) NextReceivedTransaction() Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.deliveredBuf) == 0 {
		c.deliveredBuf = c.rtr.DrainDelivered()
	}
	if len(c.deliveredBuf) == 0 {
		return Ok(nil)
	}
	msg := c.deliveredBuf[0]
	c.deliveredBuf = c.deliveredBuf[1:]
	return Ok(msg)
}

// DrainConfirmations pops every submission outcome queued for mesh
// relay back to its origin since the last call. It is not part of
// spec §6's boundary surface; rpcserver uses it to feed the "push
// Confirmation events live" debug stream described in SPEC_FULL.md §2.
func (c *Core) DrainConfirmations() []queue.ConfirmationItem {
	var out []queue.ConfirmationItem
	for {
		item, ok := c.queues.Confirm.Pop()
		if !ok {
			return out
		}
		out = append(out, item)
	}
}

// QueueSizesResult is the queue_sizes() result shape.
type QueueSizesResult struct {
	Outbound int `json:"outbound"`
	Received int `json:"received"`
	Retry    int `json:"retry"`
	Confirm  int `json:"confirm"`
	Dedup    int `json:"dedup"`
}

// QueueSizes implements queue_sizes().
func (c *Core) QueueSizes() Envelope {
	return Ok(QueueSizesResult{
		Outbound: c.queues.Outbound.Depth(),
		Received: c.queues.Received.Depth(),
		Retry:    c.queues.Retry.Depth(),
		Confirm:  c.queues.Confirm.Depth(),
		Dedup:    c.queues.Dedup.Len(),
	})
}

// SaveQueues implements save_queues(): an explicit flush, beyond
// whatever periodic cadence the host itself drives Tick at.
func (c *Core) SaveQueues() Envelope {
	if err := c.queueStore.Save(c.queues); err != nil {
		return Fail(err)
	}
	return Ok(nil)
}

// Fragment implements fragment(tx_bytes, max_payload): splits a
// transaction into wire-encoded fragments without touching any queue.
func (c *Core) Fragment(txBytes []byte, maxPayload int) Envelope {
	if len(txBytes) > params.MaxTxSize {
		return Fail(common.ErrTxTooLarge)
	}
	sum := common.ComputeTxID(txBytes) // reuse: sha256 digest, same hash family as the checksum field
	frags := wire.Split(txBytes, [32]byte(sum), sum, maxPayload)
	out := make([][]byte, len(frags))
	for i, f := range frags {
		out[i] = wire.EncodeFragment(f)
	}
	return Ok(out)
}

// Reassemble implements reassemble(fragment_bytes): feeds one
// wire-encoded fragment into the shared reassembly buffer, returning the
// completed transaction once every index has arrived.
func (c *Core) Reassemble(raw []byte) Envelope {
	f, err := wire.DecodeFragment(raw)
	if err != nil {
		return Fail(err)
	}
	txBytes, complete, err := c.reasm.Push(f, time.Now())
	if err != nil {
		return Fail(err)
	}
	if !complete {
		return Ok(nil)
	}
	return Ok(txBytes)
}
