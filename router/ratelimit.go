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

package router

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/pollinet/pollinet-core/params"
)

// PeerRateLimiter enforces MAX_PEER_RATE (=20/s) per sender_id over a
// 1-second sliding window, implemented as one token bucket per sender.
type PeerRateLimiter struct {
	mu       sync.Mutex
	limiters map[[16]byte]*rate.Limiter
	rejected map[[16]byte]int
	rejTotal int
}

// NewPeerRateLimiter constructs a limiter keyed by sender_id.
func NewPeerRateLimiter() *PeerRateLimiter {
	return &PeerRateLimiter{
		limiters: make(map[[16]byte]*rate.Limiter),
		rejected: make(map[[16]byte]int),
	}
}

// Allow reports whether a packet from senderID may be admitted right
// now, consuming one token if so. Rejections increment the rate-limit
// counter per spec §4.7.
func (p *PeerRateLimiter) Allow(senderID [16]byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.limiters[senderID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(params.MaxPeerRate), params.MaxPeerRate)
		p.limiters[senderID] = l
	}
	if l.Allow() {
		return true
	}
	p.rejected[senderID]++
	p.rejTotal++
	return false
}

// Rejected reports the rate-limit rejection count for a given sender,
// for observability/tests.
func (p *PeerRateLimiter) Rejected(senderID [16]byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rejected[senderID]
}

// TotalRejected reports the aggregate rejection count across all
// senders.
func (p *PeerRateLimiter) TotalRejected() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rejTotal
}

// Reset drops all per-sender limiter state, used by the relay worker's
// periodic CleanupTick ("rate-limit window reset", spec §4.8). Rejection
// counters are preserved for reporting; only the token-bucket state is
// cleared so that senders start fresh.
func (p *PeerRateLimiter) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limiters = make(map[[16]byte]*rate.Limiter)
}
