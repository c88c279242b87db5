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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pollinet/pollinet-core/params"
)

func TestPeerRateLimiterAllowsUpToBurst(t *testing.T) {
	p := NewPeerRateLimiter()
	var sender [16]byte
	sender[0] = 1

	for i := 0; i < params.MaxPeerRate; i++ {
		assert.True(t, p.Allow(sender), "request %d should be admitted", i)
	}
	assert.False(t, p.Allow(sender))
	assert.Equal(t, 1, p.Rejected(sender))
	assert.Equal(t, 1, p.TotalRejected())
}

func TestPeerRateLimiterTracksSendersIndependently(t *testing.T) {
	p := NewPeerRateLimiter()
	var a, b [16]byte
	a[0], b[0] = 1, 2

	for i := 0; i < params.MaxPeerRate; i++ {
		require := assert.New(t)
		require.True(p.Allow(a))
	}
	assert.False(t, p.Allow(a))
	assert.True(t, p.Allow(b))
}

func TestPeerRateLimiterResetClearsBuckets(t *testing.T) {
	p := NewPeerRateLimiter()
	var sender [16]byte
	sender[0] = 3

	for i := 0; i < params.MaxPeerRate; i++ {
		p.Allow(sender)
	}
	assert.False(t, p.Allow(sender))

	p.Reset()
	assert.True(t, p.Allow(sender))
}
