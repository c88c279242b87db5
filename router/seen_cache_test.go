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
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pollinet/pollinet-core/params"
)

func TestSeenMessageCacheMarksFirstSeenUnseen(t *testing.T) {
	c := NewSeenMessageCache()
	var id [16]byte
	id[0] = 1

	now := time.Now()
	assert.False(t, c.SeenAndMark(id, now))
	assert.Equal(t, 1, c.Len())
}

func TestSeenMessageCacheDetectsDuplicateWithinTTL(t *testing.T) {
	c := NewSeenMessageCache()
	var id [16]byte
	id[0] = 2

	now := time.Now()
	assert.False(t, c.SeenAndMark(id, now))
	assert.True(t, c.SeenAndMark(id, now.Add(time.Second)))
}

func TestSeenMessageCacheExpiresAfterTTL(t *testing.T) {
	c := NewSeenMessageCache()
	var id [16]byte
	id[0] = 3

	now := time.Now()
	assert.False(t, c.SeenAndMark(id, now))
	later := now.Add(params.SeenCacheTTL + time.Minute)
	assert.False(t, c.SeenAndMark(id, later))
}

func TestSeenMessageCachePurgeDropsExpiredEntries(t *testing.T) {
	c := NewSeenMessageCache()
	var id [16]byte
	id[0] = 4

	now := time.Now()
	c.SeenAndMark(id, now)
	c.Purge(now.Add(params.SeenCacheTTL + time.Minute))
	assert.Equal(t, 0, c.Len())
}
