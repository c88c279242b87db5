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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollinet/pollinet-core/common"
	"github.com/pollinet/pollinet-core/params"
)

func TestSubmittedHashSetInsertAndContains(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenSubmittedHashSet(dir + "/dedup.db")
	require.NoError(t, err)
	defer s.Close()

	var txID common.TxID
	txID[0] = 1
	assert.False(t, s.Contains(txID))

	require.NoError(t, s.Insert(txID, time.Now()))
	assert.True(t, s.Contains(txID))
}

func TestSubmittedHashSetEvictsExpired(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenSubmittedHashSet(dir + "/dedup.db")
	require.NoError(t, err)
	defer s.Close()

	var txID common.TxID
	txID[0] = 2
	past := time.Now().Add(-params.SubmissionDedupTTL - time.Minute)
	require.NoError(t, s.Insert(txID, past))

	s.EvictExpired(time.Now())
	assert.False(t, s.Contains(txID))
	assert.Equal(t, 0, s.Len())
}

func TestSubmittedHashSetSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenSubmittedHashSet(dir + "/dedup.db")
	require.NoError(t, err)

	var txID common.TxID
	txID[0] = 3
	require.NoError(t, s.Insert(txID, time.Now()))
	require.NoError(t, s.Close())

	reopened, err := OpenSubmittedHashSet(dir + "/dedup.db")
	require.NoError(t, err)
	defer reopened.Close()
	assert.True(t, reopened.Contains(txID))
}

func TestSubmittedHashSetRemove(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenSubmittedHashSet(dir + "/dedup.db")
	require.NoError(t, err)
	defer s.Close()

	var txID common.TxID
	txID[0] = 4
	require.NoError(t, s.Insert(txID, time.Now()))
	s.Remove(txID)
	assert.False(t, s.Contains(txID))
}
