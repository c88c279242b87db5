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

package wire

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"
	fuzz "github.com/google/gofuzz"
	"github.com/kylelemons/godebug/pretty"

	"github.com/pollinet/pollinet-core/common"
)

// TestFragmentRoundTripFuzz generates arbitrary transaction byte slices
// and fragment orderings (varying Data/TxID/Checksum content and the
// Index/Total/Kind combination every group boundary can take) and
// checks EncodeFragment/DecodeFragment is a lossless round trip for all
// of them, per the §8 round-trip property.
func TestFragmentRoundTripFuzz(t *testing.T) {
	fz := fuzz.New().NilChance(0).NumElements(1, 512)

	for i := 0; i < 30; i++ {
		var data []byte
		var txID common.TxID
		var checksum [32]byte
		fz.Fuzz(&data)
		fz.Fuzz(&txID)
		fz.Fuzz(&checksum)

		total := uint16(i%7 + 1)
		index := uint16(i % int(total))
		kind := KindContinue
		switch {
		case total == 1:
			kind = KindStart
		case index == 0:
			kind = KindStart
		case index == total-1:
			kind = KindEnd
		}

		frag := Fragment{
			TxID:     txID,
			Index:    index,
			Total:    total,
			Kind:     kind,
			Checksum: checksum,
			Data:     data,
		}

		encoded := EncodeFragment(frag)
		decoded, err := DecodeFragment(encoded)
		if err != nil {
			t.Fatalf("decode failed: %v\n%s", err, spew.Sdump(frag))
		}
		if diff := cmp.Diff(frag, decoded); diff != "" {
			t.Fatalf("round trip mismatch (-want +got):\n%s\nfull value:\n%s", diff, pretty.Sprint(frag))
		}
	}
}
