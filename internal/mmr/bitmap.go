package mmr

import (
	"encoding/binary"
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// EncodeBitmap returns the canonical encoding of the set bits of b: the
// number of set bits followed by the gaps between them, all as uvarints. Two
// bitmaps with the same set bits encode identically whatever their capacity.
func EncodeBitmap(b *bitset.BitSet) []byte {
	if b == nil {
		return []byte{0}
	}
	var tmp [binary.MaxVarintLen64]byte
	buf := make([]byte, 0, 1+b.Count()*2)
	buf = append(buf, tmp[:binary.PutUvarint(tmp[:], uint64(b.Count()))]...)
	prev := uint64(0)
	for i, ok := b.NextSet(0); ok; i, ok = b.NextSet(i + 1) {
		buf = append(buf, tmp[:binary.PutUvarint(tmp[:], uint64(i)-prev)]...)
		prev = uint64(i)
	}
	return buf
}

// DecodeBitmap reverses EncodeBitmap.
func DecodeBitmap(data []byte) (*bitset.BitSet, error) {
	b := bitset.New(0)
	if len(data) == 0 {
		return b, nil
	}
	count, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, fmt.Errorf("invalid bitmap length prefix")
	}
	data = data[n:]
	prev := uint64(0)
	for i := uint64(0); i < count; i++ {
		gap, n := binary.Uvarint(data)
		if n <= 0 {
			return nil, fmt.Errorf("bitmap truncated after %d of %d entries", i, count)
		}
		data = data[n:]
		prev += gap
		b.Set(uint(prev))
	}
	if len(data) != 0 {
		return nil, fmt.Errorf("%d trailing bytes after bitmap", len(data))
	}
	return b, nil
}

// BitmapsEqual compares the set bits of two bitmaps, ignoring capacity.
func BitmapsEqual(a, b *bitset.BitSet) bool {
	if a == nil {
		a = bitset.New(0)
	}
	if b == nil {
		b = bitset.New(0)
	}
	if a.Count() != b.Count() {
		return false
	}
	for i, ok := a.NextSet(0); ok; i, ok = a.NextSet(i + 1) {
		if !b.Test(i) {
			return false
		}
	}
	return true
}
