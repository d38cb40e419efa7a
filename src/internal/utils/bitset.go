package utils

import "math/bits"

type bitSet struct {
	len   int
	array []uint64
}

type BitSet interface {
	Has(pos int) bool
	Add(pos int) bool
	Remove(pos int) bool
	Len() int
	Count() int
	Clear()
	// NextClear returns the first clear bit at or after pos, wrapping around
	// to the start. It returns -1 when every bit is set.
	NextClear(pos int) int
}

func NewBitSet(length int) BitSet {
	if length < 0 {
		panic("BitSet length must be non-negative")
	}
	return &bitSet{
		len:   length,
		array: make([]uint64, (length+63)/64),
	}
}

// Has checks whether the bit at the given position is set.
func (b *bitSet) Has(pos int) bool {
	if pos < 0 || pos >= b.len {
		return false
	}
	word, bit := pos/64, uint(pos%64)
	return b.array[word]&(1<<bit) != 0
}

// Add sets the bit at the given position. Returns true if the bit was already set.
func (b *bitSet) Add(pos int) bool {
	if pos < 0 || pos >= b.len {
		return false
	}
	word, bit := pos/64, uint(pos%64)
	alreadySet := b.array[word]&(1<<bit) != 0
	b.array[word] |= 1 << bit
	return alreadySet
}

// Remove clears the bit at the given position. Returns true if the bit was previously set.
func (b *bitSet) Remove(pos int) bool {
	if pos < 0 || pos >= b.len {
		return false
	}
	word, bit := pos/64, uint(pos%64)
	previouslySet := b.array[word]&(1<<bit) != 0
	b.array[word] &^= 1 << bit
	return previouslySet
}

// Len returns the length of the bit set.
func (b *bitSet) Len() int {
	return b.len
}

// Count returns the number of set bits.
func (b *bitSet) Count() int {
	count := 0
	for _, word := range b.array {
		count += bits.OnesCount64(word)
	}
	return count
}

// Clear resets all bits in the bit set.
func (b *bitSet) Clear() {
	for i := range b.array {
		b.array[i] = 0
	}
}

func (b *bitSet) NextClear(pos int) int {
	if b.len == 0 {
		return -1
	}
	if pos < 0 || pos >= b.len {
		pos = 0
	}
	if i := b.scanClear(pos, b.len); i >= 0 {
		return i
	}
	return b.scanClear(0, pos)
}

// scanClear finds the first clear bit in [from, to).
func (b *bitSet) scanClear(from, to int) int {
	for pos := from; pos < to; {
		word, bit := pos/64, uint(pos%64)
		free := ^b.array[word] >> bit
		if free == 0 {
			pos = (word + 1) * 64
			continue
		}
		found := pos + bits.TrailingZeros64(free)
		if found >= to {
			return -1
		}
		return found
	}
	return -1
}
