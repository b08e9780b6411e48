package shmif

import (
	"encoding/binary"
	"sync/atomic"
)

// ring is a single-producer/single-consumer queue of length-prefixed slots
// living inside a mapping. head is advanced by the consumer, tail by the
// producer; both only grow and are reduced modulo ringSlots on access.
type ring struct {
	m    *mapping
	base int
}

func (r ring) head() *uint32 { return r.m.word(r.base + ringHeadOff) }
func (r ring) tail() *uint32 { return r.m.word(r.base + ringTailOff) }

func (r ring) slot(i uint32) []byte {
	off := r.base + ringHeaderSize + int(i%ringSlots)*slotSize
	return r.m.mem[off : off+slotSize]
}

// push copies payload into the next free slot. It reports false when the
// ring is full or the payload does not fit a slot.
func (r ring) push(payload []byte) bool {
	if len(payload) > slotSize-2 {
		return false
	}
	head := atomic.LoadUint32(r.head())
	tail := atomic.LoadUint32(r.tail())
	if tail-head >= ringSlots {
		return false
	}
	s := r.slot(tail)
	binary.LittleEndian.PutUint16(s, uint16(len(payload)))
	copy(s[2:], payload)
	atomic.StoreUint32(r.tail(), tail+1)
	return true
}

// pop copies the oldest payload into buf and returns its length.
func (r ring) pop(buf []byte) (int, bool) {
	head := atomic.LoadUint32(r.head())
	tail := atomic.LoadUint32(r.tail())
	if head == tail {
		return 0, false
	}
	s := r.slot(head)
	n := int(binary.LittleEndian.Uint16(s))
	if n > slotSize-2 {
		n = slotSize - 2
	}
	n = copy(buf, s[2:2+n])
	atomic.StoreUint32(r.head(), head+1)
	return n, true
}

func (r ring) len() int {
	return int(atomic.LoadUint32(r.tail()) - atomic.LoadUint32(r.head()))
}
