package shmif

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mapping is a shared view of a segment file. mem is replaced on remap.
type mapping struct {
	file *os.File
	mem  []byte
}

func mapSegment(f *os.File) (*mapping, error) {
	m := &mapping{file: f}
	if err := m.remap(); err != nil {
		return nil, err
	}
	return m, nil
}

// remap maps the file at its current size, dropping any previous view.
func (m *mapping) remap() error {
	fi, err := m.file.Stat()
	if err != nil {
		return fmt.Errorf("stat segment: %w", err)
	}
	size := int(fi.Size())
	if size < videoOffset {
		return fmt.Errorf("segment file too small: %d bytes", size)
	}
	mem, err := unix.Mmap(int(m.file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap segment: %w", err)
	}
	if m.mem != nil {
		_ = unix.Munmap(m.mem)
	}
	m.mem = mem
	return nil
}

// grow truncates the file to size and remaps it.
func (m *mapping) grow(size int) error {
	if err := m.file.Truncate(int64(size)); err != nil {
		return fmt.Errorf("truncate segment: %w", err)
	}
	return m.remap()
}

func (m *mapping) close() error {
	var err error
	if m.mem != nil {
		err = unix.Munmap(m.mem)
		m.mem = nil
	}
	if cerr := m.file.Close(); err == nil {
		err = cerr
	}
	return err
}

func (m *mapping) word(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&m.mem[off]))
}

func (m *mapping) dword(off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&m.mem[off]))
}

func (m *mapping) load(off int) uint32 {
	return atomic.LoadUint32(m.word(off))
}

func (m *mapping) store(off int, v uint32) {
	atomic.StoreUint32(m.word(off), v)
}

func (m *mapping) load64(off int) uint64 {
	return atomic.LoadUint64(m.dword(off))
}

func (m *mapping) add64(off int, delta uint64) uint64 {
	return atomic.AddUint64(m.dword(off), delta)
}

func (m *mapping) cas(off int, old, next uint32) bool {
	return atomic.CompareAndSwapUint32(m.word(off), old, next)
}

// initHeader writes a fresh header for the given geometry.
func (m *mapping) initHeader(id uint32, kind Kind, width, height, stride int, ext ResizeExt) {
	m.store(offMagic, magic)
	m.store(offVersion, version)
	m.store(offID, id)
	m.store(offKind, uint32(kind))
	m.setGeometry(width, height, stride, ext)
}

func (m *mapping) setGeometry(width, height, stride int, ext ResizeExt) {
	m.store(offWidth, uint32(width))
	m.store(offHeight, uint32(height))
	m.store(offStride, uint32(stride))
	m.store(offVBufCount, uint32(ext.VideoBuffers))
	m.store(offABufCount, uint32(ext.AudioBuffers))
	m.store(offABufSize, uint32(ext.AudioBufferSize))
	m.store(offHints, ext.Hints)
	m.store(offActiveBuf, 0)
	m.store(offPresentBuf, 0)
	m.setDirty(FullRect(width, height))
}

func (m *mapping) setDirty(r Rect) {
	m.store(offDirtyX1, uint32(r.X1))
	m.store(offDirtyY1, uint32(r.Y1))
	m.store(offDirtyX2, uint32(r.X2))
	m.store(offDirtyY2, uint32(r.Y2))
}

func (m *mapping) dirty() Rect {
	return Rect{
		X1: int(m.load(offDirtyX1)),
		Y1: int(m.load(offDirtyY1)),
		X2: int(m.load(offDirtyX2)),
		Y2: int(m.load(offDirtyY2)),
	}
}

func (m *mapping) validate() error {
	if got := m.load(offMagic); got != magic {
		return fmt.Errorf("bad segment magic %#x", got)
	}
	if got := m.load(offVersion); got != version {
		return fmt.Errorf("unsupported segment version %d", got)
	}
	return nil
}

// videoBuffer returns buffer idx of the current geometry.
func (m *mapping) videoBuffer(idx int) []byte {
	size := int(m.load(offStride)) * int(m.load(offHeight))
	start := videoOffset + idx*size
	if start+size > len(m.mem) {
		return nil
	}
	return m.mem[start : start+size : start+size]
}
