package pagestore

import (
	"encoding/binary"
	"math"
)

// --- Page Layout ---
//
// Every page starts with a one-byte kind tag so that a pointer handed back
// after a delete can be rejected instead of being misread as a live head.
//
// Head page:
//   [0]      Kind (PageKindHead)
//   [1:9]    TotalLength (uint64 LE), bytes stored in the whole chain
//   [9:17]   Next        (uint64 LE), next page index (NilPageID = end)
//   [17:]    Payload
//
// Continuation page (free pages reuse this layout):
//   [0]      Kind (PageKindCont / PageKindFree)
//   [1:9]    Next (uint64 LE)
//   [9:]     Payload (ignored on free pages)

// PageID is the index of a page within the file. Page bytes live at
// offset FileHeaderSize + id*pageSize.
type PageID uint64

// NilPageID marks "no page": the end of a chain or an empty free list.
const NilPageID PageID = math.MaxUint64

// Page kinds. A freshly appended (zeroed) page reads as free.
const (
	PageKindFree byte = 0
	PageKindHead byte = 1
	PageKindCont byte = 2
)

const (
	kindOff       = 0
	headLengthOff = 1
	headNextOff   = 9
	contNextOff   = 1

	// HeadOverhead and ContOverhead are the per-page metadata sizes.
	// Head capacity is strictly smaller than continuation capacity.
	HeadOverhead = 17
	ContOverhead = 9
)

// MinPageSize is the smallest page size the store accepts. Anything below
// this leaves no useful head payload.
const MinPageSize = 32

// HeadCapacity returns the payload capacity of a head page.
func HeadCapacity(pageSize int) int { return pageSize - HeadOverhead }

// ContCapacity returns the payload capacity of a continuation page.
func ContCapacity(pageSize int) int { return pageSize - ContOverhead }

// ChainPages returns the number of pages a chain holding totalLength bytes
// occupies: always one head page, plus as many continuation pages as the
// remainder requires.
func ChainPages(totalLength uint64, pageSize int) uint64 {
	head := uint64(HeadCapacity(pageSize))
	if totalLength <= head {
		return 1
	}
	// Separate div and mod: rounding up via rest+cont-1 wraps when a
	// corrupt totalLength sits near the top of the uint64 range.
	cont := uint64(ContCapacity(pageSize))
	rest := totalLength - head
	pages := rest / cont
	if rest%cont != 0 {
		pages++
	}
	return 1 + pages
}

// PageKind reports the kind tag of a raw page buffer.
func PageKind(buf []byte) byte { return buf[kindOff] }

// --- Head Page ---

// HeadPage wraps a raw page buffer as the first page of a chain.
type HeadPage struct {
	buf []byte
}

// WrapHeadPage wraps an existing head page buffer.
func WrapHeadPage(buf []byte) HeadPage { return HeadPage{buf: buf} }

// InitHeadPage formats buf as an empty head page (length 0, no next).
func InitHeadPage(buf []byte) HeadPage {
	clear(buf)
	buf[kindOff] = PageKindHead
	h := HeadPage{buf: buf}
	h.SetNext(NilPageID)
	return h
}

// TotalLength returns the number of payload bytes in the whole chain.
func (h HeadPage) TotalLength() uint64 {
	return binary.LittleEndian.Uint64(h.buf[headLengthOff:])
}

// SetTotalLength records the chain's total payload length.
func (h HeadPage) SetTotalLength(n uint64) {
	binary.LittleEndian.PutUint64(h.buf[headLengthOff:], n)
}

// Next returns the following page in the chain, or NilPageID.
func (h HeadPage) Next() PageID {
	return PageID(binary.LittleEndian.Uint64(h.buf[headNextOff:]))
}

// SetNext sets the following page in the chain.
func (h HeadPage) SetNext(id PageID) {
	binary.LittleEndian.PutUint64(h.buf[headNextOff:], uint64(id))
}

// Payload returns the head page's payload region.
func (h HeadPage) Payload() []byte { return h.buf[HeadOverhead:] }

// Bytes returns the underlying page buffer.
func (h HeadPage) Bytes() []byte { return h.buf }

// --- Continuation / Free Page ---

// ContPage wraps a raw page buffer as a continuation page. Free pages use
// the same layout with the next field linking the free list.
type ContPage struct {
	buf []byte
}

// WrapContPage wraps an existing continuation page buffer.
func WrapContPage(buf []byte) ContPage { return ContPage{buf: buf} }

// InitContPage formats buf as a continuation page with no next.
func InitContPage(buf []byte) ContPage {
	clear(buf)
	buf[kindOff] = PageKindCont
	c := ContPage{buf: buf}
	c.SetNext(NilPageID)
	return c
}

// InitFreePage formats buf as a free page linking to next. The payload is
// zeroed so freed data does not linger on disk.
func InitFreePage(buf []byte, next PageID) ContPage {
	clear(buf)
	buf[kindOff] = PageKindFree
	c := ContPage{buf: buf}
	c.SetNext(next)
	return c
}

// Next returns the following page, or NilPageID.
func (c ContPage) Next() PageID {
	return PageID(binary.LittleEndian.Uint64(c.buf[contNextOff:]))
}

// SetNext sets the following page.
func (c ContPage) SetNext(id PageID) {
	binary.LittleEndian.PutUint64(c.buf[contNextOff:], uint64(id))
}

// Payload returns the continuation page's payload region.
func (c ContPage) Payload() []byte { return c.buf[ContOverhead:] }

// Bytes returns the underlying page buffer.
func (c ContPage) Bytes() []byte { return c.buf }
