package pagestore

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCapacities(t *testing.T) {
	// The head page loses the total length field on top of the next
	// pointer, so its capacity must stay strictly below a continuation's.
	require.Less(t, HeadCapacity(4096), ContCapacity(4096))
	require.Equal(t, 4096-HeadOverhead, HeadCapacity(4096))
	require.Equal(t, 4096-ContOverhead, ContCapacity(4096))
}

func TestChainPages(t *testing.T) {
	const pageSize = 64
	h := uint64(HeadCapacity(pageSize))
	c := uint64(ContCapacity(pageSize))

	// An empty chain still occupies its head page.
	require.Equal(t, uint64(1), ChainPages(0, pageSize))
	require.Equal(t, uint64(1), ChainPages(1, pageSize))
	require.Equal(t, uint64(1), ChainPages(h, pageSize))
	require.Equal(t, uint64(2), ChainPages(h+1, pageSize))
	require.Equal(t, uint64(2), ChainPages(h+c, pageSize))
	require.Equal(t, uint64(3), ChainPages(h+c+1, pageSize))

	// Lengths near the top of the range must not wrap to a tiny page
	// count; they come from corrupt head pages.
	require.Equal(t, 1+(math.MaxUint64-h)/c+1, ChainPages(math.MaxUint64, pageSize))
	require.GreaterOrEqual(t, ChainPages(math.MaxUint64-c, pageSize), math.MaxUint64/c)
}

func TestHeadPageCodec(t *testing.T) {
	buf := make([]byte, 128)
	head := InitHeadPage(buf)

	require.Equal(t, PageKindHead, PageKind(buf))
	require.Equal(t, uint64(0), head.TotalLength())
	require.Equal(t, NilPageID, head.Next())
	require.Len(t, head.Payload(), HeadCapacity(128))

	head.SetTotalLength(12345)
	head.SetNext(PageID(7))
	copy(head.Payload(), "payload")

	reread := WrapHeadPage(buf)
	require.Equal(t, uint64(12345), reread.TotalLength())
	require.Equal(t, PageID(7), reread.Next())
	require.Equal(t, []byte("payload"), reread.Payload()[:7])
}

func TestContPageCodec(t *testing.T) {
	buf := make([]byte, 128)
	cont := InitContPage(buf)

	require.Equal(t, PageKindCont, PageKind(buf))
	require.Equal(t, NilPageID, cont.Next())
	require.Len(t, cont.Payload(), ContCapacity(128))

	cont.SetNext(PageID(3))
	require.Equal(t, PageID(3), WrapContPage(buf).Next())
}

func TestInitFreePageScrubsPayload(t *testing.T) {
	buf := make([]byte, 128)
	for i := range buf {
		buf[i] = 0xAB
	}

	free := InitFreePage(buf, PageID(9))
	require.Equal(t, PageKindFree, PageKind(buf))
	require.Equal(t, PageID(9), free.Next())
	for _, b := range free.Payload() {
		require.Zero(t, b, "freed payload must be scrubbed")
	}
}
