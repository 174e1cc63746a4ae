package camera

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPool(t *testing.T) {
	var p BufferPool
	p.init(make([]*Buffer, 3), []bool{true, true, false})

	require.Equal(t, []BufStatus{{}, {}, {RefCount: 1}}, p.Statuses())

	p.enqueued(0)
	p.enqueued(1)
	require.Equal(t, 2, p.QueuedCount())

	require.Nil(t, p.dequeued(0))
	require.NotNil(t, p.dequeued(0))
	require.Equal(t, 1, p.QueuedCount())

	p.hold(0, 3)
	for i := 0; i < 2; i++ {
		last, err := p.release(0)
		require.Nil(t, err)
		require.False(t, last)
	}
	last, err := p.release(0)
	require.Nil(t, err)
	require.True(t, last)
	require.True(t, p.idle(0))

	_, err = p.release(0)
	require.ErrorIs(t, err, ErrRefCount)

	_, err = p.release(3)
	require.ErrorIs(t, err, ErrBufIndex)

	// reserved buffer released by upper layer
	last, err = p.release(2)
	require.Nil(t, err)
	require.True(t, last)

	p.reset()
	require.Equal(t, []BufStatus{{}, {}, {RefCount: 1}}, p.Statuses())
	require.Zero(t, p.QueuedCount())

	p.clear()
	require.Zero(t, p.Len())
}

func TestTypes(t *testing.T) {
	require.Equal(t, "ACTIVE", StateActive.String())
	require.Equal(t, "NOTUSED", StateNotUsed.String())

	typ, ok := ParseStreamType("snapshot")
	require.True(t, ok)
	require.Equal(t, StreamSnapshot, typ)
	require.Equal(t, "snapshot", typ.String())

	_, ok = ParseStreamType("panorama")
	require.False(t, ok)
}
