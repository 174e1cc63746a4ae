//go:build linux

package camera

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestHandles(t *testing.T) {
	cam := newTestCamera(t, newFakeDevice(t))

	ch1, err := cam.AddChannel("main")
	require.Nil(t, err)
	ch2, err := cam.AddChannel("aux")
	require.Nil(t, err)

	require.NotZero(t, ch1.Handle())
	require.NotEqual(t, ch1.Handle(), ch2.Handle())
	require.Equal(t, ch2, cam.Channel(ch2.Handle()))
	require.Equal(t, ch1, cam.ChannelByName("main"))

	var streams []*Stream
	for i := 0; i < MaxStreams; i++ {
		s, err := ch1.AddStream()
		require.Nil(t, err)
		require.NotZero(t, s.Handle())
		streams = append(streams, s)
	}

	_, err = ch1.AddStream()
	require.ErrorIs(t, err, ErrStreamsFull)

	old := streams[2].Handle()
	require.Nil(t, ch1.DelStream(old))
	require.Nil(t, ch1.Stream(old))
	require.ErrorIs(t, ch1.DelStream(old), ErrNotFound)

	// slot reused with new handle
	s, err := ch1.AddStream()
	require.Nil(t, err)
	require.Equal(t, old&0xFF, s.Handle()&0xFF)
	require.NotEqual(t, old, s.Handle())
	require.Equal(t, s, ch1.Stream(s.Handle()))
	require.Len(t, ch1.Streams(), MaxStreams)

	require.Nil(t, cam.DelChannel(ch2.Handle()))
	require.Nil(t, cam.Channel(ch2.Handle()))
	require.Len(t, cam.Channels(), 1)
}

func TestChannelStartStop(t *testing.T) {
	// every stream opens its own descriptor
	cam := NewCamera("/dev/fake", func(string) (Device, error) {
		return newFakeDevice(t), nil
	}, zerolog.Nop())
	defer cam.Close()

	ch, err := cam.AddChannel("main")
	require.Nil(t, err)

	var streams []*Stream
	for i := 0; i < 3; i++ {
		s, err := ch.AddStream()
		require.Nil(t, err)
		require.Nil(t, s.Acquire())
		require.Nil(t, s.SetFormat(testConfig(2, 0)))
		require.Nil(t, s.GetBufs())
		require.Nil(t, s.RegBufs())
		streams = append(streams, s)
	}

	require.Nil(t, ch.Start())
	for _, s := range streams {
		require.Equal(t, StateActive, s.State())
	}

	require.Nil(t, ch.Stop())
	for _, s := range streams {
		require.Equal(t, StateReg, s.State())
	}

	require.Nil(t, cam.Close())
	for _, s := range streams {
		require.Equal(t, StateNotUsed, s.State())
	}
	require.Empty(t, cam.Channels())
}

// TestChannelStartRollback - failed start keeps streams that were already active
func TestChannelStartRollback(t *testing.T) {
	devs := []*fakeDevice{newFakeDevice(t), newFakeDevice(t), newFakeDevice(t)}
	var opened int
	cam := NewCamera("/dev/fake", func(string) (Device, error) {
		dev := devs[opened]
		opened++
		return dev, nil
	}, zerolog.Nop())
	defer cam.Close()

	ch, err := cam.AddChannel("main")
	require.Nil(t, err)

	var streams []*Stream
	for i := 0; i < 3; i++ {
		s, err := ch.AddStream()
		require.Nil(t, err)
		require.Nil(t, s.Acquire())
		require.Nil(t, s.SetFormat(testConfig(2, 0)))
		require.Nil(t, s.GetBufs())
		require.Nil(t, s.RegBufs())
		streams = append(streams, s)
	}

	require.Nil(t, streams[1].Start())
	devs[2].setStreamOnErr(unix.EIO)

	require.ErrorIs(t, ch.Start(), unix.EIO)
	require.Equal(t, StateReg, streams[0].State())
	require.Equal(t, StateActive, streams[1].State())
	require.Equal(t, StateReg, streams[2].State())
}
