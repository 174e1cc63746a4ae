package ioctl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIOR(t *testing.T) {
	// #define SNDRV_PCM_IOCTL_INFO		_IOR('A', 0x01, struct snd_pcm_info)
	require.Equal(t, uint(0x81204101), IOR('A', 0x01, 288))
}

func TestVideoRequests(t *testing.T) {
	// #define VIDIOC_REQBUFS		_IOWR('V',  8, struct v4l2_requestbuffers)
	require.Equal(t, uint(0xc0145608), IORW('V', 8, 20))
	// #define VIDIOC_STREAMON		 _IOW('V', 18, int)
	require.Equal(t, uint(0x40045612), IOW('V', 18, 4))
	// #define VIDIOC_QUERYCAP		 _IOR('V',  0, struct v4l2_capability)
	require.Equal(t, uint(0x80685600), IOR('V', 0, 104))
	// #define VIDIOC_QBUF		_IOWR('V', 15, struct v4l2_buffer), 64 bit
	require.Equal(t, uint(0xc058560f), IORW('V', 15, 88))
}

func TestStr(t *testing.T) {
	require.Equal(t, "uvcvideo", Str([]byte("uvcvideo\x00\x00\x00")))
	require.Equal(t, "abc", Str([]byte("abc")))
}
