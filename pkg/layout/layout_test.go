package layout

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNV12(t *testing.T) {
	g, err := Calc(FormatNV12, 1280, 720, Padding{Width: 16, Height: 16, Plane: 16})
	require.Nil(t, err)
	require.Len(t, g.Planes, 2)

	require.Equal(t, 921600, g.Planes[0].Len)
	require.Equal(t, 460800, g.Planes[1].Len)
	require.Equal(t, 921600, g.Planes[1].Offset)
	require.Equal(t, 1280, g.Planes[1].Stride)
	require.Equal(t, 360, g.Planes[1].Scanline)

	// 1382400 rounded up to page
	require.Equal(t, 1384448, g.FrameLen)
	require.Zero(t, g.FrameLen%PageSize)
}

func TestPadding(t *testing.T) {
	g, err := Calc(FormatNV21, 1000, 750, Padding{Width: 32, Height: 32, Plane: 4096})
	require.Nil(t, err)

	require.Equal(t, 1024, g.Planes[0].Stride)
	require.Equal(t, 768, g.Planes[0].Scanline)
	require.Equal(t, 1024*768, g.Planes[0].Len)
	require.Equal(t, 384, g.Planes[1].Scanline)
	require.Zero(t, g.Planes[1].Len%4096)

	g, err = Calc(FormatYUYV, 640, 480, Padding{MinStride: 2048, MinScanline: 500})
	require.Nil(t, err)
	require.Equal(t, 2048, g.Planes[0].Stride)
	require.Equal(t, 500, g.Planes[0].Scanline)
}

func TestFormats(t *testing.T) {
	pad := Padding{Width: 16, Height: 2, Plane: 16}

	tests := []struct {
		format  Format
		planes  int
		stride0 int
	}{
		{FormatNV12, 2, 1920},
		{FormatNV16, 2, 1920},
		{FormatYV12, 3, 1920},
		{FormatYU12, 3, 1920},
		{FormatYUYV, 1, 3840},
		{FormatUYVY, 1, 3840},
		{FormatRaw8, 1, 1920},
		{FormatRaw10, 1, 2400},
		{FormatRaw12, 1, 2880},
		{FormatRaw14, 1, 3360},
		{FormatRaw10Plain, 1, 3840},
		{FormatJPEG, 1, 1920},
	}

	for _, test := range tests {
		t.Run(test.format.String(), func(t *testing.T) {
			g, err := Calc(test.format, 1920, 1080, pad)
			require.Nil(t, err)
			require.Len(t, g.Planes, test.planes)
			require.Equal(t, test.stride0, g.Planes[0].Stride)
		})
	}

	g, err := Calc(FormatNV16, 1920, 1080, pad)
	require.Nil(t, err)
	require.Equal(t, g.Planes[0].Len, g.Planes[1].Len)

	g, err = Calc(FormatYV12, 1920, 1080, pad)
	require.Nil(t, err)
	require.Equal(t, 960, g.Planes[1].Stride)
	require.Equal(t, 540, g.Planes[2].Scanline)
	require.Equal(t, g.Planes[1].Offset+g.Planes[1].Len, g.Planes[2].Offset)
}

func TestOddSize(t *testing.T) {
	g, err := Calc(FormatNV12, 641, 481, Padding{})
	require.Nil(t, err)
	require.Equal(t, 642, g.Planes[0].Stride)
	require.Equal(t, 481, g.Planes[0].Scanline)
	require.Equal(t, 642, g.Planes[1].Width)
	require.Equal(t, 241, g.Planes[1].Height)
	require.Equal(t, 241, g.Planes[1].Scanline)
	require.Equal(t, 642*241, g.Planes[1].Len)

	g, err = Calc(FormatYV12, 641, 481, Padding{})
	require.Nil(t, err)
	require.Equal(t, 641, g.Planes[0].Stride)
	for _, p := range g.Planes[1:] {
		require.Equal(t, 321, p.Stride)
		require.Equal(t, 321, p.Width)
		require.Equal(t, 241, p.Scanline)
		require.Equal(t, 241, p.Height)
		require.Equal(t, 321*241, p.Len)
	}

	for _, format := range []Format{FormatNV21, FormatNV16, FormatYU12} {
		g, err = Calc(format, 641, 481, Padding{Width: 16, Height: 2})
		require.Nil(t, err, format.String())
		for _, p := range g.Planes {
			require.GreaterOrEqual(t, p.Stride, p.Width, format.String())
			require.GreaterOrEqual(t, p.Scanline, p.Height, format.String())
		}
	}
}

func TestMeta(t *testing.T) {
	g, err := Calc(FormatMeta, 18000, 1, Padding{Plane: 4096})
	require.Nil(t, err)
	require.Len(t, g.Planes, 1)
	require.Equal(t, 20480, g.Planes[0].Len)
	require.Equal(t, 20480, g.FrameLen)
}

func TestUnsupported(t *testing.T) {
	_, err := Calc(fourcc("H264"), 1280, 720, Padding{})
	require.ErrorIs(t, err, ErrUnsupported)

	_, err = Calc(FormatNV12, 0, 720, Padding{})
	require.ErrorIs(t, err, ErrInvalidSize)
}

// TestRoundTrip lay out synthetic frame by geometry and read planes back
func TestRoundTrip(t *testing.T) {
	for _, info := range Formats {
		g, err := Calc(info.Format, 642, 482, Padding{Width: 32, Height: 4, Plane: 64})
		require.Nil(t, err, info.Name)

		frame := make([]byte, g.FrameLen)

		for i, p := range g.Planes {
			require.GreaterOrEqual(t, p.Stride, p.Width, info.Name)
			require.GreaterOrEqual(t, p.Scanline, p.Height, info.Name)
			require.GreaterOrEqual(t, p.Len, p.Stride*p.Scanline, info.Name)

			for y := 0; y < p.Height; y++ {
				line := frame[p.Offset+y*p.Stride:]
				for x := 0; x < p.Width; x++ {
					line[x] = byte(i + 1)
				}
			}
		}

		for i, p := range g.Planes {
			for y := 0; y < p.Height; y++ {
				line := frame[p.Offset+y*p.Stride:]
				for x := 0; x < p.Width; x++ {
					if line[x] != byte(i+1) {
						t.Fatalf("%s: plane %d overwritten at %d,%d", info.Name, i, x, y)
					}
				}
			}
		}
	}
}

func TestParseFormat(t *testing.T) {
	f, ok := ParseFormat("nv12")
	require.True(t, ok)
	require.Equal(t, FormatNV12, f)

	f, ok = ParseFormat("yuyv422")
	require.True(t, ok)
	require.Equal(t, FormatYUYV, f)

	f, ok = ParseFormat("pBAA")
	require.True(t, ok)
	require.Equal(t, FormatRaw10, f)
	require.Equal(t, "RAW10", f.Name())

	_, ok = ParseFormat("h264")
	require.False(t, ok)
}
