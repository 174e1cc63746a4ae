package layout

import (
	"errors"
	"fmt"
)

const (
	MaxPlanes = 3
	PageSize  = 4096
)

var (
	ErrUnsupported = errors.New("layout: unsupported format")
	ErrInvalidSize = errors.New("layout: invalid size")
)

// Padding - alignment policy, zero or one means no alignment
type Padding struct {
	Width       int `yaml:"width" json:"width"`
	Height      int `yaml:"height" json:"height"`
	Plane       int `yaml:"plane" json:"plane"`
	MinStride   int `yaml:"min_stride" json:"min_stride,omitempty"`
	MinScanline int `yaml:"min_scanline" json:"min_scanline,omitempty"`
	OffsetX     int `yaml:"offset_x" json:"offset_x,omitempty"`
	OffsetY     int `yaml:"offset_y" json:"offset_y,omitempty"`
}

type Plane struct {
	Offset   int `json:"offset"` // from start of the frame
	Len      int `json:"len"`
	Stride   int `json:"stride"`   // bytes per line
	Scanline int `json:"scanline"` // lines
	Width    int `json:"width"`    // meaningful bytes per line
	Height   int `json:"height"`   // meaningful lines
	OffsetX  int `json:"offset_x"`
	OffsetY  int `json:"offset_y"`
}

type Geometry struct {
	Format   Format  `json:"-"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Planes   []Plane `json:"planes"`
	FrameLen int     `json:"frame_len"`
}

// PadTo round size up to multiple of pad
func PadTo(size, pad int) int {
	if pad <= 1 {
		return size
	}
	return (size + pad - 1) / pad * pad
}

// Calc - plane geometry for format with dimensions and padding policy
func Calc(format Format, width, height int, pad Padding) (*Geometry, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}

	var planes []Plane

	switch format {
	case FormatNV12, FormatNV21:
		planes = semiPlanar(width, height, pad, 2)
	case FormatNV16, FormatNV61:
		planes = semiPlanar(width, height, pad, 1)
	case FormatYV12, FormatYU12:
		planes = planar(width, height, pad)
	case FormatYUYV, FormatYVYU, FormatUYVY, FormatVYUY:
		planes = packed(width*2, height, pad)
	case FormatRaw8:
		planes = packed(width, height, pad)
	case FormatRaw10:
		planes = packed(packedBytes(width, 4, 5), height, pad)
	case FormatRaw12:
		planes = packed(packedBytes(width, 2, 3), height, pad)
	case FormatRaw14:
		planes = packed(packedBytes(width, 4, 7), height, pad)
	case FormatRaw10Plain, FormatRaw12Plain:
		planes = packed(width*2, height, pad)
	case FormatJPEG:
		// compressed output, worst case size of YUV 4:2:0 frame
		planes = []Plane{{
			Len: PadTo(width*height*3/2, pad.Plane), Stride: width, Scanline: height,
			Width: width, Height: height,
		}}
	case FormatMeta:
		// width is the size of metadata blob
		planes = []Plane{{
			Len: PadTo(width*height, pad.Plane), Stride: width, Scanline: height,
			Width: width, Height: height,
		}}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, format)
	}

	g := &Geometry{Format: format, Width: width, Height: height, Planes: planes}

	var offset int
	for i := range g.Planes {
		g.Planes[i].Offset = offset
		offset += g.Planes[i].Len
	}
	g.FrameLen = PadTo(offset, PageSize)

	return g, nil
}

// packedBytes - bytes for line of width pixels where pixels occupy bytes in fixed ratio
func packedBytes(width, pixels, bytes int) int {
	return (width + pixels - 1) / pixels * bytes
}

func stride(lineBytes int, pad Padding) int {
	return max(PadTo(lineBytes, pad.Width), pad.MinStride)
}

func scanline(height int, pad Padding) int {
	return max(PadTo(height, pad.Height), pad.MinScanline)
}

// semiPlanar - luma plane + interleaved chroma plane, div is vertical chroma
// subsampling. Odd sizes round chroma up.
func semiPlanar(width, height int, pad Padding, div int) []Plane {
	line := (width + 1) / 2 * 2 // CbCr pairs
	s := stride(line, pad)
	h := scanline(height, pad)
	ch := (h + div - 1) / div

	return []Plane{
		{
			Len: PadTo(s*h, pad.Plane), Stride: s, Scanline: h,
			Width: width, Height: height, OffsetX: pad.OffsetX, OffsetY: pad.OffsetY,
		},
		{
			Len: PadTo(s*ch, pad.Plane), Stride: s, Scanline: ch,
			Width: line, Height: (height + div - 1) / div, OffsetX: pad.OffsetX, OffsetY: pad.OffsetY / div,
		},
	}
}

// planar - Y, Cb, Cr planes with 4:2:0 subsampling
func planar(width, height int, pad Padding) []Plane {
	s := stride(width, pad)
	h := scanline(height, pad)
	cs := PadTo((s+1)/2, pad.Width)
	ch := (h + 1) / 2

	chroma := Plane{
		Len: PadTo(cs*ch, pad.Plane), Stride: cs, Scanline: ch,
		Width: (width + 1) / 2, Height: (height + 1) / 2, OffsetX: pad.OffsetX / 2, OffsetY: pad.OffsetY / 2,
	}

	return []Plane{
		{
			Len: PadTo(s*h, pad.Plane), Stride: s, Scanline: h,
			Width: width, Height: height, OffsetX: pad.OffsetX, OffsetY: pad.OffsetY,
		},
		chroma,
		chroma,
	}
}

func packed(lineBytes, height int, pad Padding) []Plane {
	s := stride(lineBytes, pad)
	h := scanline(height, pad)

	return []Plane{{
		Len: PadTo(s*h, pad.Plane), Stride: s, Scanline: h,
		Width: lineBytes, Height: height, OffsetX: pad.OffsetX, OffsetY: pad.OffsetY,
	}}
}

// Sizes - per plane sizes and strides for the kernel format request
func (g *Geometry) Sizes() (sizes, strides []uint32) {
	for _, p := range g.Planes {
		sizes = append(sizes, uint32(p.Len))
		strides = append(strides, uint32(p.Stride))
	}
	return
}
