package layout

import (
	"encoding/binary"
	"strings"
)

// Format - V4L2 fourcc pixel format
type Format uint32

func fourcc(s string) Format {
	return Format(binary.LittleEndian.Uint32([]byte(s)))
}

var (
	FormatNV12 = fourcc("NV12")
	FormatNV21 = fourcc("NV21")
	FormatNV16 = fourcc("NV16")
	FormatNV61 = fourcc("NV61")
	FormatYV12 = fourcc("YV12")
	FormatYU12 = fourcc("YU12")
	FormatYUYV = fourcc("YUYV")
	FormatYVYU = fourcc("YVYU")
	FormatUYVY = fourcc("UYVY")
	FormatVYUY = fourcc("VYUY")

	FormatRaw8       = fourcc("BA81") // SBGGR8
	FormatRaw10      = fourcc("pBAA") // SBGGR10P, MIPI packed
	FormatRaw12      = fourcc("pBCC") // SBGGR12P, MIPI packed
	FormatRaw14      = fourcc("pBEE") // SBGGR14P, MIPI packed
	FormatRaw10Plain = fourcc("BG10") // 16 bit per pixel
	FormatRaw12Plain = fourcc("BG12")

	FormatJPEG = fourcc("JPEG")
	FormatMeta = fourcc("QMET")
)

func (f Format) String() string {
	b := binary.LittleEndian.AppendUint32(nil, uint32(f))
	return string(b)
}

type formatInfo struct {
	Format Format
	Name   string
	Alias  string
}

// Formats - supported formats with config names (Alias is ffmpeg-like name)
var Formats = []formatInfo{
	{FormatNV12, "NV12", "nv12"},
	{FormatNV21, "NV21", "nv21"},
	{FormatNV16, "NV16", "nv16"},
	{FormatNV61, "NV61", "nv61"},
	{FormatYV12, "YV12", "yv12"},
	{FormatYU12, "YU12", "yuv420p"},
	{FormatYUYV, "YUYV", "yuyv422"},
	{FormatYVYU, "YVYU", "yvyu422"},
	{FormatUYVY, "UYVY", "uyvy422"},
	{FormatVYUY, "VYUY", "vyuy422"},
	{FormatRaw8, "RAW8", "bayer_bggr8"},
	{FormatRaw10, "RAW10", "raw10"},
	{FormatRaw12, "RAW12", "raw12"},
	{FormatRaw14, "RAW14", "raw14"},
	{FormatRaw10Plain, "RAW10_PLAIN16", "bayer_bggr16"},
	{FormatRaw12Plain, "RAW12_PLAIN16", "raw12_plain16"},
	{FormatJPEG, "JPEG", "mjpeg"},
	{FormatMeta, "META", "meta"},
}

// ParseFormat accept name, alias or raw fourcc
func ParseFormat(s string) (Format, bool) {
	for _, info := range Formats {
		if strings.EqualFold(s, info.Name) || s == info.Alias || s == info.Format.String() {
			return info.Format, true
		}
	}
	return 0, false
}

func (f Format) Name() string {
	for _, info := range Formats {
		if info.Format == f {
			return info.Name
		}
	}
	return f.String()
}
