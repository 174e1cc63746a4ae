package ioctl

import (
	"bytes"
)

// https://github.com/torvalds/linux/blob/master/include/uapi/asm-generic/ioctl.h
const (
	none  = 0
	write = 1
	read  = 2
)

func Str(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

func io(mode byte, type_ byte, number byte, size uintptr) uint {
	return uint(mode)<<30 | uint(size&0x3FFF)<<16 | uint(type_)<<8 | uint(number)
}

func IO(type_ byte, number byte) uint {
	return io(none, type_, number, 0)
}

func IOR(type_ byte, number byte, size uintptr) uint {
	return io(read, type_, number, size)
}

func IOW(type_ byte, number byte, size uintptr) uint {
	return io(write, type_, number, size)
}

func IORW(type_ byte, number byte, size uintptr) uint {
	return io(read|write, type_, number, size)
}
