package ioctl

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Ioctl retry on EINTR, like libv4l2 does
func Ioctl(fd int, req uint, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			continue
		}
		return errno
	}
}
