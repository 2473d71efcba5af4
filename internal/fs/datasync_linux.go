//go:build linux

package fs

import "golang.org/x/sys/unix"

func datasync(fd uintptr, _ File) error {
	for {
		err := unix.Fdatasync(int(fd))
		if err != unix.EINTR {
			return err
		}
	}
}
