//go:build linux || darwin

package backend

import (
	"golang.org/x/sys/unix"
)

// nativeArch reports the machine architecture, which differs from GOARCH
// when running translated.
func nativeArch() string {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return ""
	}
	return unix.ByteSliceToString(u.Machine[:])
}
