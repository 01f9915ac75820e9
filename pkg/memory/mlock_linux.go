//go:build linux

package memory

import "golang.org/x/sys/unix"

// LockAll pins current and future pages in RAM. Deployments that
// cannot afford a page fault during a burst enable this; it needs
// CAP_IPC_LOCK or a generous memlock rlimit.
func LockAll() error {
	return unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE)
}

func UnlockAll() error {
	return unix.Munlockall()
}
