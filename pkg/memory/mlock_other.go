//go:build !linux

package memory

import "errors"

func LockAll() error {
	return errors.New("memory locking unsupported on this platform")
}

func UnlockAll() error {
	return nil
}
