//go:build !linux

package platform

import "context"

// SyscallRebooter is only implemented on Linux.
type SyscallRebooter struct{}

func (SyscallRebooter) Reboot(context.Context) error {
	return ErrUnsupported
}
