//go:build linux

package platform

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"
)

// SyscallRebooter reboots through the reboot(2) syscall. It needs
// CAP_SYS_BOOT, which in practice means running as root.
type SyscallRebooter struct{}

// Reboot flushes filesystem buffers and restarts the machine.
func (SyscallRebooter) Reboot(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unix.Sync()
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART); err != nil {
		return fmt.Errorf("reboot syscall: %w", err)
	}
	return nil
}
