// Package platform wraps the host facilities the server depends on:
// privilege checks, the LAN address, and rebooting the device.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
)

// OS returns the current operating system
func OS() string {
	return runtime.GOOS
}

// IsLinux returns true if running on Linux
func IsLinux() bool {
	return runtime.GOOS == "linux"
}

// IsWindows returns true if running on Windows
func IsWindows() bool {
	return runtime.GOOS == "windows"
}

// IsRoot checks if the current user has root/admin privileges
func IsRoot() bool {
	if IsWindows() {
		return isWindowsAdmin()
	}
	return os.Geteuid() == 0
}

// ConfigDir returns the directory holding config and logs.
// Uses a system-wide path when running as root, user-local otherwise.
func ConfigDir() string {
	if !IsRoot() {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".ilocalserver")
		}
	}
	if IsWindows() {
		return `C:\ProgramData\ILocalServer`
	}
	return "/etc/ilocalserver"
}
