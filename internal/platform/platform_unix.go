//go:build !windows

package platform

// isWindowsAdmin is only meaningful on Windows; IsRoot uses the euid elsewhere.
func isWindowsAdmin() bool {
	return false
}
