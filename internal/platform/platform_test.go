package platform

import (
	"context"
	"errors"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestOS(t *testing.T) {
	if OS() != runtime.GOOS {
		t.Errorf("OS() = %s, want %s", OS(), runtime.GOOS)
	}
	if IsLinux() != (runtime.GOOS == "linux") {
		t.Errorf("IsLinux() = %v", IsLinux())
	}
	if IsWindows() != (runtime.GOOS == "windows") {
		t.Errorf("IsWindows() = %v", IsWindows())
	}
}

func TestIsRoot(t *testing.T) {
	if IsWindows() {
		t.Skip("Skipping euid check on Windows")
	}
	if IsRoot() != (os.Geteuid() == 0) {
		t.Errorf("IsRoot() = %v, euid = %d", IsRoot(), os.Geteuid())
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()
	if dir == "" {
		t.Fatal("ConfigDir() returned empty string")
	}

	if !IsRoot() {
		home, err := os.UserHomeDir()
		if err != nil {
			t.Fatalf("Failed to get home dir: %v", err)
		}
		if want := filepath.Join(home, ".ilocalserver"); dir != want {
			t.Errorf("ConfigDir() as non-root = %s, want %s", dir, want)
		}
		return
	}

	if runtime.GOOS == "linux" && dir != "/etc/ilocalserver" {
		t.Errorf("ConfigDir() on Linux as root = %s, want /etc/ilocalserver", dir)
	}
}

func TestLocalIPv4(t *testing.T) {
	ip := net.ParseIP(LocalIPv4())
	if ip == nil || ip.To4() == nil {
		t.Fatalf("LocalIPv4() = %q, want an IPv4 address", LocalIPv4())
	}
	if ip.IsLoopback() && ip.String() != FallbackIPv4 {
		t.Errorf("LocalIPv4() returned loopback %s other than the fallback", ip)
	}
}

func TestFirstIPv4(t *testing.T) {
	ipNet := func(s string) net.Addr {
		_, n, err := net.ParseCIDR(s)
		if err != nil {
			t.Fatal(err)
		}
		ip, _, _ := net.ParseCIDR(s)
		return &net.IPNet{IP: ip, Mask: n.Mask}
	}

	tests := []struct {
		name  string
		addrs []net.Addr
		want  string
	}{
		{name: "empty", addrs: nil, want: ""},
		{name: "loopback only", addrs: []net.Addr{ipNet("127.0.0.1/8")}, want: ""},
		{name: "ipv6 only", addrs: []net.Addr{ipNet("fe80::1/64")}, want: ""},
		{
			name:  "skips loopback and ipv6",
			addrs: []net.Addr{ipNet("127.0.0.1/8"), ipNet("fe80::1/64"), ipNet("192.168.1.23/24")},
			want:  "192.168.1.23",
		},
		{
			name:  "first wins",
			addrs: []net.Addr{ipNet("10.0.0.5/8"), ipNet("192.168.1.23/24")},
			want:  "10.0.0.5",
		},
		{name: "ip addr", addrs: []net.Addr{&net.IPAddr{IP: net.ParseIP("172.16.0.9")}}, want: "172.16.0.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := firstIPv4(tt.addrs); got != tt.want {
				t.Errorf("firstIPv4() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewCommandRebooterDefault(t *testing.T) {
	r := NewCommandRebooter(nil)
	if got := strings.Join(r.Command(), " "); got != "su -c reboot" {
		t.Errorf("Command() = %q, want su -c reboot", got)
	}

	custom := []string{"systemctl", "reboot"}
	r = NewCommandRebooter(custom)
	custom[0] = "changed"
	if r.Command()[0] != "systemctl" {
		t.Error("NewCommandRebooter should copy its argument")
	}
}

func TestCommandRebooterMissingBinary(t *testing.T) {
	r := NewCommandRebooter([]string{"ilocalserver-no-such-binary", "now"})

	err := r.Reboot(context.Background())
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("Reboot() error = %v, want *ExecError", err)
	}
	if !errors.Is(err, exec.ErrNotFound) {
		t.Errorf("error should wrap exec.ErrNotFound, got %v", err)
	}
}

func TestCommandRebooterFailure(t *testing.T) {
	if IsWindows() {
		t.Skip("Skipping sh-based test on Windows")
	}
	r := NewCommandRebooter([]string{"sh", "-c", "echo not permitted >&2; exit 3"})

	err := r.Reboot(context.Background())
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("Reboot() error = %v, want *ExecError", err)
	}
	if !strings.Contains(execErr.Output, "not permitted") {
		t.Errorf("Output = %q, want command output", execErr.Output)
	}
	if !strings.Contains(err.Error(), "exit status 3") {
		t.Errorf("Error() = %q, want exit status", err.Error())
	}
}

func TestCommandRebooterSuccess(t *testing.T) {
	if IsWindows() {
		t.Skip("Skipping sh-based test on Windows")
	}
	r := NewCommandRebooter([]string{"sh", "-c", "exit 0"})
	if err := r.Reboot(context.Background()); err != nil {
		t.Errorf("Reboot() error = %v", err)
	}
}

func TestCommandRebooterContextCancel(t *testing.T) {
	if IsWindows() {
		t.Skip("Skipping sh-based test on Windows")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := NewCommandRebooter([]string{"sleep", "5"}).Reboot(ctx)
	if err == nil {
		t.Fatal("Reboot() should fail when the context expires")
	}
	if time.Since(start) > 3*time.Second {
		t.Error("Reboot() did not honor the context")
	}
}

func TestSyscallRebooterCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := SyscallRebooter{}.Reboot(ctx)
	if err == nil {
		t.Fatal("Reboot() with a cancelled context must not succeed")
	}
	if IsLinux() && !errors.Is(err, context.Canceled) {
		t.Errorf("Reboot() error = %v, want context.Canceled", err)
	}
}
