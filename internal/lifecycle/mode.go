package lifecycle

import (
	"fmt"
	"strings"
)

// RunMode is the execution context the diagnostic server runs under.
// The zero value means no mode.
type RunMode int

const (
	// ModeNormal is an ordinary background task.
	ModeNormal RunMode = iota + 1
	// ModeForeground is a foreground task that keeps a desktop notification up.
	ModeForeground
	// ModeElevated is a privileged background mode that survives UI teardown.
	ModeElevated
)

// Modes lists every valid mode in ascending precedence.
var Modes = []RunMode{ModeNormal, ModeForeground, ModeElevated}

func (m RunMode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeForeground:
		return "foreground"
	case ModeElevated:
		return "elevated"
	default:
		return "none"
	}
}

// Valid reports whether m is one of the defined modes.
func (m RunMode) Valid() bool {
	return m >= ModeNormal && m <= ModeElevated
}

// Outranks reports whether m takes precedence over other.
// Elevated outranks foreground, which outranks normal.
func (m RunMode) Outranks(other RunMode) bool {
	return m > other
}

// RunningMessage is the status line shown while the server runs in m.
func (m RunMode) RunningMessage() string {
	switch m {
	case ModeElevated:
		return "Local server is running in elevated mode"
	case ModeForeground:
		return "Local server is running in foreground mode"
	default:
		return "Local server is running"
	}
}

// Indicator is the short footer text on the status page.
func (m RunMode) Indicator() string {
	if m == ModeElevated {
		return "Elevated mode is on"
	}
	return fmt.Sprintf("Elevated mode is off (%s mode)", m)
}

// ParseRunMode converts a mode name to a RunMode.
func ParseRunMode(s string) (RunMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal", "background":
		return ModeNormal, nil
	case "foreground", "notified":
		return ModeForeground, nil
	case "elevated", "persistent":
		return ModeElevated, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m RunMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. "none" and "" decode to
// the zero value.
func (m *RunMode) UnmarshalText(text []byte) error {
	s := string(text)
	if s == "" || s == "none" {
		*m = 0
		return nil
	}
	parsed, err := ParseRunMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// BootMode picks the mode to start after a device restart: elevated when it
// is enabled and the process holds the privilege for it, otherwise normal.
func BootMode(elevatedEnabled, privileged bool) RunMode {
	if elevatedEnabled && privileged {
		return ModeElevated
	}
	return ModeNormal
}
