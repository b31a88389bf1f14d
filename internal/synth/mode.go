package synth

import (
	"fmt"
	"strings"
)

// Mode is the connectivity a synthesis request allows.
type Mode int

const (
	// ModeAuto tries every stage in priority order.
	ModeAuto Mode = iota

	// ModeOnline only tries stages that need network access.
	ModeOnline

	// ModeOffline only tries stages that run locally.
	ModeOffline
)

// String returns the wire spelling of the mode.
func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeOnline:
		return "online"
	case ModeOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// ParseMode converts a query or config value into a [Mode]. The empty string
// selects [ModeAuto].
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, nil
	case "online":
		return ModeOnline, nil
	case "offline":
		return ModeOffline, nil
	}
	return ModeAuto, fmt.Errorf("synth: unknown mode %q; valid values: auto, online, offline", s)
}

// Reach tags a stage by what it needs to run.
type Reach int

const (
	// Online stages call a remote service.
	Online Reach = iota

	// Offline stages run on this machine.
	Offline
)

// String returns the config spelling of the reach.
func (r Reach) String() string {
	if r == Offline {
		return "offline"
	}
	return "online"
}

// ParseReach converts a config value into a [Reach].
func ParseReach(s string) (Reach, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "online":
		return Online, nil
	case "offline":
		return Offline, nil
	}
	return Online, fmt.Errorf("synth: unknown reach %q; valid values: online, offline", s)
}

// allows reports whether a stage with reach r may run under m.
func (m Mode) allows(r Reach) bool {
	switch m {
	case ModeOnline:
		return r == Online
	case ModeOffline:
		return r == Offline
	default:
		return true
	}
}
