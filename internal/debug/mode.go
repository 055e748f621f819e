package debug

import (
	"fmt"
	"strings"
)

// Mode selects how snapshots store state.
type Mode int

const (
	// ModeState stores only the partial state of the stores that reacted.
	ModeState Mode = iota
	// ModeFullState stores the full composed state.
	ModeFullState
	// ModeDiff stores the full composed state plus a diff to the
	// previous snapshot.
	ModeDiff
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeState:
		return "STATE"
	case ModeFullState:
		return "FULLSTATE"
	case ModeDiff:
		return "DIFF"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Valid reports whether m is one of the declared modes.
func (m Mode) Valid() bool {
	return m >= ModeState && m <= ModeDiff
}

// ParseMode parses a mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "STATE":
		return ModeState, nil
	case "FULLSTATE":
		return ModeFullState, nil
	case "DIFF":
		return ModeDiff, nil
	}
	return 0, fmt.Errorf("unknown history mode %q (want STATE, FULLSTATE or DIFF)", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid history mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
