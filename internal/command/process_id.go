// Package command describes how to launch a managed child process.
//
// A LaunchDescriptor is pure configuration data: it owns no handles and
// no goroutines. It is populated single-threaded during a configuration
// phase, then handed to the launcher/supervisor which only reads it.
package command

import "strings"

// ProcessID identifies which managed process role a descriptor configures.
// It is fixed at descriptor construction.
type ProcessID string

// String returns the identity token.
func (p ProcessID) String() string {
	return string(p)
}

// Valid reports whether the identity is usable: non-empty, and limited to
// lowercase letters, digits and dashes so it can appear in metric labels
// and log keys unescaped.
func (p ProcessID) Valid() bool {
	if p == "" {
		return false
	}
	for _, r := range p {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}
	return true
}

// NormalizeProcessID lowercases and trims an identity string.
// Validation is still the caller's job via Valid.
func NormalizeProcessID(s string) ProcessID {
	return ProcessID(strings.ToLower(strings.TrimSpace(s)))
}
