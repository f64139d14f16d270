package command

import "strings"

// RuntimeOptions is the opaque options bag attached to a LaunchDescriptor.
// The launcher only needs the options rendered as invocation flags.
type RuntimeOptions interface {
	// Args returns the options as individual command-line arguments,
	// in the order they should appear on the invocation.
	Args() []string

	// String renders the options for diagnostics.
	String() string
}

// OptionSet is an ordered list of runtime options (e.g. -Xmx512m style
// flags for a JVM entry point). Order is preserved; later additions
// appear later on the command line.
type OptionSet struct {
	opts []string
}

// NewOptionSet creates an OptionSet seeded with the given options.
// Blank options are skipped.
func NewOptionSet(opts ...string) *OptionSet {
	s := &OptionSet{}
	return s.Add(opts...)
}

// Add appends options, trimming surrounding whitespace and skipping
// blanks. Returns the set for chaining.
func (s *OptionSet) Add(opts ...string) *OptionSet {
	for _, o := range opts {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		s.opts = append(s.opts, o)
	}
	return s
}

// Override replaces the first option starting with prefix, or appends
// replacement if no option matches. Returns the set for chaining.
func (s *OptionSet) Override(prefix, replacement string) *OptionSet {
	replacement = strings.TrimSpace(replacement)
	if replacement == "" {
		return s
	}
	for i, o := range s.opts {
		if strings.HasPrefix(o, prefix) {
			s.opts[i] = replacement
			return s
		}
	}
	s.opts = append(s.opts, replacement)
	return s
}

// Args returns a copy of the options in order.
func (s *OptionSet) Args() []string {
	out := make([]string, len(s.opts))
	copy(out, s.opts)
	return out
}

// Len returns the number of options in the set.
func (s *OptionSet) Len() int {
	return len(s.opts)
}

// String renders the options space-separated.
func (s *OptionSet) String() string {
	return strings.Join(s.opts, " ")
}
