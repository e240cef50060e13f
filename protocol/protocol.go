// Package protocol holds the IR signal vocabulary: raw pulse sequences and
// the coarse protocol families they are tagged with.
package protocol

import "strings"

// Pulses is a captured IR signal as alternating mark/space durations in
// microseconds, starting with the first mark after the line leaves idle.
type Pulses []int

// Header returns the leading duration, or 0 for an empty sequence.
func (p Pulses) Header() int {
	if len(p) == 0 {
		return 0
	}
	return p[0]
}

// Clone returns a copy that shares no storage with p.
func (p Pulses) Clone() Pulses {
	if p == nil {
		return nil
	}
	c := make(Pulses, len(p))
	copy(c, p)
	return c
}

type Tag string

const (
	NEC     Tag = "NEC"
	Sony    Tag = "Sony"
	RC5     Tag = "RC5"
	Unknown Tag = "Unknown"
)

func (t Tag) String() string {
	return string(t)
}

var tags = []Tag{NEC, Sony, RC5, Unknown}

// ParseTag matches s against the known tags ignoring case, so files that
// spell a tag "unknown" or "nec" still load.
func ParseTag(s string) (Tag, bool) {
	for _, t := range tags {
		if strings.EqualFold(s, string(t)) {
			return t, true
		}
	}
	return Unknown, false
}

// headerRange matches a header duration in the half open interval [Min, Max).
type headerRange struct {
	Min int
	Max int
	Tag Tag
}

func (r headerRange) match(us int) bool {
	return us >= r.Min && us < r.Max
}

// evaluated in order, first match wins
var headers = []headerRange{
	{Min: 8000, Max: 10000, Tag: NEC}, // ~9ms AGC burst
	{Min: 2000, Max: 3000, Tag: Sony}, // ~2.4ms start
	{Min: 3000, Max: 4000, Tag: RC5},  // ~3.6ms
}

// Classify tags a capture by its header duration. It is a fingerprint for
// the operator, not a decoder.
func Classify(p Pulses) Tag {
	if len(p) == 0 {
		return Unknown
	}
	h := p.Header()
	for _, r := range headers {
		if r.match(h) {
			return r.Tag
		}
	}
	return Unknown
}
