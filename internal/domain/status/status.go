// Package status is the catalog of the four duty statuses a driver can be in,
// their fixed plotting order and the translation between wire codes and
// display labels.
package status

import (
	"fmt"
	"strings"
)

// Status is a canonical duty status.
type Status uint8

// Canonical statuses, in display-axis order.
const (
	OffDuty Status = iota
	SleeperBerth
	Driving
	OnDuty
)

// Count is the number of canonical statuses.
const Count = 4

type entry struct {
	wire  string
	label string
}

var catalog = [Count]entry{
	OffDuty:      {wire: "off_duty", label: "Off Duty"},
	SleeperBerth: {wire: "sleeper_berth", label: "Sleeper Berth"},
	Driving:      {wire: "driving", label: "Driving"},
	OnDuty:       {wire: "on_duty", label: "On Duty"},
}

// Order returns the canonical statuses in display order.
func Order() []Status {
	return []Status{OffDuty, SleeperBerth, Driving, OnDuty}
}

// Valid reports whether s is one of the canonical statuses.
func (s Status) Valid() bool { return s < Count }

// Level is the row index of s on the display axis.
func (s Status) Level() int { return int(s) }

// String returns the display label.
func (s Status) String() string { return Label(s) }

// ToCanonical translates an exact wire code.
func ToCanonical(wire string) (Status, error) {
	for i, e := range catalog {
		if e.wire == wire {
			return Status(i), nil
		}
	}
	return OffDuty, fmt.Errorf("%w: %q", ErrUnknownStatusCode, wire)
}

// ToWire returns the wire code of s, or "" if s is not canonical.
func ToWire(s Status) string {
	if !s.Valid() {
		return ""
	}
	return catalog[s].wire
}

// Label returns the display label of s.
func Label(s Status) string {
	if !s.Valid() {
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
	return catalog[s].label
}

// Match resolves a status written by any producer: wire codes, display
// labels and their case or separator variants ("DRIVING", "off-duty",
// "Sleeper Berth") all resolve.
func Match(raw string) (Status, bool) {
	key := fold(raw)
	if key == "" {
		return OffDuty, false
	}
	for i, e := range catalog {
		if key == fold(e.wire) || key == fold(e.label) {
			return Status(i), true
		}
	}
	return OffDuty, false
}

// MatchOrFallback is Match with the display fallback applied. fallback is
// true when raw did not resolve and OffDuty was substituted.
func MatchOrFallback(raw string) (s Status, fallback bool) {
	s, ok := Match(raw)
	return s, !ok
}

func fold(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_':
			return -1
		}
		return r
	}, s)
}

// MarshalText encodes s as its wire code.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStatusCode, uint8(s))
	}
	return []byte(catalog[s].wire), nil
}

// UnmarshalText accepts anything Match accepts.
func (s *Status) UnmarshalText(b []byte) error {
	v, ok := Match(string(b))
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStatusCode, string(b))
	}
	*s = v
	return nil
}
