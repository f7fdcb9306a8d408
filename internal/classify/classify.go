// Package classify maps evaluation deltas to move quality labels.
package classify

import (
	"errors"
	"fmt"
)

// ErrUnknownQuality indicates a label that does not name a Quality.
var ErrUnknownQuality = errors.New("classify: unknown quality")

// Quality is a move quality label, ordered from worst to best.
type Quality int

// Quality labels. The zero value is Blunder.
const (
	Blunder Quality = iota
	Mistake
	Dubious
	SlightDisadvantage
	Equal
	SlightAdvantage
	ClearAdvantage
	WinningAdvantage
	DecisiveAdvantage
)

var names = [...]string{
	Blunder:            "blunder",
	Mistake:            "mistake",
	Dubious:            "dubious",
	SlightDisadvantage: "slight-disadvantage",
	Equal:              "equal",
	SlightAdvantage:    "slight-advantage",
	ClearAdvantage:     "clear-advantage",
	WinningAdvantage:   "winning-advantage",
	DecisiveAdvantage:  "decisive-advantage",
}

var symbols = [...]string{
	Blunder:            "??",
	Mistake:            "?",
	Dubious:            "?!",
	SlightDisadvantage: "∓",
	Equal:              "=",
	SlightAdvantage:    "⩲",
	ClearAdvantage:     "±",
	WinningAdvantage:   "+",
	DecisiveAdvantage:  "++",
}

// Classify returns the quality label for an evaluation delta given in
// centipawns from the mover's point of view.
func Classify(delta int) Quality {
	switch {
	case delta <= -300:
		return Blunder
	case delta <= -150:
		return Mistake
	case delta <= -75:
		return Dubious
	case delta < -30:
		return SlightDisadvantage
	case delta < 30:
		return Equal
	case delta < 75:
		return SlightAdvantage
	case delta < 150:
		return ClearAdvantage
	case delta < 300:
		return WinningAdvantage
	default:
		return DecisiveAdvantage
	}
}

// Valid reports whether q is one of the nine labels.
func (q Quality) Valid() bool {
	return q >= Blunder && q <= DecisiveAdvantage
}

// String returns the label name, e.g. "slight-advantage".
func (q Quality) String() string {
	if !q.Valid() {
		return fmt.Sprintf("Quality(%d)", int(q))
	}
	return names[q]
}

// Symbol returns the annotation glyph for the label, e.g. "??" for a blunder.
func (q Quality) Symbol() string {
	if !q.Valid() {
		return ""
	}
	return symbols[q]
}

// MarshalText implements encoding.TextMarshaler.
func (q Quality) MarshalText() ([]byte, error) {
	if !q.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownQuality, int(q))
	}
	return []byte(names[q]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
// Both label names and annotation symbols are accepted.
func (q *Quality) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// Parse returns the Quality named by s, which may be a label name or symbol.
func Parse(s string) (Quality, error) {
	for i := range names {
		if names[i] == s || symbols[i] == s {
			return Quality(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownQuality, s)
}
