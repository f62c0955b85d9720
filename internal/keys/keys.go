// Package keys defines the abstract key codes used to script the guest.
// Adapters translate them to whatever their injection mechanism expects.
package keys

import "fmt"

// Code identifies one physical key on the host keyboard.
type Code uint16

// Letter keys.
const (
	A Code = iota + 1
	B
	C
	D
	E
	F
	G
	H
	I
	J
	K
	L
	M
	N
	O
	P
	Q
	R
	S
	T
	U
	V
	W
	X
	Y
	Z
)

// Digit keys.
const (
	Digit0 Code = iota + 100
	Digit1
	Digit2
	Digit3
	Digit4
	Digit5
	Digit6
	Digit7
	Digit8
	Digit9
)

// Punctuation and editing keys.
const (
	Period Code = iota + 200
	Minus
	Space
	Enter
	Backspace
	Escape
	Tab
)

// Modifier keys.
const (
	Shift Code = iota + 300
	Control
	Alternate
)

// Function keys. The ST keyboard stops at F10.
const (
	F1 Code = iota + 400
	F2
	F3
	F4
	F5
	F6
	F7
	F8
	F9
	F10
)

var names = map[Code]string{
	Period: "period", Minus: "minus", Space: "space", Enter: "enter",
	Backspace: "backspace", Escape: "escape", Tab: "tab",
	Shift: "shift", Control: "control", Alternate: "alternate",
}

// String returns a lowercase name for the key, e.g. "a", "7", "f10", "enter".
func (c Code) String() string {
	switch {
	case c >= A && c <= Z:
		return string(rune('a' + int(c-A)))
	case c >= Digit0 && c <= Digit9:
		return string(rune('0' + int(c-Digit0)))
	case c >= F1 && c <= F10:
		return fmt.Sprintf("f%d", int(c-F1)+1)
	}
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("Code(%d)", uint16(c))
}

// IsModifier reports whether c is a modifier key.
func (c Code) IsModifier() bool {
	return c == Shift || c == Control || c == Alternate
}

// ForRune returns the key that types r on the GEM file selector. Letters are
// case-insensitive since the guest upper-cases file names itself.
func ForRune(r rune) (Code, bool) {
	switch {
	case r >= 'a' && r <= 'z':
		return A + Code(r-'a'), true
	case r >= 'A' && r <= 'Z':
		return A + Code(r-'A'), true
	case r >= '0' && r <= '9':
		return Digit0 + Code(r-'0'), true
	case r == '.':
		return Period, true
	case r == '-':
		return Minus, true
	case r == ' ':
		return Space, true
	}
	return 0, false
}

// Rune is the inverse of ForRune for printable keys. Letters map to upper case.
func (c Code) Rune() (rune, bool) {
	switch {
	case c >= A && c <= Z:
		return rune('A' + int(c-A)), true
	case c >= Digit0 && c <= Digit9:
		return rune('0' + int(c-Digit0)), true
	case c == Period:
		return '.', true
	case c == Minus:
		return '-', true
	case c == Space:
		return ' ', true
	}
	return 0, false
}
