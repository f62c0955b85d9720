// Package macro holds the scripted key sequences that drive the GFA-BASIC
// editor and compiler. The dictionary is data: it is built once at start-up
// and never modified.
package macro

import (
	"fmt"
	"slices"

	"github.com/seantiz/stbuild/internal/keys"
)

// Mode selects how a macro's keys are delivered.
type Mode int

const (
	// Sequential presses and releases each key before the next one.
	Sequential Mode = iota
	// Simultaneous presses every key, holds, then releases them all.
	Simultaneous
)

func (m Mode) String() string {
	switch m {
	case Sequential:
		return "sequential"
	case Simultaneous:
		return "simultaneous"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Macro is one scripted user action.
type Macro struct {
	Keys []keys.Code
	Mode Mode
}

// Action names an entry in the dictionary.
type Action string

// Scripted actions, in the order a compile run uses them.
const (
	OpenFile     Action = "open-file"
	TypeEditor   Action = "type-editor"
	OpenMerge    Action = "open-merge"
	TypeSource   Action = "type-source"
	SaveNative   Action = "save-native"
	Confirm      Action = "confirm"
	QuitEditor   Action = "quit-editor"
	TypeCompiler Action = "type-compiler"
	SelectSource Action = "select-source"
	TypeNative   Action = "type-native"
	Compile      Action = "compile"
	Link         Action = "link"
	RunProgram   Action = "run-program"
)

// clearField is how many backspaces follow the desktop "open" key, to wipe
// any stray characters from the file field.
const clearField = 10

// Guest file names typed by the macros.
const (
	EditorName   = "GFABASIC.PRG"
	CompilerName = "MENU.PRG"
	SourceName   = "SOURCE.LST"
	NativeName   = "SOURCE.GFA"
)

var dictionary = map[Action]Macro{
	OpenFile:     seq(append([]keys.Code{keys.O}, slices.Repeat([]keys.Code{keys.Backspace}, clearField)...)...),
	TypeEditor:   seq(MustText(EditorName, true)...),
	OpenMerge:    seq(keys.F2),
	TypeSource:   seq(MustText(SourceName, true)...),
	SaveNative:   chord(keys.Shift, keys.F1),
	Confirm:      seq(keys.Enter),
	QuitEditor:   chord(keys.Shift, keys.F3),
	TypeCompiler: seq(MustText(CompilerName, true)...),
	SelectSource: chord(keys.Control, keys.S),
	TypeNative:   seq(MustText(NativeName, true)...),
	Compile:      chord(keys.Control, keys.C),
	Link:         chord(keys.Control, keys.L),
	RunProgram:   chord(keys.Shift, keys.F10),
}

func seq(k ...keys.Code) Macro   { return Macro{Keys: k, Mode: Sequential} }
func chord(k ...keys.Code) Macro { return Macro{Keys: k, Mode: Simultaneous} }

// Lookup returns the macro for a. The returned key slice is a copy.
func Lookup(a Action) (Macro, bool) {
	m, ok := dictionary[a]
	if !ok {
		return Macro{}, false
	}
	return Macro{Keys: slices.Clone(m.Keys), Mode: m.Mode}, true
}

// Actions returns every action in the dictionary, sorted by name.
func Actions() []Action {
	out := make([]Action, 0, len(dictionary))
	for a := range dictionary {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

// Text spells s as key codes. When confirm is set an Enter key is appended,
// as every text entry in the guest must be confirmed.
func Text(s string, confirm bool) ([]keys.Code, error) {
	out := make([]keys.Code, 0, len(s)+1)
	for _, r := range s {
		k, ok := keys.ForRune(r)
		if !ok {
			return nil, fmt.Errorf("cannot type %q in %q", r, s)
		}
		out = append(out, k)
	}
	if confirm {
		out = append(out, keys.Enter)
	}
	return out, nil
}

// MustText is like Text but panics on untypeable input. It is meant for
// package-level tables.
func MustText(s string, confirm bool) []keys.Code {
	k, err := Text(s, confirm)
	if err != nil {
		panic(err)
	}
	return k
}
