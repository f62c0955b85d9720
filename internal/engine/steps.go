package engine

import (
	"time"

	"github.com/seantiz/stbuild/internal/macro"
	"github.com/seantiz/stbuild/internal/model"
	"github.com/seantiz/stbuild/internal/workdir"
)

// Timing holds the fixed delays used where the guest leaves nothing on disk
// to observe.
type Timing struct {
	// Boot is the wait for the desktop in the compile profile.
	Boot time.Duration
	// RunBoot is the wait for the desktop at original hardware speed.
	RunBoot time.Duration
	// Program is the wait for a launched program to show its screen.
	Program time.Duration
	// Dialog is the wait for a file dialog to close.
	Dialog time.Duration
	// Quit is the wait for the editor to return to the desktop.
	Quit time.Duration
	// Compile is used instead of detection when the compiler writes no
	// intermediate file.
	Compile time.Duration
}

// DefaultTiming returns the delays that work with the stock profiles.
func DefaultTiming() Timing {
	return Timing{
		Boot:    time.Second,
		RunBoot: 10 * time.Second,
		Program: 500 * time.Millisecond,
		Dialog:  500 * time.Millisecond,
		Quit:    500 * time.Millisecond,
		Compile: 2 * time.Second,
	}
}

// step is one state of a workflow: the macros that move the guest into it
// and how to tell it got there.
type step struct {
	state   string
	actions []macro.Action
	// file names the output to wait on. An empty result falls back to delay.
	file  func(workdir.Layout) string
	delay func(Timing) time.Duration
}

func boot(t Timing) time.Duration    { return t.Boot }
func runBoot(t Timing) time.Duration { return t.RunBoot }
func program(t Timing) time.Duration { return t.Program }
func dialog(t Timing) time.Duration  { return t.Dialog }
func quit(t Timing) time.Duration    { return t.Quit }
func compile(t Timing) time.Duration { return t.Compile }

func nativeSource(l workdir.Layout) string { return l.NativeSource }
func object(l workdir.Layout) string       { return l.Object }
func artifact(l workdir.Layout) string     { return l.Artifact }

// compileSteps follows SessionStarting in the compile workflow.
var compileSteps = []step{
	{state: model.StateDesktopReady, delay: boot},
	{state: model.StateEditorOpen, actions: []macro.Action{macro.OpenFile, macro.TypeEditor}, delay: program},
	{state: model.StateSourceMerged, actions: []macro.Action{macro.OpenMerge, macro.TypeSource}, delay: dialog},
	// The .GFA file is the merge-load's only observable product, so this
	// wait covers the merge as well.
	{state: model.StateSavedAsNative, actions: []macro.Action{macro.SaveNative, macro.Confirm}, file: nativeSource},
	{state: model.StateEditorClosed, actions: []macro.Action{macro.QuitEditor, macro.Confirm}, delay: quit},
	{state: model.StateCompilerOpen, actions: []macro.Action{macro.OpenFile, macro.TypeCompiler}, delay: program},
	{state: model.StateArtifactSelected, actions: []macro.Action{macro.SelectSource, macro.TypeNative}, delay: dialog},
	{state: model.StateCompiled, actions: []macro.Action{macro.Compile}, file: object, delay: compile},
	{state: model.StateLinked, actions: []macro.Action{macro.Link}, file: artifact},
}

// runSteps follows SessionStarting in the run workflow.
var runSteps = []step{
	{state: model.StateDesktopReady, delay: runBoot},
	{state: model.StateEditorOpen, actions: []macro.Action{macro.OpenFile, macro.TypeEditor}, delay: program},
	{state: model.StateSourceMerged, actions: []macro.Action{macro.OpenMerge, macro.TypeSource}, delay: dialog},
	{state: model.StateProgramLaunched, actions: []macro.Action{macro.RunProgram}},
}

// plan describes one workflow.
type plan struct {
	task    string
	profile string
	steps   []step
	// keepSession leaves the guest running after a successful run.
	keepSession bool
}

var plans = map[string]plan{
	model.TaskCompile: {task: model.TaskCompile, profile: model.ProfileCompile, steps: compileSteps},
	model.TaskRun:     {task: model.TaskRun, profile: model.ProfileRun, steps: runSteps, keepSession: true},
}
