package model

import "time"

// Tasks a caller can request.
const (
	TaskCompile = "compile"
	TaskRun     = "run"
)

// Run status constants.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Workflow states. Compile walks every state from Idle to SessionStopped; run
// stops at ProgramLaunched and leaves the session up.
const (
	StateIdle             = "idle"
	StateSessionStarting  = "session_starting"
	StateDesktopReady     = "desktop_ready"
	StateEditorOpen       = "editor_open"
	StateSourceMerged     = "source_merged"
	StateSavedAsNative    = "saved_as_native"
	StateEditorClosed     = "editor_closed"
	StateCompilerOpen     = "compiler_open"
	StateArtifactSelected = "artifact_selected"
	StateCompiled         = "compiled"
	StateLinked           = "linked"
	StateProgramLaunched  = "program_launched"
	StateSessionStopped   = "session_stopped"
)

// CompileStates lists the compile workflow in order.
var CompileStates = []string{
	StateIdle,
	StateSessionStarting,
	StateDesktopReady,
	StateEditorOpen,
	StateSourceMerged,
	StateSavedAsNative,
	StateEditorClosed,
	StateCompilerOpen,
	StateArtifactSelected,
	StateCompiled,
	StateLinked,
	StateSessionStopped,
}

// RunStates lists the run workflow in order.
var RunStates = []string{
	StateIdle,
	StateSessionStarting,
	StateDesktopReady,
	StateEditorOpen,
	StateSourceMerged,
	StateProgramLaunched,
}

// validTransitions maps each state to the states it may move to. Once a
// session exists, every state may fall through to SessionStopped because
// teardown runs on failure too.
var validTransitions = map[string]map[string]bool{
	StateIdle:             {StateSessionStarting: true},
	StateSessionStarting:  {StateDesktopReady: true, StateSessionStopped: true},
	StateDesktopReady:     {StateEditorOpen: true, StateSessionStopped: true},
	StateEditorOpen:       {StateSourceMerged: true, StateSessionStopped: true},
	StateSourceMerged:     {StateSavedAsNative: true, StateProgramLaunched: true, StateSessionStopped: true},
	StateSavedAsNative:    {StateEditorClosed: true, StateSessionStopped: true},
	StateEditorClosed:     {StateCompilerOpen: true, StateSessionStopped: true},
	StateCompilerOpen:     {StateArtifactSelected: true, StateSessionStopped: true},
	StateArtifactSelected: {StateCompiled: true, StateSessionStopped: true},
	StateCompiled:         {StateLinked: true, StateSessionStopped: true},
	StateLinked:           {StateSessionStopped: true},
}

// ValidTransition reports whether the workflow may move from one state to another.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Event is one recorded state transition of a run.
type Event struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Seq       int       `json:"seq"`
	State     string    `json:"state"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Run is one orchestration of the guest, from staging to teardown.
type Run struct {
	ID           string     `json:"id"`
	Task         string     `json:"task"`
	Status       string     `json:"status"`
	State        string     `json:"state"`
	Host         string     `json:"host"`
	Profile      string     `json:"profile"`
	WorkDir      string     `json:"work_dir"`
	SourcePath   string     `json:"source_path"`
	ArtifactPath string     `json:"artifact_path,omitempty"`
	ArtifactSize *int64     `json:"artifact_size,omitempty"`
	Error        string     `json:"error,omitempty"`
	DurationMS   *int       `json:"duration_ms,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}
