package supervisor

// State is the lifecycle position of the current capture cycle.
type State string

const (
	StateIdle             State = "idle"
	StateRunning          State = "running"
	StateRestartRequested State = "restart_requested"
	StateExitedCleanly    State = "exited_cleanly"
	StateExitedWithError  State = "exited_with_error"
	StateTerminating      State = "terminating"
)

// Outcome describes how a cycle ended.
type Outcome string

const (
	OutcomeExited      Outcome = "exited"
	OutcomeRestarted   Outcome = "restarted"
	OutcomeStopped     Outcome = "stopped"
	OutcomeSpawnFailed Outcome = "spawn_failed"
	OutcomePanic       Outcome = "panic"
)

// Restart request sources.
const (
	SourceWatchdog   = "watchdog"
	SourceExitCode   = "exit_code"
	SourceOperator   = "operator"
	SourceCycleError = "cycle_error"
)
