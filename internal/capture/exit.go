package capture

import "fmt"

// ExitClass groups exit codes by how the supervisor reacts to them.
type ExitClass int

const (
	// ExitClean is a zero exit.
	ExitClean ExitClass = iota
	// ExitExpected covers termination by signal (255) and SIGKILL (137).
	ExitExpected
	// ExitAbnormal is every other code and triggers a restart.
	ExitAbnormal
)

const (
	codeSignalled = 255
	codeKilled    = 137
)

// Classify maps an exit code to its class.
func Classify(code int) ExitClass {
	switch code {
	case 0:
		return ExitClean
	case codeSignalled, codeKilled:
		return ExitExpected
	default:
		return ExitAbnormal
	}
}

func (c ExitClass) String() string {
	switch c {
	case ExitClean:
		return "clean"
	case ExitExpected:
		return "expected"
	case ExitAbnormal:
		return "abnormal"
	default:
		return fmt.Sprintf("exit_class(%d)", int(c))
	}
}
