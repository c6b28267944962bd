package runner

import "strings"

// OutcomeClass types the result of a tool run for the execution log.
type OutcomeClass string

const (
	SuccessWithFindings OutcomeClass = "SUCCESS_WITH_FINDINGS"
	SuccessNoFindings   OutcomeClass = "SUCCESS_NO_FINDINGS"
	PartialSuccess      OutcomeClass = "PARTIAL_SUCCESS"
	Timeout             OutcomeClass = "TIMEOUT"
	ExecutionError      OutcomeClass = "EXECUTION_ERROR"
)

// FailureReason is the closed enum attached to EXECUTION_ERROR.
type FailureReason string

const (
	FailureNone             FailureReason = ""
	FailureToolNotInstalled FailureReason = "tool_not_installed"
	FailurePermissionDenied FailureReason = "permission_denied"
	FailureUnreachable      FailureReason = "target_unreachable"
	FailureInvalidArguments FailureReason = "invalid_arguments"
	FailureRemoteError      FailureReason = "remote_error"
	FailureUnknown          FailureReason = "unknown_error"
)

const sigpipeExit = 141 // 128 + SIGPIPE

// Classify maps a raw result plus the parser's findings count to a
// typed outcome. streams marks tools known to die of SIGPIPE while
// still producing usable stdout (nikto and friends).
func Classify(res Result, findingsCount int, streams bool) (OutcomeClass, FailureReason) {
	switch {
	case res.TimedOut:
		return Timeout, FailureNone
	case res.NotInstalled:
		return ExecutionError, FailureToolNotInstalled
	case res.ExitCode == 0:
		if findingsCount > 0 {
			return SuccessWithFindings, FailureNone
		}
		return SuccessNoFindings, FailureNone
	case res.ExitCode == sigpipeExit && streams && len(res.Stdout) > 0:
		return PartialSuccess, FailureNone
	default:
		return ExecutionError, failureReason(res)
	}
}

// Parseable reports whether the outcome class carries stdout worth
// handing to a parser.
func Parseable(class OutcomeClass) bool {
	switch class {
	case SuccessWithFindings, SuccessNoFindings, PartialSuccess:
		return true
	default:
		return false
	}
}

func failureReason(res Result) FailureReason {
	text := strings.ToLower(string(res.Stderr) + " " + res.SpawnErr)
	switch {
	case strings.Contains(text, "command not found"),
		strings.Contains(text, "executable file not found"),
		strings.Contains(text, "no such file or directory"):
		return FailureToolNotInstalled
	case strings.Contains(text, "permission denied"),
		strings.Contains(text, "operation not permitted"),
		strings.Contains(text, "requires root"):
		return FailurePermissionDenied
	case strings.Contains(text, "connection refused"),
		strings.Contains(text, "could not resolve"),
		strings.Contains(text, "name or service not known"),
		strings.Contains(text, "no route to host"),
		strings.Contains(text, "network is unreachable"),
		strings.Contains(text, "connection timed out"):
		return FailureUnreachable
	case strings.Contains(text, "invalid option"),
		strings.Contains(text, "unrecognized option"),
		strings.Contains(text, "unknown flag"),
		strings.Contains(text, "usage:"):
		return FailureInvalidArguments
	case strings.Contains(text, "internal server error"),
		strings.Contains(text, "502 bad gateway"),
		strings.Contains(text, "503 service unavailable"):
		return FailureRemoteError
	default:
		return FailureUnknown
	}
}
