package diagnosis

import (
	"fmt"
	"strings"

	"shellpilot/pkg/shelltypes"
)

// Classify turns a failed command into a Diagnosis. It is total: every input
// yields a diagnosis, falling back to the exit code and finally to a
// low-confidence UNKNOWN_ERROR.
func Classify(exitCode int, output, command string) shelltypes.Diagnosis {
	for _, rule := range rules {
		for i, pattern := range rule.Patterns {
			m := pattern.FindStringSubmatch(output)
			if m == nil {
				continue
			}
			suggestion, related := rule.build(&ruleContext{
				output:  output,
				command: command,
				pattern: i,
				match:   m,
			})
			return shelltypes.Diagnosis{
				ErrorType:       rule.ErrorType,
				Category:        rule.Category,
				Suggestion:      suggestion,
				RelatedCommands: related,
				Confidence:      rule.Confidence,
			}
		}
	}
	return classifyExitCode(exitCode, command)
}

func classifyExitCode(exitCode int, command string) shelltypes.Diagnosis {
	switch exitCode {
	case 127:
		suggestion, related := commandNotFound(firstToken(command))
		return shelltypes.Diagnosis{
			ErrorType:       CommandNotFound,
			Category:        "Shell",
			Suggestion:      suggestion,
			RelatedCommands: related,
			Confidence:      shelltypes.ConfidenceMedium,
		}
	case 126:
		d := shelltypes.Diagnosis{
			ErrorType:  CommandNotExecutable,
			Category:   "Permissions",
			Suggestion: "The command was found but could not be executed. Check that it is executable and built for this platform.",
			Confidence: shelltypes.ConfidenceMedium,
		}
		if name := firstToken(command); name != "" {
			d.RelatedCommands = []string{"ls -la " + shellArg(name)}
			if strings.Contains(name, "/") {
				d.RelatedCommands = append(d.RelatedCommands, "chmod +x "+shellArg(name))
			}
		}
		return d
	case 130:
		return shelltypes.Diagnosis{
			ErrorType:  Interrupted,
			Category:   "Signals",
			Suggestion: "The command was interrupted (SIGINT) before it finished.",
			Confidence: shelltypes.ConfidenceMedium,
		}
	case 137:
		return shelltypes.Diagnosis{
			ErrorType:       Killed,
			Category:        "Signals",
			Suggestion:      "The command was killed (SIGKILL). This is often the out-of-memory killer; check memory usage.",
			RelatedCommands: []string{"free -h"},
			Confidence:      shelltypes.ConfidenceMedium,
		}
	}

	return shelltypes.Diagnosis{
		ErrorType:  UnknownError,
		Category:   "Unknown",
		Suggestion: fmt.Sprintf("The command failed with exit code %d. Inspect the output for details.", exitCode),
		Confidence: shelltypes.ConfidenceLow,
	}
}

// ForExecutionError is the generic diagnosis attached when the engine itself
// failed to run a command (spawn error, closed terminal, recovered panic).
func ForExecutionError(err error) shelltypes.Diagnosis {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return shelltypes.Diagnosis{
		ErrorType:  ExecutionError,
		Category:   "Execution",
		Suggestion: fmt.Sprintf("The command could not be executed: %s. Retry, or run it in a new session.", msg),
		Confidence: shelltypes.ConfidenceLow,
	}
}

// ForShellNotFound reports an unresolvable shell together with the shells
// that are available, so the caller can pick one.
func ForShellNotFound(kind string, available []string) shelltypes.Diagnosis {
	d := shelltypes.Diagnosis{
		ErrorType:  ShellNotFound,
		Category:   "Shell",
		Confidence: shelltypes.ConfidenceHigh,
	}
	if len(available) == 0 {
		d.Suggestion = fmt.Sprintf("The shell '%s' could not be found and no other shells were detected.", kind)
		return d
	}
	d.Suggestion = fmt.Sprintf("The shell '%s' could not be found. Available shells: %s.", kind, strings.Join(available, ", "))
	for _, s := range available {
		d.RelatedCommands = append(d.RelatedCommands, "command -v "+shellArg(s))
	}
	return d
}
