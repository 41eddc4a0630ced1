package spec

import (
	appErr "github.com/wioota/devloop/pkg/errors"

	"github.com/google/shlex"
)

// ParseCommand splits a shell-style command line into an argument vector.
// Callers that configure commands as strings use this before handing the
// vector to an executor; no shell is ever involved in execution.
func ParseCommand(line string) ([]string, error) {
	tokens, err := shlex.Split(line)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidCommandLine, "parse command %q", line)
	}
	if len(tokens) == 0 {
		return nil, appErr.Newf(appErr.InvalidCommandLine, "empty command")
	}
	return tokens, nil
}
