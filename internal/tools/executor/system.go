package executor

import (
	"context"

	"github.com/flynn-ai/corrode/internal/shell"
)

// DirectoryOutcome is the structured result of change_directory.
type DirectoryOutcome struct {
	Dir string `json:"dir"`
}

// ChangeDirectory moves the session to another directory.
type ChangeDirectory struct {
	Session *shell.Session
}

func (t *ChangeDirectory) Name() string        { return "change_directory" }
func (t *ChangeDirectory) Description() string { return "Change the session directory" }

func (t *ChangeDirectory) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	dir, err := t.Session.ChangeDirectory(ctx, stringArg(input, "path"))
	if err != nil {
		return NewErrorResult(err), nil
	}
	return NewTextResult("Changed directory to: "+dir, DirectoryOutcome{Dir: dir}), nil
}

// RunCommand runs one program without a shell.
type RunCommand struct {
	Session *shell.Session
}

func (t *RunCommand) Name() string        { return "run_command" }
func (t *RunCommand) Description() string { return "Run a program" }

func (t *RunCommand) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	res, err := t.Session.RunCommand(ctx, stringArg(input, "command"), stringsArg(input, "args"), secondsArg(input, "timeout_secs"))
	if err != nil {
		return NewErrorResult(err), nil
	}
	return NewTextResult(res.Output(), res), nil
}

// ExecuteBash runs a bash script, following cd statements.
type ExecuteBash struct {
	Session *shell.Session
}

func (t *ExecuteBash) Name() string        { return "execute_bash" }
func (t *ExecuteBash) Description() string { return "Run a bash script" }

func (t *ExecuteBash) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	res, err := t.Session.RunScript(ctx, stringArg(input, "command"), secondsArg(input, "timeout_secs"))
	if err != nil {
		return NewErrorResult(err), nil
	}
	return NewTextResult(res.Output(), res), nil
}
