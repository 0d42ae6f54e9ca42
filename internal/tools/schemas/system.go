package schemas

// ChangeDirectory describes change_directory.
func ChangeDirectory() *Schema {
	return NewSchema("change_directory", "Change the session directory used by every other tool. "+
		"Relative paths resolve against the current one and ~ is the home directory.").
		AddParam("path", TypeString, "Directory to change to", true).
		Build()
}

// RunCommand describes run_command.
func RunCommand() *Schema {
	return NewSchema("run_command", "Run a program with arguments in the session directory, without a shell. "+
		"A non-zero exit code is reported, not treated as a failure.").
		AddParam("command", TypeString, "Program to run", true).
		AddArrayParam("args", TypeString, "Arguments passed to the program", false).
		AddParam("timeout_secs", TypeInteger, "Kill the program after this many seconds", false).
		Build()
}

// ExecuteBash describes execute_bash.
func ExecuteBash() *Schema {
	return NewSchema("execute_bash", "Run a bash script in the session directory. Statements run in order, "+
		"a && chain stops at the first failure and cd changes the session directory for later calls.").
		AddParam("command", TypeString, "Script to run", true).
		AddParam("timeout_secs", TypeInteger, "Time limit for the whole script in seconds", false).
		Build()
}
