package shell

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mvdan.cc/sh/v3/syntax"

	apperrors "github.com/flynn-ai/corrode/internal/errors"
)

// Step is one executed statement of a script.
type Step struct {
	Command    string `json:"command"`
	Dir        string `json:"dir"`
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
	Truncated  bool   `json:"truncated,omitempty"`
	ChangedDir bool   `json:"changed_dir,omitempty"`
}

// ScriptResult is the outcome of RunScript. ExitCode is that of the last step run.
type ScriptResult struct {
	Dir      string `json:"dir"`
	ExitCode int    `json:"exit_code"`
	Steps    []Step `json:"steps"`
}

// Output renders the steps the way a terminal transcript reads.
func (r *ScriptResult) Output() string {
	var sb strings.Builder
	for i, st := range r.Steps {
		if i > 0 {
			sb.WriteString("\n")
		}
		writeStep(&sb, st)
	}
	return sb.String()
}

// Output renders a single command the same way a script step is rendered.
func (r *CommandResult) Output() string {
	words := []string{r.Command}
	for _, arg := range r.Args {
		if quoted, err := syntax.Quote(arg, syntax.LangBash); err == nil {
			arg = quoted
		}
		words = append(words, arg)
	}

	var sb strings.Builder
	writeStep(&sb, Step{
		Command:   strings.Join(words, " "),
		Dir:       r.Dir,
		ExitCode:  r.ExitCode,
		Stdout:    r.Stdout,
		Stderr:    r.Stderr,
		Truncated: r.Truncated,
	})
	return sb.String()
}

func writeStep(sb *strings.Builder, st Step) {
	fmt.Fprintf(sb, "$ %s\n", st.Command)
	if st.ChangedDir {
		fmt.Fprintf(sb, "Changed directory to: %s\n", st.Dir)
		return
	}
	fmt.Fprintf(sb, "Exit code: %d\n", st.ExitCode)
	if st.Stdout != "" {
		sb.WriteString("\nStandard output:\n")
		sb.WriteString(withNewline(st.Stdout))
	}
	if st.Stderr != "" {
		sb.WriteString("\nStandard error:\n")
		sb.WriteString(withNewline(st.Stderr))
	}
	if st.Truncated {
		sb.WriteString("\n(output truncated)\n")
	}
}

func withNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

// RunScript runs a shell script statement by statement. Statements separated
// by newlines or ';' all run; an "a && b" chain stops at its first failure.
// A plain "cd dir" changes the session directory for the rest of the script
// and for later calls. Everything else goes to the configured shell with -c.
// The timeout covers the whole script.
func (s *Session) RunScript(ctx context.Context, script string, timeout time.Duration) (*ScriptResult, error) {
	file, err := syntax.NewParser(syntax.Variant(syntax.LangBash)).Parse(strings.NewReader(script), "")
	if err != nil {
		return nil, apperrors.NewBuilder(apperrors.CodeCommandFailed, "cannot parse script").
			User().Wrap(err).WithContext("script", script).Build()
	}
	if len(file.Stmts) == 0 {
		return nil, apperrors.New(apperrors.CodeCommandFailed, "script is empty", apperrors.CategoryUser)
	}

	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	runCtx, cancel := context.WithTimeout(ctx, s.clampTimeout(timeout))
	defer cancel()

	res := &ScriptResult{Steps: []Step{}}
	printer := syntax.NewPrinter()
	for _, stmt := range file.Stmts {
		for _, part := range andChain(stmt) {
			step, err := s.runStatement(ctx, runCtx, printer, part)
			if err != nil {
				return nil, withTranscript(err, res, step)
			}
			res.Steps = append(res.Steps, *step)
			res.ExitCode = step.ExitCode
			if step.ExitCode != 0 {
				break
			}
		}
	}
	res.Dir = s.Dir()
	return res, nil
}

func (s *Session) runStatement(parent, runCtx context.Context, printer *syntax.Printer, stmt *syntax.Stmt) (*Step, error) {
	var sb strings.Builder
	if err := printer.Print(&sb, stmt); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCommandFailed, "printing statement", apperrors.CategorySystem)
	}
	text := strings.TrimSpace(sb.String())

	if target, ok := cdTarget(stmt); ok {
		dir, err := s.changeDir(target)
		if err != nil {
			return &Step{Command: text, Dir: s.Dir(), ExitCode: 1}, err
		}
		return &Step{Command: text, Dir: dir, ChangedDir: true}, nil
	}

	dir := s.Dir()
	args := []string{"-c", text}
	if s.login {
		args = append([]string{"-l"}, args...)
	}
	cmd, err := s.run(parent, runCtx, dir, s.program, args)
	if cmd == nil {
		return nil, err
	}
	step := &Step{
		Command:   text,
		Dir:       dir,
		ExitCode:  cmd.ExitCode,
		Stdout:    cmd.Stdout,
		Stderr:    cmd.Stderr,
		Truncated: cmd.Truncated,
	}
	return step, err
}

// withTranscript attaches the output produced so far to a failing script.
func withTranscript(err error, res *ScriptResult, failed *Step) error {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return err
	}
	if failed != nil {
		res.Steps = append(res.Steps, *failed)
	}
	return appErr.With("output", res.Output())
}

// andChain flattens "a && b && c" into its statements. Anything else is a
// single statement.
func andChain(stmt *syntax.Stmt) []*syntax.Stmt {
	bin, ok := stmt.Cmd.(*syntax.BinaryCmd)
	if !ok || bin.Op != syntax.AndStmt || stmt.Negated || stmt.Background || stmt.Coprocess || len(stmt.Redirs) > 0 {
		return []*syntax.Stmt{stmt}
	}
	return append(andChain(bin.X), andChain(bin.Y)...)
}

// cdTarget reports whether stmt is a plain cd with literal arguments, and its target.
func cdTarget(stmt *syntax.Stmt) (string, bool) {
	call, ok := stmt.Cmd.(*syntax.CallExpr)
	if !ok || stmt.Negated || stmt.Background || len(stmt.Redirs) > 0 || len(call.Assigns) > 0 {
		return "", false
	}
	if len(call.Args) == 0 || len(call.Args) > 2 {
		return "", false
	}
	if name, ok := literal(call.Args[0]); !ok || name != "cd" {
		return "", false
	}
	if len(call.Args) == 1 {
		return "~", true
	}
	return literal(call.Args[1])
}

// literal returns the value of a word made only of literal and quoted text.
func literal(w *syntax.Word) (string, bool) {
	var sb strings.Builder
	for _, part := range w.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				lit, ok := inner.(*syntax.Lit)
				if !ok {
					return "", false
				}
				sb.WriteString(lit.Value)
			}
		default:
			return "", false
		}
	}
	return sb.String(), true
}
