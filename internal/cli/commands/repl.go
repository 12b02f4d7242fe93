package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/leapstack-labs/leapcode/internal/compiler"
	"github.com/leapstack-labs/leapcode/internal/engine"
	"github.com/leapstack-labs/leapcode/internal/runner"
	"github.com/leapstack-labs/leapcode/internal/workspace"
	"github.com/spf13/cobra"
)

const (
	replPrompt         = ">>> "
	replContinuePrompt = "... "
	replDocument       = "repl.star"
)

// NewReplCommand creates the repl command.
func NewReplCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl <script-project>",
		Short: "Start an interactive session on a script project",
		Long: `Start an interactive session bound to a script project's host object.

Every submission is compiled as a continuation of the previous ones, so
names defined earlier stay in scope. A submission whose first line ends
with ':' continues until an empty line. If the project already has a
document it runs first.`,
		Example: `  leapcode repl deploy`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL(cmd, args[0])
		},
		ValidArgsFunction: completeProjects,
	}
}

func runREPL(cmd *cobra.Command, project string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	session, err := newREPLSession(ctx, cmdCtx, project)
	if err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     filepath.Join(filepath.Dir(cmdCtx.Cfg.StatePath), "repl_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdout:          cmdCtx.Out,
		Stderr:          cmdCtx.ErrOut,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintf(cmdCtx.Out, "leapcode REPL (project: %s)\n", project)
	_, _ = fmt.Fprintln(cmdCtx.Out, "Type .help for commands, .quit to exit")
	return session.loop(ctx, rl)
}

// lineReader is the part of readline the REPL loop uses.
type lineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

// replSession chains the submissions of one script project.
type replSession struct {
	eng     *engine.Engine
	project string
	doc     workspace.DocumentID
	session *runner.Session
	prev    *compiler.Result
	out     io.Writer
	errOut  io.Writer
	logger  *slog.Logger
}

func newREPLSession(ctx context.Context, cmdCtx *CommandContext, project string) (*replSession, error) {
	eng := cmdCtx.Engine
	p, err := eng.Project(project)
	if err != nil {
		return nil, err
	}
	if p.Kind() != workspace.KindScript {
		return nil, fmt.Errorf("project %s is not a script project", project)
	}

	r := runner.New(runner.WithLogger(cmdCtx.Logger), runner.WithOutput(cmdCtx.Out))
	s := &replSession{
		eng:     eng,
		project: project,
		session: r.NewSession(hostObject(cmdCtx, project)),
		out:     cmdCtx.Out,
		errOut:  cmdCtx.ErrOut,
		logger:  cmdCtx.Logger,
	}

	docs := p.Documents()
	if len(docs) == 0 {
		if s.doc, err = eng.AddDocument(replDocument, project, ""); err != nil {
			return nil, err
		}
		eng.OpenDocument(replDocument, project)
		return s, nil
	}

	s.doc = docs[0].ID()
	eng.OpenDocument(docs[0].Name(), project)
	if strings.TrimSpace(docs[0].Text()) != "" {
		if err := s.compileAndRun(ctx); err != nil {
			return nil, fmt.Errorf("document %s: %w", docs[0].Name(), err)
		}
	}
	return s, nil
}

// submit compiles text as the next submission and runs it. A failed
// submission leaves the chain where it was.
func (s *replSession) submit(ctx context.Context, text string) error {
	if err := s.eng.ReplaceBuffer(s.doc, text); err != nil {
		return err
	}
	return s.compileAndRun(ctx)
}

func (s *replSession) compileAndRun(ctx context.Context) error {
	res, err := s.eng.CompileSubmission(ctx, s.project, "", s.prev)
	if err != nil {
		renderDiagnostics(s.errOut, diagnosticsOf(res, err))
		return err
	}
	if _, err := s.session.Submit(ctx, res); err != nil {
		return err
	}
	s.prev = res
	return nil
}

func (s *replSession) loop(ctx context.Context, in lineReader) error {
	var buf strings.Builder
	for {
		line, err := in.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			buf.Reset()
			in.SetPrompt(replPrompt)
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if buf.Len() == 0 {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			if strings.HasPrefix(trimmed, ".") {
				if s.handleDotCommand(trimmed) {
					return nil
				}
				continue
			}
		}

		// Blocks continue until an empty line
		if buf.Len() > 0 || strings.HasSuffix(strings.TrimSpace(line), ":") {
			if strings.TrimSpace(line) != "" {
				buf.WriteString(line)
				buf.WriteString("\n")
				in.SetPrompt(replContinuePrompt)
				continue
			}
			line = buf.String()
			buf.Reset()
			in.SetPrompt(replPrompt)
		}

		if err := s.submit(ctx, line); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var compErr *compiler.CompilationError
			if !errors.As(err, &compErr) {
				_, _ = fmt.Fprintf(s.errOut, "Error: %v\n", err)
			}
		}
	}
}

// handleDotCommand runs a dot command and reports whether the loop should end.
func (s *replSession) handleDotCommand(line string) bool {
	switch strings.ToLower(strings.Fields(line)[0]) {
	case ".quit", ".exit":
		return true
	case ".help":
		_, _ = fmt.Fprintln(s.out, `Commands:
  .globals   Show every name defined so far
  .help      Show this help
  .quit      Exit the REPL`)
	case ".globals":
		printGlobals(s.out, s.session.Globals())
	default:
		_, _ = fmt.Fprintf(s.errOut, "Unknown command: %s\n", line)
	}
	return false
}
