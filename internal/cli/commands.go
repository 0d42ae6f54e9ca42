package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	apperrors "github.com/flynn-ai/corrode/internal/errors"
	"github.com/flynn-ai/corrode/internal/tools"
	"github.com/flynn-ai/corrode/internal/tools/schemas"
	"github.com/flynn-ai/corrode/internal/transcript"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

func (a *App) serveCmd() *cobra.Command {
	var httpAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tools over MCP (stdio unless --http is given)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd.Context(), httpAddr)
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "serve streamable HTTP on this address instead of stdio (also exposes /metrics)")
	return cmd
}

// catalog builds the registry for introspection only; its handlers are
// never run, so they get no services.
func (a *App) catalog() (*tools.Registry, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	return tools.New(tools.Deps{DefaultMaxChars: cfg.Files.DefaultMaxChars})
}

func (a *App) toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the available tools",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			reg, err := a.catalog()
			if err != nil {
				return err
			}

			st := newStyles(a.stdout)
			t := &table{
				header: []string{"#", "TOOL", "ARGUMENTS", "DESCRIPTION"},
				styles: []lipgloss.Style{st.Dim, st.Name, st.Dim},
			}
			for i, s := range reg.List() {
				t.add(strconv.Itoa(i+1), s.Name, arguments(s), firstSentence(s.Description))
			}
			return t.render(a.stdout, st.Header)
		},
	}
}

// arguments lists parameter names, required ones marked with "!".
func arguments(s *schemas.Schema) string {
	names := make([]string, 0, len(s.Params))
	for _, p := range s.Params {
		if p.Required {
			names = append(names, p.Name+"!")
		} else {
			names = append(names, p.Name)
		}
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}

func firstSentence(s string) string {
	if i := strings.Index(s, ". "); i >= 0 {
		return s[:i+1]
	}
	return s
}

// toolDoc is the exported form of a descriptor.
type toolDoc struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	InputSchema map[string]any `json:"inputSchema" yaml:"inputSchema"`
}

func (a *App) schemaCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "schema [tool]",
		Short: "Print tool input schemas as JSON or YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			reg, err := a.catalog()
			if err != nil {
				return err
			}

			var docs []toolDoc
			for _, s := range reg.List() {
				if len(args) == 1 && s.Name != args[0] {
					continue
				}
				docs = append(docs, toolDoc{Name: s.Name, Description: s.Description, InputSchema: s.InputSchema()})
			}
			if len(args) == 1 && len(docs) == 0 {
				return apperrors.NewBuilder(apperrors.CodeToolNotFound, "tool not found: "+args[0]).
					User().
					WithSuggestion("Run `corrode tools` to list the tools").
					Build()
			}

			var out any = docs
			if len(args) == 1 {
				out = docs[0]
			}
			switch format {
			case "json":
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				enc.SetEscapeHTML(false)
				return enc.Encode(out)
			case "yaml":
				enc := yaml.NewEncoder(a.stdout)
				enc.SetIndent(2)
				if err := enc.Encode(out); err != nil {
					return err
				}
				return enc.Close()
			default:
				return apperrors.Newf(apperrors.CodeInvalidArguments, apperrors.CategoryUser,
					"--format must be json or yaml, got %q", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	return cmd
}

func (a *App) historyCmd() *cobra.Command {
	var (
		limit int
		tool  string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded tool calls, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.Transcript.Path); err != nil {
				fmt.Fprintf(a.stdout, "No transcript at %s. Enable [transcript] in the config to record calls.\n", cfg.Transcript.Path)
				return nil
			}

			store, err := transcript.Open(cfg.Transcript.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), tool, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(a.stdout, "No calls recorded.")
				return nil
			}

			st := newStyles(a.stdout)
			t := &table{
				header: []string{"TIME", "TOOL", "OUTCOME", "DURATION", "ID"},
				styles: []lipgloss.Style{st.Dim, st.Name, lipgloss.NewStyle(), st.Dim, st.Dim},
			}
			for _, e := range entries {
				outcome := st.OK.Render("ok")
				if e.IsError {
					outcome = st.Error.Render(e.Code)
				}
				t.add(
					e.CreatedAt.Local().Format(time.DateTime),
					e.Tool,
					outcome,
					e.Duration.Round(time.Millisecond).String(),
					e.ID,
				)
			}
			return t.render(a.stdout, st.Header)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of calls to show")
	cmd.Flags().StringVar(&tool, "tool", "", "only show calls of this tool")
	return cmd
}

func (a *App) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			fmt.Fprintln(a.stdout, "corrode", Version)
			return nil
		},
	}
}
