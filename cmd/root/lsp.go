package root

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/chix/chix/pkg/output"
	"github.com/chix/chix/pkg/tools"
	"github.com/chix/chix/pkg/tools/builtin"
)

type lspFlags struct {
	*rootFlags
	jsonOutput bool
	raw        bool
	offset     int
	limit      int
}

func newLSPCmd(root *rootFlags) *cobra.Command {
	flags := &lspFlags{rootFlags: root}

	cmd := &cobra.Command{
		Use:     "lsp",
		Short:   "Run one LSP tool from the command line",
		GroupID: "tools",
	}
	cmd.PersistentFlags().BoolVar(&flags.jsonOutput, "json", false, "Print the raw tool result")

	diagnostics := &cobra.Command{
		Use:   "diagnostics <file>",
		Short: "Show errors and warnings for a file",
		Args:  cobra.ExactArgs(1),
		RunE:  flags.runDiagnostics,
	}
	completions := &cobra.Command{
		Use:   "completions <file> <line> <character>",
		Short: "List completions at a 0-based position",
		Args:  cobra.ExactArgs(3),
		RunE:  flags.runCompletions,
	}
	for _, c := range []*cobra.Command{diagnostics, completions} {
		c.Flags().IntVar(&flags.offset, "offset", 0, "Number of items to skip")
		c.Flags().IntVar(&flags.limit, "limit", 0, "Maximum number of items to show (default: output_limits.default_max_items)")
	}

	hover := &cobra.Command{
		Use:   "hover <file> <line> <character>",
		Short: "Show information about the symbol at a 0-based position",
		Args:  cobra.ExactArgs(3),
		RunE:  flags.runHover,
	}
	hover.Flags().BoolVar(&flags.raw, "raw", false, "Print markdown as sent by the server, even on a terminal")

	cmd.AddCommand(
		diagnostics,
		completions,
		hover,
		&cobra.Command{
			Use:   "definition <file> <line> <character>",
			Short: "Show where the symbol at a 0-based position is defined",
			Args:  cobra.ExactArgs(3),
			RunE:  flags.runDefinition,
		},
	)
	return cmd
}

func (f *lspFlags) runDiagnostics(cmd *cobra.Command, args []string) error {
	params := builtin.DiagnosticsArgs{FilePath: args[0]}
	f.pagination(cmd, &params.Offset, &params.Limit)

	var result builtin.DiagnosticsResult
	if done, err := f.call(cmd, builtin.ToolNameLSPDiagnostics, params, &result); done || err != nil {
		return err
	}
	if !result.Success {
		return errors.New(result.Error)
	}

	out := cmd.OutOrStdout()
	if len(result.Diagnostics) == 0 {
		fmt.Fprintln(out, gray("No diagnostics for %s", result.FilePath))
		return nil
	}
	for _, d := range result.Diagnostics {
		fmt.Fprintf(out, "%s:%d:%d: %s %s", result.FilePath, d.Line+1, d.Character+1, severity(d.Severity), d.Message)
		if d.Source != "" {
			fmt.Fprint(out, gray(" [%s]", d.Source))
		}
		fmt.Fprintln(out)
	}
	printPagination(out, result.Pagination)
	return nil
}

func (f *lspFlags) runCompletions(cmd *cobra.Command, args []string) error {
	pos, err := parsePosition(args)
	if err != nil {
		return err
	}
	params := builtin.CompletionsArgs{PositionArgs: pos}
	f.pagination(cmd, &params.Offset, &params.Limit)

	var result builtin.CompletionsResult
	if done, err := f.call(cmd, builtin.ToolNameLSPCompletions, params, &result); done || err != nil {
		return err
	}
	if !result.Success {
		return errors.New(result.Error)
	}

	out := cmd.OutOrStdout()
	for _, c := range result.Completions {
		fmt.Fprint(out, bold("%s", c.Label))
		if c.Kind != "" {
			fmt.Fprint(out, " "+blue("%s", c.Kind))
		}
		if c.Detail != "" {
			fmt.Fprint(out, " "+gray("%s", c.Detail))
		}
		fmt.Fprintln(out)
	}
	printPagination(out, result.Pagination)
	return nil
}

func (f *lspFlags) runHover(cmd *cobra.Command, args []string) error {
	pos, err := parsePosition(args)
	if err != nil {
		return err
	}

	var result builtin.HoverResult
	if done, err := f.call(cmd, builtin.ToolNameLSPHover, pos, &result); done || err != nil {
		return err
	}
	if !result.Success {
		return errors.New(result.Error)
	}

	out := cmd.OutOrStdout()
	if result.Contents == nil {
		fmt.Fprintln(out, gray("No information available at this position"))
		return nil
	}
	contents := *result.Contents
	if !f.raw && isTerminal(out) {
		if rendered, err := renderMarkdown(contents); err == nil {
			contents = rendered
		} else {
			slog.Debug("Failed to render hover markdown", "error", err)
		}
	}
	fmt.Fprintln(out, contents)
	return nil
}

func (f *lspFlags) runDefinition(cmd *cobra.Command, args []string) error {
	pos, err := parsePosition(args)
	if err != nil {
		return err
	}

	var result builtin.DefinitionResult
	if done, err := f.call(cmd, builtin.ToolNameLSPDefinition, pos, &result); done || err != nil {
		return err
	}
	if !result.Success {
		return errors.New(result.Error)
	}

	out := cmd.OutOrStdout()
	if len(result.Locations) == 0 {
		fmt.Fprintln(out, gray("No definition found at this position"))
		return nil
	}
	for _, loc := range result.Locations {
		fmt.Fprintf(out, "%s:%d:%d\n", loc.URI, loc.Line+1, loc.Character+1)
	}
	return nil
}

// call runs the tool and decodes its result into v. It reports done when
// the raw result was printed and there is nothing left to render.
func (f *lspFlags) call(cmd *cobra.Command, name string, args, v any) (bool, error) {
	ts := builtin.NewLSPTool(f.store)
	all, err := ts.Tools(cmd.Context())
	if err != nil {
		return false, err
	}
	tool := tools.Find(all, name)
	if tool == nil {
		return false, fmt.Errorf("tool %q not found", name)
	}

	buf, err := json.Marshal(args)
	if err != nil {
		return false, err
	}
	result, err := tool.Handler(cmd.Context(), tools.ToolCall{
		Type:     "function",
		Function: tools.FunctionCall{Name: name, Arguments: string(buf)},
	})
	if err != nil {
		return false, err
	}
	if result.IsError {
		return false, errors.New(result.Output)
	}

	if f.jsonOutput {
		fmt.Fprintln(cmd.OutOrStdout(), result.Output)
		return true, nil
	}
	return false, json.Unmarshal([]byte(result.Output), v)
}

// pagination forwards --offset and --limit only when they were set.
func (f *lspFlags) pagination(cmd *cobra.Command, offset, limit **int) {
	if cmd.Flags().Changed("offset") {
		*offset = &f.offset
	}
	if cmd.Flags().Changed("limit") {
		*limit = &f.limit
	}
}

func parsePosition(args []string) (builtin.PositionArgs, error) {
	line, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return builtin.PositionArgs{}, fmt.Errorf("invalid line %q: %w", args[1], err)
	}
	character, err := strconv.ParseUint(args[2], 10, 32)
	if err != nil {
		return builtin.PositionArgs{}, fmt.Errorf("invalid character %q: %w", args[2], err)
	}
	return builtin.PositionArgs{
		FilePath:  args[0],
		Line:      uint32(line),
		Character: uint32(character),
	}, nil
}

func severity(name string) string {
	switch name {
	case "error":
		return red("%s:", name)
	case "warning":
		return yellow("%s:", name)
	default:
		return blue("%s:", name)
	}
}

func printPagination(w io.Writer, p *output.PaginationInfo) {
	if p == nil || !p.HasMore {
		return
	}
	fmt.Fprintln(w, gray("Showing %d-%d of %d, use --offset %d for more", p.Offset+1, min(p.Offset+p.Limit, p.Total), p.Total, p.Offset+p.Limit))
}
