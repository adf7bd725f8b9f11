package builtin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/chix/chix/pkg/config"
	"github.com/chix/chix/pkg/lsp"
	"github.com/chix/chix/pkg/output"
	"github.com/chix/chix/pkg/tools"
	"github.com/chix/chix/pkg/validators"
)

const (
	ToolNameLSPDiagnostics = "lsp_diagnostics"
	ToolNameLSPCompletions = "lsp_completions"
	ToolNameLSPHover       = "lsp_hover"
	ToolNameLSPDefinition  = "lsp_definition"
)

const errFileNotFound = "File not found"

// Dialer starts a language server and returns a connection to it.
type Dialer func(cmd lsp.Command, opts ...lsp.Option) (*lsp.Conn, error)

// LSPTool implements tools.ToolSet on top of a language server. Every call
// starts a fresh server, opens the requested file, runs one request and
// shuts the server down again.
type LSPTool struct {
	store *config.Store
	dial  Dialer
}

// Verify interface compliance
var (
	_ tools.ToolSet      = (*LSPTool)(nil)
	_ tools.Startable    = (*LSPTool)(nil)
	_ tools.Instructable = (*LSPTool)(nil)
)

type LSPOption func(*LSPTool)

// WithDialer replaces how language servers are started.
func WithDialer(dial Dialer) LSPOption {
	return func(t *LSPTool) {
		t.dial = dial
	}
}

// NewLSPTool creates the LSP toolset. The configuration is read from store
// on every call, so reloads apply to the next call.
func NewLSPTool(store *config.Store, opts ...LSPOption) *LSPTool {
	t := &LSPTool{
		store: store,
		dial:  lsp.Spawn,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start checks that the configured language server can be found.
func (t *LSPTool) Start(context.Context) error {
	command := t.store.Get().LSP.Command
	if _, err := exec.LookPath(command); err != nil {
		return fmt.Errorf("language server %q not found: %w", command, err)
	}
	return nil
}

func (t *LSPTool) Stop(context.Context) error {
	return nil
}

func (t *LSPTool) Instructions() string {
	return `# Nix Language Server Tools

Code intelligence for Nix files through a language server. Each call takes an absolute file path.

- Use lsp_diagnostics after editing a file to check for errors and warnings.
- Use lsp_hover to see the type or documentation of the symbol at a position.
- Use lsp_definition to find where a symbol is defined.
- Use lsp_completions to list what can be written at a position.

Line and character positions are 0-based. List results accept offset and limit for pagination.`
}

// PositionArgs is the base for all position-based tool arguments.
type PositionArgs struct {
	FilePath  string `json:"file_path" jsonschema:"Absolute path to the source file"`
	Line      uint32 `json:"line" jsonschema:"Line number (0-based)"`
	Character uint32 `json:"character" jsonschema:"Character position on the line (0-based)"`
}

// DiagnosticsArgs selects a page of the diagnostics of a file.
type DiagnosticsArgs struct {
	FilePath string `json:"file_path" jsonschema:"Absolute path to the source file"`
	Offset   *int   `json:"offset,omitempty" jsonschema:"Number of diagnostics to skip"`
	Limit    *int   `json:"limit,omitempty" jsonschema:"Maximum number of diagnostics to return"`
}

// CompletionsArgs extends PositionArgs with pagination.
type CompletionsArgs struct {
	PositionArgs
	Offset *int `json:"offset,omitempty" jsonschema:"Number of completions to skip"`
	Limit  *int `json:"limit,omitempty" jsonschema:"Maximum number of completions to return"`
}

type DiagnosticsResult struct {
	Success     bool                   `json:"success"`
	FilePath    string                 `json:"file_path"`
	Diagnostics []DiagnosticInfo       `json:"diagnostics"`
	Error       string                 `json:"error,omitempty"`
	Pagination  *output.PaginationInfo `json:"pagination,omitempty"`
}

type DiagnosticInfo struct {
	Line         uint32 `json:"line"`
	Character    uint32 `json:"character"`
	EndLine      uint32 `json:"end_line"`
	EndCharacter uint32 `json:"end_character"`
	Severity     string `json:"severity"`
	Message      string `json:"message"`
	Source       string `json:"source,omitempty"`
}

type CompletionsResult struct {
	Success     bool                   `json:"success"`
	Completions []CompletionInfo       `json:"completions"`
	Error       string                 `json:"error,omitempty"`
	Pagination  *output.PaginationInfo `json:"pagination,omitempty"`
}

type CompletionInfo struct {
	Label         string `json:"label"`
	Kind          string `json:"kind,omitempty"`
	Detail        string `json:"detail,omitempty"`
	Documentation string `json:"documentation,omitempty"`
}

type HoverResult struct {
	Success  bool       `json:"success"`
	Contents *string    `json:"contents,omitempty"`
	Range    *RangeInfo `json:"range,omitempty"`
	Error    string     `json:"error,omitempty"`
}

type RangeInfo struct {
	StartLine      uint32 `json:"start_line"`
	StartCharacter uint32 `json:"start_character"`
	EndLine        uint32 `json:"end_line"`
	EndCharacter   uint32 `json:"end_character"`
}

type DefinitionResult struct {
	Success   bool           `json:"success"`
	Locations []LocationInfo `json:"locations"`
	Error     string         `json:"error,omitempty"`
}

type LocationInfo struct {
	URI          string `json:"uri"`
	Line         uint32 `json:"line"`
	Character    uint32 `json:"character"`
	EndLine      uint32 `json:"end_line"`
	EndCharacter uint32 `json:"end_character"`
}

// lspToolDef defines a tool with its metadata inline for cleaner registration.
type lspToolDef struct {
	name        string
	title       string
	description string
	params      any
	handler     tools.ToolHandler
}

func (t *LSPTool) Tools(context.Context) ([]tools.Tool, error) {
	defs := []lspToolDef{
		{
			name: ToolNameLSPDiagnostics, title: "Get Diagnostics",
			params: tools.MustSchemaFor[DiagnosticsArgs](), handler: tools.NewHandler(t.diagnostics),
			description: `Get errors, warnings and hints the language server reports for a file. Call this after every modification of a Nix file.`,
		},
		{
			name: ToolNameLSPCompletions, title: "Get Completions",
			params: tools.MustSchemaFor[CompletionsArgs](), handler: tools.NewHandler(t.completions),
			description: `List completion candidates at a position in a file, with their kind and documentation.`,
		},
		{
			name: ToolNameLSPHover, title: "Get Symbol Info",
			params: tools.MustSchemaFor[PositionArgs](), handler: tools.NewHandler(t.hover),
			description: `Get type and documentation for the symbol at a position.`,
		},
		{
			name: ToolNameLSPDefinition, title: "Go to Definition",
			params: tools.MustSchemaFor[PositionArgs](), handler: tools.NewHandler(t.definition),
			description: `Find where the symbol at a position is defined. Returns file URIs with 0-based ranges.`,
		},
	}

	result := make([]tools.Tool, len(defs))
	for i, def := range defs {
		result[i] = tools.Tool{
			Name:        def.name,
			Category:    "lsp",
			Description: def.description,
			Parameters:  def.params,
			Handler:     def.handler,
			Annotations: tools.ToolAnnotations{
				Title:        def.title,
				ReadOnlyHint: true,
			},
		}
	}
	return result, nil
}

func (t *LSPTool) diagnostics(ctx context.Context, args DiagnosticsArgs) (*tools.ToolCallResult, error) {
	file, err := t.sourceFile(args.FilePath)
	if errors.Is(err, os.ErrNotExist) {
		return tools.ResultJSON(DiagnosticsResult{FilePath: args.FilePath, Diagnostics: []DiagnosticInfo{}, Error: errFileNotFound})
	}
	if err != nil {
		return tools.ResultError(err.Error()), nil
	}

	var diags []lsp.Diagnostic
	err = t.withDocument(ctx, file, func(doc *lsp.Document) error {
		diags, err = doc.Diagnostics(ctx)
		return err
	})
	if err != nil {
		return tools.ResultError(fmt.Sprintf("Diagnostics request failed: %s", err)), nil
	}

	infos := make([]DiagnosticInfo, len(diags))
	for i, d := range diags {
		infos[i] = DiagnosticInfo{
			Line:         d.Range.Start.Line,
			Character:    d.Range.Start.Character,
			EndLine:      d.Range.End.Line,
			EndCharacter: d.Range.End.Character,
			Severity:     d.SeverityName(),
			Message:      d.Message,
			Source:       d.Source,
		}
	}
	page, pagination := output.Paginate(infos, args.Offset, args.Limit, t.defaultLimit())

	return tools.ResultJSON(DiagnosticsResult{
		Success:     true,
		FilePath:    args.FilePath,
		Diagnostics: page,
		Pagination:  pagination,
	})
}

func (t *LSPTool) completions(ctx context.Context, args CompletionsArgs) (*tools.ToolCallResult, error) {
	file, err := t.sourceFile(args.FilePath)
	if errors.Is(err, os.ErrNotExist) {
		return tools.ResultJSON(CompletionsResult{Completions: []CompletionInfo{}, Error: errFileNotFound})
	}
	if err != nil {
		return tools.ResultError(err.Error()), nil
	}

	var items []lsp.CompletionItem
	err = t.withDocument(ctx, file, func(doc *lsp.Document) error {
		items, err = doc.Completion(ctx, args.position())
		return err
	})
	if err != nil {
		return tools.ResultError(fmt.Sprintf("Completion request failed: %s", err)), nil
	}

	infos := make([]CompletionInfo, len(items))
	for i, item := range items {
		infos[i] = CompletionInfo{
			Label:         item.Label,
			Detail:        item.Detail,
			Documentation: item.Documentation,
		}
		if item.Kind != nil {
			infos[i].Kind = item.Kind.String()
		}
	}
	page, pagination := output.Paginate(infos, args.Offset, args.Limit, t.defaultLimit())

	return tools.ResultJSON(CompletionsResult{
		Success:     true,
		Completions: page,
		Pagination:  pagination,
	})
}

func (t *LSPTool) hover(ctx context.Context, args PositionArgs) (*tools.ToolCallResult, error) {
	file, err := t.sourceFile(args.FilePath)
	if errors.Is(err, os.ErrNotExist) {
		return tools.ResultJSON(HoverResult{Error: errFileNotFound})
	}
	if err != nil {
		return tools.ResultError(err.Error()), nil
	}

	var hover *lsp.HoverResult
	err = t.withDocument(ctx, file, func(doc *lsp.Document) error {
		hover, err = doc.Hover(ctx, args.position())
		return err
	})
	if err != nil {
		return tools.ResultError(fmt.Sprintf("Hover request failed: %s", err)), nil
	}

	result := HoverResult{Success: true}
	if hover != nil {
		result.Contents = &hover.Contents
		if r := hover.Range; r != nil {
			result.Range = &RangeInfo{
				StartLine:      r.Start.Line,
				StartCharacter: r.Start.Character,
				EndLine:        r.End.Line,
				EndCharacter:   r.End.Character,
			}
		}
	}
	return tools.ResultJSON(result)
}

func (t *LSPTool) definition(ctx context.Context, args PositionArgs) (*tools.ToolCallResult, error) {
	file, err := t.sourceFile(args.FilePath)
	if errors.Is(err, os.ErrNotExist) {
		return tools.ResultJSON(DefinitionResult{Locations: []LocationInfo{}, Error: errFileNotFound})
	}
	if err != nil {
		return tools.ResultError(err.Error()), nil
	}

	var locations []lsp.Location
	err = t.withDocument(ctx, file, func(doc *lsp.Document) error {
		locations, err = doc.Definition(ctx, args.position())
		return err
	})
	if err != nil {
		return tools.ResultError(fmt.Sprintf("Definition request failed: %s", err)), nil
	}

	infos := make([]LocationInfo, len(locations))
	for i, loc := range locations {
		infos[i] = LocationInfo{
			URI:          loc.URI,
			Line:         loc.Range.Start.Line,
			Character:    loc.Range.Start.Character,
			EndLine:      loc.Range.End.Line,
			EndCharacter: loc.Range.End.Character,
		}
	}
	return tools.ResultJSON(DefinitionResult{Success: true, Locations: infos})
}

func (a PositionArgs) position() lsp.Position {
	return lsp.Position{Line: a.Line, Character: a.Character}
}

// sourceFile is a file read from disk, ready to be opened on a server.
type sourceFile struct {
	path    string
	uri     string
	rootURI string
	text    string
}

// sourceFile validates path and reads the file. A missing file is reported
// as an error matching os.ErrNotExist.
func (t *LSPTool) sourceFile(path string) (*sourceFile, error) {
	if err := validators.FilePath(path); err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if !t.handlesFile(absPath) {
		return nil, fmt.Errorf("%s is not handled by the language server (file_patterns: %s)",
			path, strings.Join(t.store.Get().LSP.FilePatterns, ", "))
	}

	text, err := os.ReadFile(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return &sourceFile{
		path:    absPath,
		uri:     pathToURI(absPath),
		rootURI: pathToURI(filepath.Dir(absPath)),
		text:    string(text),
	}, nil
}

// handlesFile matches path against the configured patterns, both as a full
// path and as a base name. No patterns means every file is handled.
func (t *LSPTool) handlesFile(path string) bool {
	patterns := t.store.Get().LSP.FilePatterns
	if len(patterns) == 0 {
		return true
	}

	slashPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, slashPath); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// withDocument starts a language server, opens file on it and runs fn. The
// server is shut down before withDocument returns.
func (t *LSPTool) withDocument(ctx context.Context, file *sourceFile, fn func(*lsp.Document) error) error {
	cfg := t.store.Get().LSP

	conn, err := t.dial(cfg.ServerCommand(filepath.Dir(file.path)), cfg.Options()...)
	if err != nil {
		return err
	}
	defer conn.Shutdown(context.WithoutCancel(ctx))

	slog.Debug("LSP connection opened", "conn", conn.ID(), "file", file.path)

	session, err := conn.Initialize(ctx, file.rootURI)
	if err != nil {
		return err
	}
	doc, err := session.DidOpen(ctx, file.uri, file.text)
	if err != nil {
		return err
	}
	return fn(doc)
}

func (t *LSPTool) defaultLimit() int {
	return t.store.Get().OutputLimits.DefaultMaxItems
}

func pathToURI(path string) string {
	if strings.HasPrefix(path, "file://") {
		return path
	}
	p := filepath.ToSlash(path)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}
