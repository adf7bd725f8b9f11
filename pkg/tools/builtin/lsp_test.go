package builtin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chix/chix/pkg/config"
	"github.com/chix/chix/pkg/lsp"
	"github.com/chix/chix/pkg/lsp/lsptest"
	"github.com/chix/chix/pkg/tools"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.LSP.Diagnostics = config.DiagnosticsConfig{
		Settle: config.Duration{Duration: 20 * time.Millisecond},
		Poll:   config.Duration{Duration: 100 * time.Millisecond},
		Window: config.Duration{Duration: 300 * time.Millisecond},
	}
	cfg.LSP.RequestTimeout = config.Duration{Duration: 2 * time.Second}
	return cfg
}

// newTestLSPTool returns a toolset whose servers are in-memory stubs
// configured by setup.
func newTestLSPTool(t *testing.T, cfg *config.Config, setup func(*lsptest.Server)) (*LSPTool, *[]*lsptest.Server) {
	t.Helper()

	var servers []*lsptest.Server
	dial := func(_ lsp.Command, opts ...lsp.Option) (*lsp.Conn, error) {
		srv, conn := lsptest.New(t, opts...)
		if setup != nil {
			setup(srv)
		}
		servers = append(servers, srv)
		return conn, nil
	}
	return NewLSPTool(config.NewStaticStore(cfg), WithDialer(dial)), &servers
}

func writeNixFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "default.nix")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func callTool(t *testing.T, ts *LSPTool, name string, args any) *tools.ToolCallResult {
	t.Helper()

	all, err := ts.Tools(t.Context())
	require.NoError(t, err)
	tool := tools.Find(all, name)
	require.NotNil(t, tool, "tool %s not found", name)

	buf, err := json.Marshal(args)
	require.NoError(t, err)
	result, err := tool.Handler(t.Context(), tools.ToolCall{
		Function: tools.FunctionCall{Name: name, Arguments: string(buf)},
	})
	require.NoError(t, err)
	return result
}

func decodeResult[T any](t *testing.T, result *tools.ToolCallResult) T {
	t.Helper()

	require.False(t, result.IsError, result.Output)
	var v T
	require.NoError(t, json.Unmarshal([]byte(result.Output), &v))
	return v
}

func TestLSPToolDefinitions(t *testing.T) {
	t.Parallel()

	ts := NewLSPTool(config.NewStaticStore(config.Default()))
	all, err := ts.Tools(t.Context())
	require.NoError(t, err)

	var names []string
	for _, tool := range all {
		names = append(names, tool.Name)
		assert.Equal(t, "lsp", tool.Category)
		assert.True(t, tool.Annotations.ReadOnlyHint)
		assert.NotEmpty(t, tool.Description)

		schema, err := tools.SchemaToMap(tool.Parameters)
		require.NoError(t, err)
		assert.Contains(t, schema["properties"], "file_path")
		assert.Contains(t, schema["required"], "file_path")
	}
	assert.Equal(t, []string{ToolNameLSPDiagnostics, ToolNameLSPCompletions, ToolNameLSPHover, ToolNameLSPDefinition}, names)
	assert.Contains(t, ts.Instructions(), "0-based")
}

func TestLSPToolDiagnostics(t *testing.T) {
	t.Parallel()

	path := writeNixFile(t, "{ x = ; }\n")
	ts, servers := newTestLSPTool(t, testConfig(), func(s *lsptest.Server) {
		s.Handle("textDocument/didOpen", func(s *lsptest.Server, msg lsptest.Message) {
			var params struct {
				TextDocument struct {
					URI string `json:"uri"`
				} `json:"textDocument"`
			}
			_ = json.Unmarshal(msg.Params, &params)
			_ = s.PublishDiagnostics(params.TextDocument.URI,
				lsptest.Diagnostic(0, 6, 7, 1, "unexpected token"),
				lsptest.Diagnostic(0, 2, 3, 0, "unused binding"),
			)
		})
	})

	result := decodeResult[DiagnosticsResult](t, callTool(t, ts, ToolNameLSPDiagnostics, DiagnosticsArgs{FilePath: path}))

	assert.True(t, result.Success)
	assert.Equal(t, path, result.FilePath)
	assert.Nil(t, result.Pagination)
	require.Len(t, result.Diagnostics, 2)
	assert.Equal(t, DiagnosticInfo{
		Line: 0, Character: 6, EndLine: 0, EndCharacter: 7,
		Severity: "error", Message: "unexpected token",
	}, result.Diagnostics[0])
	assert.Equal(t, "unknown", result.Diagnostics[1].Severity)

	require.Len(t, *servers, 1)
	srv := (*servers)[0]
	require.Eventually(t, func() bool {
		return len(srv.Methods()) >= 5
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"initialize", "initialized", "textDocument/didOpen", "shutdown", "exit"}, srv.Methods())

	var initParams struct {
		RootURI string `json:"rootUri"`
	}
	require.NoError(t, json.Unmarshal(srv.Received()[0].Params, &initParams))
	assert.Equal(t, "file://"+filepath.Dir(path), initParams.RootURI)
}

func TestLSPToolDiagnosticsPagination(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.OutputLimits.DefaultMaxItems = 2

	path := writeNixFile(t, "let in\n")
	ts, _ := newTestLSPTool(t, cfg, func(s *lsptest.Server) {
		s.Handle("textDocument/didOpen", func(s *lsptest.Server, _ lsptest.Message) {
			_ = s.PublishDiagnostics("file://"+path,
				lsptest.Diagnostic(0, 0, 1, 1, "a"),
				lsptest.Diagnostic(0, 1, 2, 2, "b"),
				lsptest.Diagnostic(0, 2, 3, 3, "c"),
			)
		})
	})

	result := decodeResult[DiagnosticsResult](t, callTool(t, ts, ToolNameLSPDiagnostics, DiagnosticsArgs{FilePath: path}))
	require.Len(t, result.Diagnostics, 2)
	require.NotNil(t, result.Pagination)
	assert.Equal(t, 3, result.Pagination.Total)
	assert.True(t, result.Pagination.HasMore)

	offset := 2
	result = decodeResult[DiagnosticsResult](t, callTool(t, ts, ToolNameLSPDiagnostics, DiagnosticsArgs{FilePath: path, Offset: &offset}))
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, "c", result.Diagnostics[0].Message)
	assert.False(t, result.Pagination.HasMore)
}

func TestLSPToolFileNotFound(t *testing.T) {
	t.Parallel()

	ts, servers := newTestLSPTool(t, testConfig(), nil)
	missing := filepath.Join(t.TempDir(), "missing.nix")

	diags := decodeResult[DiagnosticsResult](t, callTool(t, ts, ToolNameLSPDiagnostics, DiagnosticsArgs{FilePath: missing}))
	assert.False(t, diags.Success)
	assert.Equal(t, "File not found", diags.Error)
	assert.Empty(t, diags.Diagnostics)

	hover := decodeResult[HoverResult](t, callTool(t, ts, ToolNameLSPHover, PositionArgs{FilePath: missing}))
	assert.False(t, hover.Success)
	assert.Equal(t, "File not found", hover.Error)

	defs := decodeResult[DefinitionResult](t, callTool(t, ts, ToolNameLSPDefinition, PositionArgs{FilePath: missing}))
	assert.False(t, defs.Success)

	completions := decodeResult[CompletionsResult](t, callTool(t, ts, ToolNameLSPCompletions, CompletionsArgs{PositionArgs: PositionArgs{FilePath: missing}}))
	assert.False(t, completions.Success)

	assert.Empty(t, *servers)
}

func TestLSPToolRejectsUnsafePaths(t *testing.T) {
	t.Parallel()

	ts, servers := newTestLSPTool(t, testConfig(), nil)

	for _, path := range []string{"", "/tmp/a.nix; rm -rf /", "/tmp/$(id).nix"} {
		result := callTool(t, ts, ToolNameLSPHover, PositionArgs{FilePath: path})
		assert.True(t, result.IsError, path)
	}
	assert.Empty(t, *servers)
}

func TestLSPToolRejectsUnhandledFiles(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0o600))

	ts, servers := newTestLSPTool(t, testConfig(), nil)
	result := callTool(t, ts, ToolNameLSPHover, PositionArgs{FilePath: path})

	assert.True(t, result.IsError)
	assert.Contains(t, result.Output, "not handled")
	assert.Empty(t, *servers)
}

func TestLSPToolCompletions(t *testing.T) {
	t.Parallel()

	path := writeNixFile(t, "builtins.\n")
	ts, servers := newTestLSPTool(t, testConfig(), func(s *lsptest.Server) {
		s.Handle("textDocument/completion", lsptest.Result(map[string]any{
			"isIncomplete": false,
			"items": []any{
				map[string]any{"label": "map", "kind": 3, "detail": "(a -> b) -> [a] -> [b]"},
				map[string]any{"label": "true", "kind": 14, "documentation": map[string]any{"kind": "markdown", "value": "Boolean"}},
				map[string]any{"label": "plain"},
			},
		}))
	})

	result := decodeResult[CompletionsResult](t, callTool(t, ts, ToolNameLSPCompletions, CompletionsArgs{
		PositionArgs: PositionArgs{FilePath: path, Line: 0, Character: 9},
	}))

	assert.True(t, result.Success)
	assert.Equal(t, []CompletionInfo{
		{Label: "map", Kind: "function", Detail: "(a -> b) -> [a] -> [b]"},
		{Label: "true", Kind: "keyword", Documentation: "Boolean"},
		{Label: "plain"},
	}, result.Completions)

	var params struct {
		Position lsp.Position `json:"position"`
	}
	srv := (*servers)[0]
	for _, msg := range srv.Received() {
		if msg.Method == "textDocument/completion" {
			require.NoError(t, json.Unmarshal(msg.Params, &params))
		}
	}
	assert.Equal(t, lsp.Position{Line: 0, Character: 9}, params.Position)
}

func TestLSPToolHover(t *testing.T) {
	t.Parallel()

	path := writeNixFile(t, "let x = 1; in x\n")

	t.Run("contents and range", func(t *testing.T) {
		t.Parallel()

		ts, _ := newTestLSPTool(t, testConfig(), func(s *lsptest.Server) {
			s.Handle("textDocument/hover", lsptest.Result(map[string]any{
				"contents": map[string]any{"kind": "markdown", "value": "`int`"},
				"range": map[string]any{
					"start": map[string]any{"line": 0, "character": 14},
					"end":   map[string]any{"line": 0, "character": 15},
				},
			}))
		})

		result := decodeResult[HoverResult](t, callTool(t, ts, ToolNameLSPHover, PositionArgs{FilePath: path, Character: 14}))
		assert.True(t, result.Success)
		require.NotNil(t, result.Contents)
		assert.Equal(t, "`int`", *result.Contents)
		assert.Equal(t, &RangeInfo{StartLine: 0, StartCharacter: 14, EndLine: 0, EndCharacter: 15}, result.Range)
	})

	t.Run("nothing at position", func(t *testing.T) {
		t.Parallel()

		ts, _ := newTestLSPTool(t, testConfig(), func(s *lsptest.Server) {
			s.Handle("textDocument/hover", lsptest.Result(nil))
		})

		result := decodeResult[HoverResult](t, callTool(t, ts, ToolNameLSPHover, PositionArgs{FilePath: path}))
		assert.True(t, result.Success)
		assert.Nil(t, result.Contents)
		assert.Nil(t, result.Range)
	})
}

func TestLSPToolDefinition(t *testing.T) {
	t.Parallel()

	path := writeNixFile(t, "let x = 1; in x\n")
	uri := "file://" + path
	ts, _ := newTestLSPTool(t, testConfig(), func(s *lsptest.Server) {
		s.Handle("textDocument/definition", lsptest.Result(map[string]any{
			"uri": uri,
			"range": map[string]any{
				"start": map[string]any{"line": 0, "character": 4},
				"end":   map[string]any{"line": 0, "character": 5},
			},
		}))
	})

	result := decodeResult[DefinitionResult](t, callTool(t, ts, ToolNameLSPDefinition, PositionArgs{FilePath: path, Character: 14}))
	assert.True(t, result.Success)
	assert.Equal(t, []LocationInfo{{URI: uri, Line: 0, Character: 4, EndLine: 0, EndCharacter: 5}}, result.Locations)
}

func TestLSPToolServerError(t *testing.T) {
	t.Parallel()

	path := writeNixFile(t, "{}\n")
	ts, _ := newTestLSPTool(t, testConfig(), func(s *lsptest.Server) {
		s.Handle("textDocument/hover", func(s *lsptest.Server, msg lsptest.Message) {
			_ = s.ReplyError(msg.ID, lsp.CodeInternalError, "evaluation crashed")
		})
	})

	result := callTool(t, ts, ToolNameLSPHover, PositionArgs{FilePath: path})
	assert.True(t, result.IsError)
	assert.Contains(t, result.Output, "Hover request failed")
	assert.Contains(t, result.Output, "evaluation crashed")
}

func TestLSPToolSpawnFailure(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.LSP.Command = "chix-test-no-such-language-server"
	ts := NewLSPTool(config.NewStaticStore(cfg))
	path := writeNixFile(t, "{}\n")

	result := callTool(t, ts, ToolNameLSPDefinition, PositionArgs{FilePath: path})
	assert.True(t, result.IsError)
	assert.Contains(t, result.Output, "Definition request failed")

	assert.Error(t, ts.Start(t.Context()))
}

func TestLSPToolStart(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.LSP.Command = "sh"
	ts := NewLSPTool(config.NewStaticStore(cfg))

	require.NoError(t, ts.Start(t.Context()))
	require.NoError(t, ts.Stop(context.Background()))
}

func TestHandlesFile(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.LSP.FilePatterns = []string{"**/*.nix", "flake.lock"}
	ts := NewLSPTool(config.NewStaticStore(cfg))

	assert.True(t, ts.handlesFile("/home/user/project/default.nix"))
	assert.True(t, ts.handlesFile("/home/user/project/flake.lock"))
	assert.False(t, ts.handlesFile("/home/user/project/main.go"))

	cfg.LSP.FilePatterns = nil
	assert.True(t, ts.handlesFile("/home/user/project/main.go"))
}

func TestPathToURI(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "file:///work/default.nix", pathToURI("/work/default.nix"))
	assert.Equal(t, "file:///my%20project/default.nix", pathToURI("/my project/default.nix"))
	assert.Equal(t, "file:///already", pathToURI("file:///already"))
}

func TestLSPToolDiagnosticsPathWithSpace(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "my project")
	require.NoError(t, os.Mkdir(dir, 0o700))
	path := filepath.Join(dir, "default.nix")
	require.NoError(t, os.WriteFile(path, []byte("{ x = ; }\n"), 0o600))

	published := "file://" + strings.ReplaceAll(filepath.ToSlash(path), " ", "%20")
	ts, _ := newTestLSPTool(t, testConfig(), func(s *lsptest.Server) {
		s.Handle("textDocument/didOpen", func(s *lsptest.Server, _ lsptest.Message) {
			_ = s.PublishDiagnostics(published, lsptest.Diagnostic(0, 6, 7, 1, "unexpected token"))
		})
	})

	result := decodeResult[DiagnosticsResult](t, callTool(t, ts, ToolNameLSPDiagnostics, DiagnosticsArgs{FilePath: path}))
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, "unexpected token", result.Diagnostics[0].Message)
}
