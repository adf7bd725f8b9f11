package lsp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHover(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected *HoverResult
	}{
		{name: "string", input: `{"contents":"text"}`, expected: &HoverResult{Contents: "text"}},
		{name: "mixed array", input: `{"contents":[{"value":"a"},"b"]}`, expected: &HoverResult{Contents: "a\nb"}},
		{name: "marked string array", input: `{"contents":[{"language":"nix","value":"x: x"},"doc"]}`, expected: &HoverResult{Contents: "x: x\ndoc"}},
		{name: "markup", input: `{"contents":{"kind":"markdown","value":"x"}}`, expected: &HoverResult{Contents: "x"}},
		{name: "null result", input: `null`, expected: nil},
		{name: "missing contents", input: `{}`, expected: nil},
		{name: "null contents", input: `{"contents":null}`, expected: nil},
		{name: "unknown contents shape", input: `{"contents":42}`, expected: &HoverResult{Contents: "42"}},
		{
			name:  "with range",
			input: `{"contents":"t","range":{"start":{"line":1,"character":2},"end":{"line":1,"character":5}}}`,
			expected: &HoverResult{
				Contents: "t",
				Range:    &Range{Start: Position{Line: 1, Character: 2}, End: Position{Line: 1, Character: 5}},
			},
		},
		{name: "malformed range ignored", input: `{"contents":"t","range":{"start":{"line":1}}}`, expected: &HoverResult{Contents: "t"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, decodeHover(json.RawMessage(tt.input)))
		})
	}
}

func TestHoverContentShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		shape string
	}{
		{input: `"text"`, shape: "string"},
		{input: `["a",{"value":"b"}]`, shape: "array"},
		{input: `{"value":"x"}`, shape: "markup"},
		{input: `{"kind":"plaintext"}`, shape: "raw"},
		{input: `true`, shape: "raw"},
	}

	for _, tt := range tests {
		t.Run(tt.shape+"/"+tt.input, func(t *testing.T) {
			t.Parallel()
			_, shape, ok := firstShape(json.RawMessage(tt.input), hoverContentShapes)
			require.True(t, ok)
			assert.Equal(t, tt.shape, shape)
		})
	}
}

func TestDecodeCompletion(t *testing.T) {
	t.Parallel()

	function := CompletionItemKind(3)

	tests := []struct {
		name     string
		input    string
		expected []CompletionItem
	}{
		{name: "array", input: `[{"label":"foo"}]`, expected: []CompletionItem{{Label: "foo"}}},
		{name: "list", input: `{"isIncomplete":false,"items":[{"label":"foo"}]}`, expected: []CompletionItem{{Label: "foo"}}},
		{name: "empty object", input: `{}`, expected: []CompletionItem{}},
		{name: "null", input: `null`, expected: []CompletionItem{}},
		{name: "items not an array", input: `{"items":"nope"}`, expected: []CompletionItem{}},
		{name: "skips items without label", input: `[{"detail":"x"},{"label":"ok"}]`, expected: []CompletionItem{{Label: "ok"}}},
		{
			name:  "all fields",
			input: `[{"label":"map","kind":3,"detail":"builtins.map","documentation":{"kind":"markdown","value":"Apply f"}}]`,
			expected: []CompletionItem{
				{Label: "map", Kind: &function, Detail: "builtins.map", Documentation: "Apply f"},
			},
		},
		{name: "string documentation", input: `[{"label":"a","documentation":"doc"}]`, expected: []CompletionItem{{Label: "a", Documentation: "doc"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, decodeCompletion(json.RawMessage(tt.input)))
		})
	}
}

func TestCompletionShapes(t *testing.T) {
	t.Parallel()

	_, shape, ok := firstShape(json.RawMessage(`[]`), completionShapes)
	require.True(t, ok)
	assert.Equal(t, "array", shape)

	_, shape, ok = firstShape(json.RawMessage(`{"items":[]}`), completionShapes)
	require.True(t, ok)
	assert.Equal(t, "list", shape)

	_, _, ok = firstShape(json.RawMessage(`"x"`), completionShapes)
	assert.False(t, ok)
}

func TestDecodeDefinition(t *testing.T) {
	t.Parallel()

	loc := func(uri string, line uint32) Location {
		return Location{URI: uri, Range: Range{Start: Position{Line: line}, End: Position{Line: line, Character: 3}}}
	}
	wire := func(uri string, line int) string {
		r := `{"start":{"line":` + itoa(line) + `,"character":0},"end":{"line":` + itoa(line) + `,"character":3}}`
		return `{"uri":"` + uri + `","range":` + r + `}`
	}

	tests := []struct {
		name     string
		input    string
		expected []Location
	}{
		{name: "null", input: `null`, expected: []Location{}},
		{name: "single", input: wire("file:///a.nix", 1), expected: []Location{loc("file:///a.nix", 1)}},
		{
			name:     "array",
			input:    `[` + wire("file:///a.nix", 1) + `,` + wire("file:///b.nix", 2) + `]`,
			expected: []Location{loc("file:///a.nix", 1), loc("file:///b.nix", 2)},
		},
		{name: "empty array", input: `[]`, expected: []Location{}},
		{name: "unknown shape", input: `"file:///a.nix"`, expected: []Location{}},
		{name: "object without uri", input: `{"range":{}}`, expected: []Location{}},
		{
			name: "location link",
			input: `[{"targetUri":"file:///c.nix",
				"targetRange":{"start":{"line":0,"character":0},"end":{"line":9,"character":0}},
				"targetSelectionRange":{"start":{"line":4,"character":2},"end":{"line":4,"character":6}}}]`,
			expected: []Location{{URI: "file:///c.nix", Range: Range{Start: Position{Line: 4, Character: 2}, End: Position{Line: 4, Character: 6}}}},
		},
		{
			name:     "skips malformed items",
			input:    `[{"uri":"file:///x.nix"},` + wire("file:///a.nix", 1) + `]`,
			expected: []Location{loc("file:///a.nix", 1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, decodeDefinition(json.RawMessage(tt.input)))
		})
	}
}

func TestDefinitionShapes(t *testing.T) {
	t.Parallel()

	for input, expected := range map[string]string{
		`null`: "null",
		`[]`:   "array",
		`{"uri":"file:///a","range":{"start":{"line":0,"character":0},"end":{"line":0,"character":1}}}`: "location",
	} {
		_, shape, ok := firstShape(json.RawMessage(input), definitionShapes)
		require.True(t, ok, input)
		assert.Equal(t, expected, shape, input)
	}
}

func TestDecodeDiagnostic(t *testing.T) {
	t.Parallel()

	d, ok := decodeDiagnostic(json.RawMessage(`{
		"range":{"start":{"line":0,"character":1},"end":{"line":0,"character":4}},
		"severity":2,"message":"unused binding","source":"nil"}`))
	require.True(t, ok)
	assert.Equal(t, "unused binding", d.Message)
	assert.Equal(t, "warning", d.SeverityName())
	assert.Equal(t, "nil", d.Source)
	assert.Equal(t, Position{Line: 0, Character: 4}, d.Range.End)

	d, ok = decodeDiagnostic(json.RawMessage(`{"range":{"start":{"line":0,"character":0},"end":{"line":0,"character":0}},"message":"m"}`))
	require.True(t, ok)
	assert.Nil(t, d.Severity)
	assert.Equal(t, "unknown", d.SeverityName())

	_, ok = decodeDiagnostic(json.RawMessage(`{"message":"no range"}`))
	assert.False(t, ok)

	_, ok = decodeDiagnostic(json.RawMessage(`{"range":{"start":{"line":0,"character":0},"end":{"line":0,"character":0}}}`))
	assert.False(t, ok)
}

func TestCompletionItemKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "text", CompletionItemKind(1).String())
	assert.Equal(t, "function", CompletionItemKind(3).String())
	assert.Equal(t, "enum_member", CompletionItemKind(20).String())
	assert.Equal(t, "type_parameter", CompletionItemKind(25).String())
	assert.Equal(t, "unknown", CompletionItemKind(0).String())
	assert.Equal(t, "unknown", CompletionItemKind(26).String())
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
