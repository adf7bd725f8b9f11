package lsp

import (
	"bytes"
	"encoding/json"
	"strings"
)

// shape is one accepted encoding of a polymorphic LSP result. Decoders walk
// a chain of shapes in order and stop at the first match.
type shape[T any] struct {
	name   string
	decode func(json.RawMessage) (T, bool)
}

func firstShape[T any](raw json.RawMessage, chain []shape[T]) (T, string, bool) {
	raw = bytes.TrimSpace(raw)
	for _, s := range chain {
		if v, ok := s.decode(raw); ok {
			return v, s.name, true
		}
	}
	var zero T
	return zero, "", false
}

// Completion: CompletionItem[] | CompletionList | anything else (empty).

var completionShapes = []shape[[]CompletionItem]{
	{name: "array", decode: decodeCompletionArray},
	{name: "list", decode: decodeCompletionList},
}

func decodeCompletion(raw json.RawMessage) []CompletionItem {
	items, _, ok := firstShape(raw, completionShapes)
	if !ok || items == nil {
		return []CompletionItem{}
	}
	return items
}

func decodeCompletionArray(raw json.RawMessage) ([]CompletionItem, bool) {
	var elems []json.RawMessage
	if !isArray(raw) || json.Unmarshal(raw, &elems) != nil {
		return nil, false
	}
	items := make([]CompletionItem, 0, len(elems))
	for _, e := range elems {
		if item, ok := decodeCompletionItem(e); ok {
			items = append(items, item)
		}
	}
	return items, true
}

func decodeCompletionList(raw json.RawMessage) ([]CompletionItem, bool) {
	var list struct {
		Items json.RawMessage `json:"items"`
	}
	if !isObject(raw) || json.Unmarshal(raw, &list) != nil || !isArray(list.Items) {
		return nil, false
	}
	return decodeCompletionArray(list.Items)
}

func decodeCompletionItem(raw json.RawMessage) (CompletionItem, bool) {
	var w struct {
		Label         *string         `json:"label"`
		Kind          json.RawMessage `json:"kind"`
		Detail        json.RawMessage `json:"detail"`
		Documentation json.RawMessage `json:"documentation"`
	}
	if json.Unmarshal(raw, &w) != nil || w.Label == nil {
		return CompletionItem{}, false
	}

	item := CompletionItem{Label: *w.Label}
	var kind uint32
	if json.Unmarshal(w.Kind, &kind) == nil {
		k := CompletionItemKind(kind)
		item.Kind = &k
	}
	item.Detail, _ = decodeString(w.Detail)
	if doc, ok := decodeString(w.Documentation); ok {
		item.Documentation = doc
	} else if doc, ok := decodeMarkup(w.Documentation); ok {
		item.Documentation = doc
	}
	return item, true
}

// Hover contents: string | (string | MarkedString | MarkupContent)[] | MarkupContent | raw JSON.

var hoverContentShapes = []shape[string]{
	{name: "string", decode: decodeString},
	{name: "array", decode: decodeMarkedStrings},
	{name: "markup", decode: decodeMarkup},
	{name: "raw", decode: func(raw json.RawMessage) (string, bool) { return string(raw), true }},
}

// decodeHover returns nil when the server has nothing to show.
func decodeHover(raw json.RawMessage) *HoverResult {
	if isNull(bytes.TrimSpace(raw)) || !isObject(bytes.TrimSpace(raw)) {
		return nil
	}
	var w struct {
		Contents json.RawMessage `json:"contents"`
		Range    json.RawMessage `json:"range"`
	}
	if json.Unmarshal(raw, &w) != nil || isNull(w.Contents) {
		return nil
	}

	contents, _, _ := firstShape(w.Contents, hoverContentShapes)
	result := &HoverResult{Contents: contents}
	if r, ok := decodeRange(w.Range); ok {
		result.Range = &r
	}
	return result
}

func decodeMarkedStrings(raw json.RawMessage) (string, bool) {
	var elems []json.RawMessage
	if !isArray(raw) || json.Unmarshal(raw, &elems) != nil {
		return "", false
	}
	parts := make([]string, 0, len(elems))
	for _, e := range elems {
		if s, ok := decodeString(e); ok {
			parts = append(parts, s)
		} else if s, ok := decodeMarkup(e); ok {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n"), true
}

// decodeMarkup accepts MarkupContent and the legacy {language, value} MarkedString.
func decodeMarkup(raw json.RawMessage) (string, bool) {
	var m struct {
		Value *string `json:"value"`
	}
	if !isObject(raw) || json.Unmarshal(raw, &m) != nil || m.Value == nil {
		return "", false
	}
	return *m.Value, true
}

// Definition: null | Location[] (or LocationLink[]) | Location | anything else (empty).

var definitionShapes = []shape[[]Location]{
	{name: "null", decode: func(raw json.RawMessage) ([]Location, bool) { return []Location{}, isNull(raw) }},
	{name: "array", decode: decodeLocationArray},
	{name: "location", decode: func(raw json.RawMessage) ([]Location, bool) {
		loc, ok := decodeLocation(raw)
		if !ok {
			return nil, false
		}
		return []Location{loc}, true
	}},
}

var locationShapes = []shape[Location]{
	{name: "location", decode: decodeLocation},
	{name: "link", decode: decodeLocationLink},
}

func decodeDefinition(raw json.RawMessage) []Location {
	locs, _, ok := firstShape(raw, definitionShapes)
	if !ok || locs == nil {
		return []Location{}
	}
	return locs
}

func decodeLocationArray(raw json.RawMessage) ([]Location, bool) {
	var elems []json.RawMessage
	if !isArray(raw) || json.Unmarshal(raw, &elems) != nil {
		return nil, false
	}
	locs := make([]Location, 0, len(elems))
	for _, e := range elems {
		if loc, _, ok := firstShape(e, locationShapes); ok {
			locs = append(locs, loc)
		}
	}
	return locs, true
}

func decodeLocation(raw json.RawMessage) (Location, bool) {
	var w struct {
		URI   *string         `json:"uri"`
		Range json.RawMessage `json:"range"`
	}
	if !isObject(raw) || json.Unmarshal(raw, &w) != nil || w.URI == nil {
		return Location{}, false
	}
	r, ok := decodeRange(w.Range)
	if !ok {
		return Location{}, false
	}
	return Location{URI: *w.URI, Range: r}, true
}

// decodeLocationLink maps a LocationLink onto a Location, preferring the
// selection range because it points at the symbol name.
func decodeLocationLink(raw json.RawMessage) (Location, bool) {
	var w struct {
		TargetURI            *string         `json:"targetUri"`
		TargetRange          json.RawMessage `json:"targetRange"`
		TargetSelectionRange json.RawMessage `json:"targetSelectionRange"`
	}
	if !isObject(raw) || json.Unmarshal(raw, &w) != nil || w.TargetURI == nil {
		return Location{}, false
	}
	r, ok := decodeRange(w.TargetSelectionRange)
	if !ok {
		if r, ok = decodeRange(w.TargetRange); !ok {
			return Location{}, false
		}
	}
	return Location{URI: *w.TargetURI, Range: r}, true
}

// Diagnostics

func decodeDiagnostic(raw json.RawMessage) (Diagnostic, bool) {
	var w struct {
		Range    json.RawMessage `json:"range"`
		Severity json.RawMessage `json:"severity"`
		Message  *string         `json:"message"`
		Source   json.RawMessage `json:"source"`
	}
	if json.Unmarshal(raw, &w) != nil || w.Message == nil {
		return Diagnostic{}, false
	}
	r, ok := decodeRange(w.Range)
	if !ok {
		return Diagnostic{}, false
	}

	d := Diagnostic{Range: r, Message: *w.Message}
	var severity uint32
	if json.Unmarshal(w.Severity, &severity) == nil {
		s := DiagnosticSeverity(severity)
		d.Severity = &s
	}
	d.Source, _ = decodeString(w.Source)
	return d, true
}

// Primitives

type wirePosition struct {
	Line      *uint32 `json:"line"`
	Character *uint32 `json:"character"`
}

func (p *wirePosition) position() (Position, bool) {
	if p == nil || p.Line == nil || p.Character == nil {
		return Position{}, false
	}
	return Position{Line: *p.Line, Character: *p.Character}, true
}

func decodeRange(raw json.RawMessage) (Range, bool) {
	var w struct {
		Start *wirePosition `json:"start"`
		End   *wirePosition `json:"end"`
	}
	if !isObject(raw) || json.Unmarshal(raw, &w) != nil {
		return Range{}, false
	}
	start, ok := w.Start.position()
	if !ok {
		return Range{}, false
	}
	end, ok := w.End.position()
	if !ok {
		return Range{}, false
	}
	return Range{Start: start, End: end}, true
}

func decodeString(raw json.RawMessage) (string, bool) {
	var s string
	if len(raw) == 0 || raw[0] != '"' || json.Unmarshal(raw, &s) != nil {
		return "", false
	}
	return s, true
}

func isArray(raw json.RawMessage) bool {
	return len(raw) > 0 && raw[0] == '['
}

func isObject(raw json.RawMessage) bool {
	return len(raw) > 0 && raw[0] == '{'
}
