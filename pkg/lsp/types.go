package lsp

// Position is a zero-based line and character offset in a document.
type Position struct {
	Line      uint32 `json:"line"`
	Character uint32 `json:"character"`
}

type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

type DiagnosticSeverity int

const (
	SeverityError       DiagnosticSeverity = 1
	SeverityWarning     DiagnosticSeverity = 2
	SeverityInformation DiagnosticSeverity = 3
	SeverityHint        DiagnosticSeverity = 4
)

func (s DiagnosticSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInformation:
		return "information"
	case SeverityHint:
		return "hint"
	default:
		return "unknown"
	}
}

type Diagnostic struct {
	Range    Range               `json:"range"`
	Severity *DiagnosticSeverity `json:"severity,omitempty"`
	Message  string              `json:"message"`
	Source   string              `json:"source,omitempty"`
}

// SeverityName returns the severity name, or "unknown" when the server sent none.
func (d Diagnostic) SeverityName() string {
	if d.Severity == nil {
		return "unknown"
	}
	return d.Severity.String()
}

type CompletionItemKind int

var completionItemKindNames = [...]string{
	1: "text", 2: "method", 3: "function", 4: "constructor", 5: "field",
	6: "variable", 7: "class", 8: "interface", 9: "module", 10: "property",
	11: "unit", 12: "value", 13: "enum", 14: "keyword", 15: "snippet",
	16: "color", 17: "file", 18: "reference", 19: "folder", 20: "enum_member",
	21: "constant", 22: "struct", 23: "event", 24: "operator", 25: "type_parameter",
}

func (k CompletionItemKind) String() string {
	if k > 0 && int(k) < len(completionItemKindNames) {
		return completionItemKindNames[k]
	}
	return "unknown"
}

type CompletionItem struct {
	Label         string              `json:"label"`
	Kind          *CompletionItemKind `json:"kind,omitempty"`
	Detail        string              `json:"detail,omitempty"`
	Documentation string              `json:"documentation,omitempty"`
}

// HoverResult holds hover contents flattened to text.
type HoverResult struct {
	Contents string `json:"contents"`
	Range    *Range `json:"range,omitempty"`
}

type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}
