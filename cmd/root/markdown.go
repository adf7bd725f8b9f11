package root

import (
	"strings"

	"github.com/charmbracelet/glamour/v2"
)

// renderMarkdown renders hover markdown for the terminal.
func renderMarkdown(text string) (string, error) {
	renderer, err := glamour.NewTermRenderer(glamour.WithStandardStyle("dark"))
	if err != nil {
		return "", err
	}
	out, err := renderer.Render(text)
	if err != nil {
		return "", err
	}
	return strings.Trim(out, "\n"), nil
}
