package root

import "github.com/fatih/color"

// text colors
var (
	blue   = color.New(color.FgBlue).SprintfFunc()
	yellow = color.New(color.FgYellow).SprintfFunc()
	red    = color.New(color.FgRed).SprintfFunc()
	gray   = color.New(color.FgHiBlack).SprintfFunc()
	green  = color.New(color.FgGreen).SprintfFunc()
)

// text styles
var bold = color.New(color.Bold).SprintfFunc()
