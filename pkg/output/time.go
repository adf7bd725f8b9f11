package output

import (
	"time"

	"github.com/dustin/go-humanize"
)

// Time returns a relative time ("3 minutes ago") for times within the last
// five hours and a date otherwise.
func Time(t time.Time) string {
	if time.Since(t) > 5*time.Hour {
		return t.Format("Jan 2, 2006 15:04")
	}
	return humanize.Time(t)
}
