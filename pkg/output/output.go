// Package output trims tool results before they are returned to a caller.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
)

const (
	DefaultMaxItems         = 100
	DefaultMaxResponseBytes = 100_000
)

// PaginationInfo describes which slice of a result list was returned.
type PaginationInfo struct {
	Offset  int  `json:"offset"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
}

// Paginate returns the page of items selected by offset and limit. A nil
// limit falls back to defaultLimit, or to everything when that is not
// positive. The pagination info is nil only when neither offset nor limit
// was given and the whole list fits.
func Paginate[T any](items []T, offset, limit *int, defaultLimit int) ([]T, *PaginationInfo) {
	total := len(items)

	off := 0
	if offset != nil && *offset > 0 {
		off = min(*offset, total)
	}

	lim := total
	switch {
	case limit != nil:
		lim = max(*limit, 0)
	case defaultLimit > 0:
		lim = defaultLimit
	}

	end := min(off+lim, total)
	page := items[off:end]
	if page == nil {
		page = []T{}
	}

	hasMore := end < total
	if offset == nil && limit == nil && !hasMore {
		return page, nil
	}
	return page, &PaginationInfo{
		Offset:  off,
		Limit:   lim,
		Total:   total,
		HasMore: hasMore,
	}
}

// LimitBytes truncates s to at most maxBytes, cutting at the last newline
// when there is one and never inside a UTF-8 sequence. A marker with the
// original size is appended when anything was dropped. maxBytes <= 0
// disables the limit.
func LimitBytes(s string, maxBytes int) (string, bool) {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s, false
	}

	cut := s[:maxBytes]
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i]
	} else {
		cut = runePrefix(s, maxBytes)
	}

	marker := fmt.Sprintf("\n\n[TRUNCATED: showing %s of %s]",
		humanize.Bytes(uint64(len(cut))), humanize.Bytes(uint64(len(s))))
	return cut + marker, true
}

// TruncatedJSON replaces a JSON result that exceeds the response limit.
// Partial is the start of the original document as text.
type TruncatedJSON struct {
	Truncated  bool   `json:"truncated"`
	TotalBytes int    `json:"total_bytes"`
	Partial    string `json:"partial"`
}

// LimitJSON is LimitBytes for JSON documents. An oversized document is
// replaced by a TruncatedJSON object, so the result is still JSON. The
// object fits in maxBytes unless maxBytes is too small for an empty one.
func LimitJSON(s string, maxBytes int) (string, bool) {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s, false
	}

	budget := maxBytes
	for {
		buf, err := json.Marshal(TruncatedJSON{
			Truncated:  true,
			TotalBytes: len(s),
			Partial:    runePrefix(s, budget),
		})
		if err != nil {
			return LimitBytes(s, maxBytes)
		}
		if len(buf) <= maxBytes || budget == 0 {
			return string(buf), true
		}
		budget = max(budget-(len(buf)-maxBytes), 0)
	}
}

// runePrefix returns at most n bytes of s without splitting a rune.
func runePrefix(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
