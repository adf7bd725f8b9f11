// Package validators rejects tool inputs that are unsafe to hand to
// external processes.
package validators

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	shellMetacharacters = regexp.MustCompile("[;&|`$(){}\\\\<>!]")
	pathPattern         = regexp.MustCompile(`^[a-zA-Z0-9._\-/~ ]+$`)
)

var (
	ErrShellMetacharacters = errors.New("shell metacharacters not allowed")
	ErrInvalidPath         = errors.New("invalid path")
)

// NoShellMetacharacters rejects input containing characters a shell would
// interpret.
func NoShellMetacharacters(input string) error {
	if shellMetacharacters.MatchString(input) {
		return fmt.Errorf("%w: `%s`. Retry with the metacharacters removed", ErrShellMetacharacters, input)
	}
	return nil
}

// FilePath checks a source file path supplied by a caller.
func FilePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: path is empty", ErrInvalidPath)
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("%w: `%s` contains a null byte", ErrInvalidPath, path)
	}
	if err := NoShellMetacharacters(path); err != nil {
		return err
	}
	if !pathPattern.MatchString(path) {
		return fmt.Errorf("%w: `%s`", ErrInvalidPath, path)
	}
	return nil
}
