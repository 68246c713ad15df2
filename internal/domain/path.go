package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidEntityPath is returned for entity paths that are not dot-separated labels.
var ErrInvalidEntityPath = errors.New("invalid entity path")

// ValidatePath checks that path is a dot-separated list of labels made of
// letters, digits and underscores. The empty path is the root and is valid.
func ValidatePath(path string) error {
	if path == "" {
		return nil
	}
	for i, component := range strings.Split(path, ".") {
		if component == "" {
			return fmt.Errorf("%w: component %d of %q is empty", ErrInvalidEntityPath, i, path)
		}
		for _, char := range component {
			if !isPathChar(char) {
				return fmt.Errorf("%w: component %d of %q contains %q", ErrInvalidEntityPath, i, path, char)
			}
		}
	}
	return nil
}

func isPathChar(c rune) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// ParentPath returns the path one level up, or "" for top-level and root paths.
func ParentPath(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}
