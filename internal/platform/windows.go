//go:build windows

package platform

import (
	"path/filepath"
	"strings"
)

// StatePath prefixes absolute drive paths with \\?\ so Pebble can create
// deeply nested journal files.
func StatePath(path string) string {
	if len(path) < 2 || path[1] != ':' {
		return path
	}
	if filepath.IsAbs(path) && !strings.HasPrefix(path, `\\?\`) {
		return `\\?\` + filepath.Clean(path)
	}
	return path
}
