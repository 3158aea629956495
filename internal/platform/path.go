//go:build !windows

package platform

// StatePath is a no-op on non-Windows platforms.
func StatePath(path string) string {
	return path
}
