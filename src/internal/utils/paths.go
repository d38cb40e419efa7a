package utils

import "path/filepath"

// ResolvePath returns path unchanged when it is absolute or empty, otherwise
// joins it with baseDir.
func ResolvePath(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Clean(filepath.Join(baseDir, path))
}
