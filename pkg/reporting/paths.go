package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ReportPath returns <dir>/reconciliation_<UTC timestamp>_<pass prefix>.<ext>
func ReportPath(dir string, passID string, at time.Time, ext string) string {
	id := passID
	if len(id) > 8 {
		id = id[:8]
	}
	if id == "" {
		id = "pass"
	}
	name := fmt.Sprintf("reconciliation_%s_%s.%s", at.UTC().Format("20060102T150405Z"), id, ext)
	return filepath.Join(dir, name)
}

// EnsureDirectoryExists creates the parent directory of path
func EnsureDirectoryExists(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}
