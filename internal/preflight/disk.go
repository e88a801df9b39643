package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/Aman-CERP/vexus/internal/output"
)

// MinDiskSpaceBytes is the minimum free space required regardless of index size (64MB).
const MinDiskSpaceBytes = 64 * 1024 * 1024

// RequiredSpace returns the free space a save of the snapshot at indexPath
// needs: the temp file coexists with the old snapshot until the rename, so
// twice the current size, and never less than MinDiskSpaceBytes.
func RequiredSpace(indexPath string) uint64 {
	need := uint64(MinDiskSpaceBytes)
	if info, err := os.Stat(indexPath); err == nil {
		need = max(need, 2*uint64(info.Size()))
	}
	return need
}

// CheckDiskSpace checks that the filesystem holding path has at least need
// bytes free. Missing directories are resolved to their nearest existing
// parent.
func (c *Checker) CheckDiskSpace(path string, need uint64) CheckResult {
	result := CheckResult{
		Name:     "disk_space",
		Required: true,
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(existingParent(path), &stat); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check disk space: %v", err)
		return result
	}

	available := stat.Bavail * uint64(stat.Bsize)
	result.Message = fmt.Sprintf("%s free (needed: %s)",
		output.FormatBytes(int64(available)), output.FormatBytes(int64(need)))

	if available < need {
		result.Status = StatusFail
		result.Details = "saves write a temp file next to the snapshot before renaming it"
		return result
	}

	result.Status = StatusPass
	return result
}

func existingParent(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}
