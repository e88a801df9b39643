package preflight

import (
	"errors"
	"fmt"
	"os"

	"github.com/Aman-CERP/vexus/internal/engine"
	"github.com/Aman-CERP/vexus/internal/mapping"
	"github.com/Aman-CERP/vexus/internal/store"
)

// CheckIndex reads the snapshot header at path, then loads the whole
// snapshot to verify its checksum and graph. A missing snapshot warns,
// since a new data directory has none yet. When dims is non-zero it must
// match the stored dimension. The header is returned for later checks and
// is nil when it could not be read.
func (c *Checker) CheckIndex(path string, dims int) (CheckResult, *engine.Header) {
	result := CheckResult{
		Name:     "index",
		Required: true,
	}

	h, err := engine.ReadSnapshotHeader(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		result.Status = StatusWarn
		result.Message = "no index saved yet"
		result.Details = path
		return result, nil
	case err != nil:
		result.Status = StatusFail
		result.Message = fmt.Sprintf("unreadable snapshot: %v", err)
		result.Details = "restore from a copy made with 'vexus save --to', or rebuild with 'vexus recover'"
		return result, nil
	}

	if dims != 0 && h.Dimensions != dims {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("snapshot has dimension %d, config expects %d", h.Dimensions, dims)
		return result, &h
	}

	e, err := engine.LoadHNSW(path)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("corrupt snapshot payload: %v", err)
		result.Details = "restore from a copy made with 'vexus save --to', or rebuild with 'vexus recover'"
		return result, &h
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d vectors, dimension %d, capacity %d, %s, format v%d",
		e.Size(), h.Dimensions, e.Capacity(), h.Metric, h.Version)
	return result, &h
}

// CheckMapping loads the tag mapping and compares its size with the
// snapshot's vector count. A mismatch means the two artifacts were written
// by different saves, for example after a crash between the two renames.
func (c *Checker) CheckMapping(path string, h *engine.Header) CheckResult {
	result := CheckResult{
		Name:     "mapping",
		Required: true,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && h == nil {
			result.Status = StatusWarn
			result.Message = "no mapping saved yet"
			return result
		}
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot read mapping: %v", err)
		return result
	}

	m, err := mapping.Unmarshal(data)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("corrupt mapping: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("%d tags, next label %d", m.Len(), m.Next())
	if h != nil && m.Len() != h.Count {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("mapping holds %d tags but the snapshot holds %d vectors", m.Len(), h.Count)
		result.Details = "the artifacts come from different saves; re-upsert the affected tags"
		return result
	}

	result.Status = StatusPass
	return result
}

// CheckLeftovers warns about temp files left by an interrupted save. They
// are harmless; the next save replaces them.
func (c *Checker) CheckLeftovers(paths store.Paths) CheckResult {
	result := CheckResult{
		Name:     "temp_files",
		Required: false,
		Status:   StatusPass,
		Message:  "none",
	}

	var found []string
	for _, p := range []string{paths.Index, paths.Mapping} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p + ".tmp"); err == nil {
			found = append(found, p+".tmp")
		}
	}
	if len(found) > 0 {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%d temp file(s) from an interrupted save", len(found))
		result.Details = fmt.Sprint(found)
	}
	return result
}
