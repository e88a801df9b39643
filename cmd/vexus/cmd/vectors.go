package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	verrors "github.com/Aman-CERP/vexus/internal/errors"
)

// parseVector parses "1,0,0.5" (commas and/or spaces) into float32s.
func parseVector(s string) ([]float32, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	if len(fields) == 0 {
		return nil, verrors.ValidationError("empty vector", nil)
	}
	vec := make([]float32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, verrors.ValidationError(fmt.Sprintf("invalid vector component %q", f), err).
				WithDetail("position", strconv.Itoa(i))
		}
		vec[i] = float32(v)
	}
	return vec, nil
}

// parseVectors parses each string and concatenates the results.
func parseVectors(ss []string) ([]float32, error) {
	var flat []float32
	for _, s := range ss {
		vec, err := parseVector(s)
		if err != nil {
			return nil, err
		}
		flat = append(flat, vec...)
	}
	return flat, nil
}

// parseLabels parses labels given as repeated flags or comma lists.
func parseLabels(ss []string) ([]uint64, error) {
	var labels []uint64
	for _, s := range ss {
		for _, f := range strings.Split(s, ",") {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			n, err := strconv.ParseUint(f, 10, 64)
			if err != nil {
				return nil, verrors.ValidationError(fmt.Sprintf("invalid label %q", f), err)
			}
			labels = append(labels, n)
		}
	}
	return labels, nil
}

// readPacked reads a packed little-endian float32 buffer from path.
func readPacked(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, verrors.IOError("failed to read vector file", err).WithDetail("path", path)
	}
	return data, nil
}
