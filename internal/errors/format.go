package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// FormatForCLI formats an error for CLI output.
// Uses a concise format suitable for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	var ve *VexusError
	if !stderrors.As(err, &ve) {
		ve = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Error: %s\n", ve.Message))
	if ve.Cause != nil && ve.Cause.Error() != ve.Message {
		sb.WriteString(fmt.Sprintf("  Cause: %v\n", ve.Cause))
	}

	// Details in stable order so output is diffable
	keys := make([]string, 0, len(ve.Details))
	for k := range ve.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("  %s: %s\n", k, ve.Details[k]))
	}

	if ve.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", ve.Suggestion))
	}

	sb.WriteString(fmt.Sprintf("  Code: %s\n", ve.Code))

	return sb.String()
}

// jsonError is the JSON representation of an error.
type jsonError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Severity   string            `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
}

// FormatJSON returns a JSON representation of the error.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	var ve *VexusError
	if !stderrors.As(err, &ve) {
		ve = Wrap(ErrCodeInternal, err)
	}

	je := jsonError{
		Code:       ve.Code,
		Message:    ve.Message,
		Category:   string(ve.Category),
		Severity:   string(ve.Severity),
		Details:    ve.Details,
		Suggestion: ve.Suggestion,
	}
	if ve.Cause != nil {
		je.Cause = ve.Cause.Error()
	}

	return json.Marshal(je)
}

// LogAttrs flattens an error into slog-friendly key/value pairs.
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}

	var ve *VexusError
	if !stderrors.As(err, &ve) {
		return []any{"error", err.Error()}
	}

	attrs := []any{
		"error_code", ve.Code,
		"error", ve.Message,
		"severity", string(ve.Severity),
	}
	if ve.Cause != nil {
		attrs = append(attrs, "cause", ve.Cause.Error())
	}
	for k, v := range ve.Details {
		attrs = append(attrs, "detail_"+k, v)
	}
	return attrs
}
