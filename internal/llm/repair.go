package llm

import "strings"

// RepairJSON attempts to extract a JSON document from model output that may
// contain markdown code fences, prose preambles, or trailing commentary.
// It returns its best-effort candidate; parse failures are decided by the
// caller.
func RepairJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	text = strings.TrimSpace(text)

	// Slice out the outermost object or array, whichever starts first.
	objStart := strings.Index(text, "{")
	arrStart := strings.Index(text, "[")

	start, closing := objStart, "}"
	if objStart < 0 || (arrStart >= 0 && arrStart < objStart) {
		start, closing = arrStart, "]"
	}
	if start >= 0 {
		if end := strings.LastIndex(text, closing); end > start {
			text = text[start : end+1]
		}
	}

	return strings.TrimSpace(text)
}
