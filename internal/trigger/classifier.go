package trigger

import (
	"fmt"
	"sort"
	"strings"
)

// Strong keywords mark activity that is unambiguously sandbox work; any one
// match activates. Weak keywords are individually common in ordinary chatter,
// so two distinct matches are required.
var (
	strongKeywords = []string{
		"sandbox",
		"browser use",
		"computer use",
		"virtual desktop",
		"remote viewer",
	}

	weakKeywords = []string{
		"terminal",
		"shell",
		"command",
		"execute",
		"browser",
		"screenshot",
		"navigate",
		"click",
		"install",
		"download",
	}
)

// Classify reports whether the searchable text warrants surfacing the popout:
// a strong keyword alone, or at least two distinct weak keywords.
func Classify(text string) bool {
	norm := normalizeSearchText(text)
	if norm == "" {
		return false
	}

	for _, kw := range strongKeywords {
		if strings.Contains(norm, kw) {
			return true
		}
	}

	distinct := 0
	for _, kw := range weakKeywords {
		if strings.Contains(norm, kw) {
			distinct++
			if distinct >= 2 {
				return true
			}
		}
	}
	return false
}

// normalizeSearchText lowercases and flattens separators so keyword phrases
// match regardless of spelling: "browser_use", "browser-use" and
// "Browser Use" all normalize to "browser use".
func normalizeSearchText(text string) string {
	lower := strings.ToLower(text)
	mapped := strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', '/', '.', ':', ',', '\n', '\t', '\r':
			return ' '
		}
		return r
	}, lower)
	return strings.Join(strings.Fields(mapped), " ")
}

// FlattenPayload renders a structured payload as one searchable string:
// keys and scalar values, depth first, in stable key order.
func FlattenPayload(payload map[string]any) string {
	var sb strings.Builder
	flattenInto(&sb, payload)
	return sb.String()
}

func flattenInto(sb *strings.Builder, payload map[string]any) {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte(' ')
		flattenValue(sb, payload[k])
	}
}

func flattenValue(sb *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
	case string:
		sb.WriteString(val)
		sb.WriteByte(' ')
	case map[string]any:
		flattenInto(sb, val)
	case []any:
		for _, item := range val {
			flattenValue(sb, item)
		}
	default:
		fmt.Fprintf(sb, "%v ", val)
	}
}
