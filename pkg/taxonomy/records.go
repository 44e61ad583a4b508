package taxonomy

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Field aliases accepted in remote and JSON reference payloads. Sources drift
// between naming conventions; the first non-empty key wins.
var (
	wrapperKeys    = []string{"records", "items", "data", "skills", "results"}
	labelKeys      = []string{"preferredLabel", "preferred_label", "label", "name", "title"}
	idKeys         = []string{"uri", "conceptUri", "id", "identifier"}
	aliasKeys      = []string{"altLabels", "alternate_labels", "aliases", "synonyms"}
	digitalKeys    = []string{"isDigital", "is_digital", "digital"}
	collectionKeys = []string{"collections", "collection", "tags"}
	levelKeys      = []string{"level"}
	domainKeys     = []string{"sourceDomain", "source_domain", "domain"}
)

// ParseRecords decodes a taxonomy payload into entries. It accepts a bare
// array or an object wrapping one, tolerates renamed fields, and skips records
// without a label or identifier. The number of skipped records is returned.
func ParseRecords(data []byte) ([]Entry, int, error) {
	cleaned := strings.TrimSpace(stripCodeFence(string(data)))
	if cleaned == "" {
		return nil, 0, fmt.Errorf("%w: empty payload", ErrSourceUnavailable)
	}

	var root any
	if err := json.Unmarshal([]byte(cleaned), &root); err != nil {
		return nil, 0, fmt.Errorf("%w: decode payload: %v", ErrSourceUnavailable, err)
	}

	items, ok := unwrap(root)
	if !ok {
		return nil, 0, fmt.Errorf("%w: no record list in payload", ErrSourceUnavailable)
	}

	entries := make([]Entry, 0, len(items))
	skipped := 0
	for _, item := range items {
		e, err := parseRecord(item)
		if err != nil {
			skipped++
			continue
		}
		entries = append(entries, e)
	}
	return entries, skipped, nil
}

// unwrap finds the record list in a decoded payload.
func unwrap(root any) ([]any, bool) {
	switch v := root.(type) {
	case []any:
		return v, true
	case map[string]any:
		for _, k := range wrapperKeys {
			if inner, ok := v[k]; ok {
				if items, ok := unwrap(inner); ok {
					return items, true
				}
			}
		}
	}
	return nil, false
}

func parseRecord(item any) (Entry, error) {
	m, ok := item.(map[string]any)
	if !ok {
		return Entry{}, ErrMalformedRecord
	}

	e := Entry{
		PreferredLabel: firstString(m, labelKeys),
		URI:            firstString(m, idKeys),
		AltLabels:      firstList(m, aliasKeys),
		Collections:    firstList(m, collectionKeys),
		SourceDomain:   firstString(m, domainKeys),
		IsDigital:      firstBool(m, digitalKeys),
		Level:          firstInt(m, levelKeys),
	}
	if strings.TrimSpace(e.PreferredLabel) == "" || strings.TrimSpace(e.URI) == "" {
		return Entry{}, ErrMalformedRecord
	}
	return e, nil
}

func firstString(m map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// firstList accepts a JSON array of strings or a newline / pipe separated
// string, which is how ESCO exports carry alternate labels.
func firstList(m map[string]any, keys []string) []string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case []any:
			out := make([]string, 0, len(v))
			for _, x := range v {
				if s, ok := x.(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
				}
			}
			if len(out) > 0 {
				return out
			}
		case string:
			if out := SplitList(v); len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

func firstBool(m map[string]any, keys []string) bool {
	for _, k := range keys {
		switch v := m[k].(type) {
		case bool:
			return v
		case string:
			return ParseBool(v)
		case float64:
			return v != 0
		}
	}
	return false
}

func firstInt(m map[string]any, keys []string) int {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return int(v)
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n
			}
		}
	}
	return 0
}

// SplitList splits a newline or pipe separated cell into trimmed values.
func SplitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' || r == '|' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// ParseBool accepts the truthy spellings found in exported spreadsheets.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "ja", "x":
		return true
	}
	return false
}

// stripCodeFence removes a markdown code fence some endpoints wrap JSON in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 0 {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
