package notes

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	paragraphSplit = regexp.MustCompile(`\n\s*\n`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
)

// CoerceText renders an arbitrary JSON-decoded payload as readable text.
// Models sometimes send structured objects where plain notes were asked for;
// objects become "Label: value" lines and arrays stack line by line. Object
// keys are sorted for deterministic output.
func CoerceText(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			value := v[key]
			if value == nil || value == "" {
				continue
			}

			var pretty string
			switch value.(type) {
			case map[string]any, []any:
				if encoded, err := json.Marshal(value); err == nil {
					pretty = string(encoded)
				} else {
					pretty = fmt.Sprint(value)
				}
			default:
				pretty = fmt.Sprint(value)
			}
			parts = append(parts, labelize(key)+": "+pretty)
		}

		return strings.Join(parts, "\n")
	case []any:
		pieces := make([]string, 0, len(v))
		for _, item := range v {
			if text := CoerceText(item); text != "" {
				pieces = append(pieces, text)
			}
		}

		return strings.Join(pieces, "\n")
	default:
		return fmt.Sprint(v)
	}
}

// Normalize collapses runs of whitespace to single spaces while preserving
// paragraph breaks, so 'word\nword\nword' becomes 'word word word' but blank
// lines survive.
func Normalize(text string) string {
	paragraphs := paragraphSplit.Split(strings.TrimSpace(text), -1)

	cleaned := make([]string, 0, len(paragraphs))
	for _, paragraph := range paragraphs {
		paragraph = whitespaceRun.ReplaceAllString(strings.TrimSpace(paragraph), " ")
		if paragraph != "" {
			cleaned = append(cleaned, paragraph)
		}
	}

	return strings.Join(cleaned, "\n\n")
}

// labelize turns snake_case keys into display labels: underscores become
// spaces, the first rune is uppercased and the rest lowercased.
func labelize(key string) string {
	label := strings.ReplaceAll(key, "_", " ")
	if label == "" {
		return label
	}

	first, size := utf8.DecodeRuneInString(label)

	return string(unicode.ToUpper(first)) + strings.ToLower(label[size:])
}

// capTail bounds text to max characters, keeping the most recent tail.
func capTail(text string, max int) string {
	if max <= 0 {
		return text
	}

	runes := []rune(text)
	if len(runes) <= max {
		return text
	}

	return string(runes[len(runes)-max:])
}
