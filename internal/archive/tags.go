package archive

import (
	"path/filepath"
	"sort"
	"strings"
	"unicode"
)

// MaxTags caps the search tags per record.
const MaxTags = 20

// extToLanguage maps file extensions to language tags.
var extToLanguage = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".jsx":  "javascript",
	".rs":   "rust",
	".rb":   "ruby",
	".java": "java",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".sh":   "shell",
	".sql":  "sql",
	".yaml": "yaml",
	".yml":  "yaml",
	".json": "json",
	".md":   "markdown",
	".toml": "toml",
}

// skipTokens are path components too generic to be useful search tags.
var skipTokens = map[string]bool{
	"src": true, "lib": true, "pkg": true, "cmd": true, "internal": true,
	"test": true, "tests": true, "main": true, "index": true, "utils": true,
	"util": true, "common": true, "core": true, "dist": true, "build": true,
	"node_modules": true, "vendor": true, "tmp": true, "var": true,
	"a": true, "the": true, "of": true, "to": true, "and": true,
}

// ExtractTags derives search tags from file paths: language tags from
// extensions, identifier tokens from path components split on case and
// underscores. At most MaxTags tags, sorted.
func ExtractTags(paths []string) []string {
	seen := make(map[string]bool)

	for _, path := range paths {
		if lang, ok := extToLanguage[strings.ToLower(filepath.Ext(path))]; ok {
			seen[lang] = true
		}

		for _, component := range strings.FieldsFunc(path, func(r rune) bool {
			return r == '/' || r == '\\' || r == '.'
		}) {
			for _, token := range splitIdentifier(component) {
				token = strings.ToLower(token)
				if len(token) < 3 || skipTokens[token] || isNumeric(token) {
					continue
				}
				seen[token] = true
			}
		}
	}

	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	if len(tags) > MaxTags {
		tags = tags[:MaxTags]
	}
	return tags
}

// PrimaryLanguage returns the dominant language tag across the given paths,
// by extension frequency. Empty when no path maps to a language.
func PrimaryLanguage(paths []string) string {
	counts := make(map[string]int)
	for _, path := range paths {
		if lang, ok := extToLanguage[strings.ToLower(filepath.Ext(path))]; ok {
			counts[lang]++
		}
	}

	var best string
	for lang, n := range counts {
		if n > counts[best] || (n == counts[best] && (best == "" || lang < best)) {
			best = lang
		}
	}
	return best
}

// splitIdentifier breaks camelCase and snake_case identifiers into words.
func splitIdentifier(s string) []string {
	var words []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	var prev rune
	for _, r := range s {
		switch {
		case r == '_' || r == '-':
			flush()
		case unicode.IsUpper(r) && unicode.IsLower(prev):
			flush()
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
		prev = r
	}
	flush()
	return words
}

// isNumeric reports whether s is all digits.
func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
