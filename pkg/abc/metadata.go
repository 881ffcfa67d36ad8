package abc

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var metadataFields = map[string]struct{}{
	"X": {}, "T": {}, "M": {}, "L": {}, "K": {},
	"C": {}, "A": {}, "O": {}, "R": {}, "S": {}, "Q": {},
}

// ParseMetadata returns the known header fields keyed by their letter. The
// first occurrence of a field wins.
func ParseMetadata(content string) map[string]string {
	meta := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		key, value, ok := strings.Cut(line, ":")
		if !ok || len(key) != 1 {
			continue
		}
		if _, known := metadataFields[key]; !known {
			continue
		}
		if _, dup := meta[key]; dup {
			continue
		}
		meta[key] = strings.TrimSpace(value)
	}
	return meta
}

// CreationName derives the base name for a creation's files: the source
// file's stem, else the sanitized T: title, else music_<unix seconds>.
func CreationName(file, content string, now time.Time) string {
	if file != "" {
		stem := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		if name := Sanitize(stem); name != "" {
			return name
		}
	}
	if name := Sanitize(ParseMetadata(content)["T"]); name != "" {
		return name
	}
	return fmt.Sprintf("music_%d", now.Unix())
}

var lower = cases.Lower(language.Und)

// foldAccents strips combining marks so "Étude" becomes "Etude".
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Sanitize lowercases s, folds accented letters and replaces every run of
// characters other than letters, digits, '-' and '_' with a single
// underscore.
func Sanitize(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range lower.String(foldAccents(strings.TrimSpace(s))) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return strings.Trim(b.String(), "_")
}
