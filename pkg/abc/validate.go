package abc

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	headerLine   = regexp.MustCompile(`^[A-Za-z]:`)
	invalidChars = regexp.MustCompile(`[^A-Ga-g0-9/|:.\-_\s"()^=,'<>\\\[\]{}#b]`)
)

// Report lists validation problems. Errors make the notation unusable;
// warnings are advisory.
type Report struct {
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Valid reports whether no errors were found.
func (r Report) Valid() bool { return len(r.Errors) == 0 }

// Err returns the errors as a single error, or nil.
func (r Report) Err() error {
	if r.Valid() {
		return nil
	}
	return fmt.Errorf("invalid abc notation: %s", strings.Join(r.Errors, "; "))
}

// Validate checks required headers and flags suspicious music lines.
func Validate(content string) Report {
	var r Report
	lines := strings.Split(strings.TrimSpace(content), "\n")

	if !hasHeader(content, "X:") {
		r.Errors = append(r.Errors, "missing X: (reference number) header")
	}
	if !hasHeader(content, "K:") {
		r.Errors = append(r.Errors, "missing K: (key signature) header")
	}

	hasMusic := false
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || headerLine.MatchString(line) || strings.HasPrefix(line, "%") {
			continue
		}
		if strings.ContainsAny(line, "|CDEFGABcdefgab") {
			hasMusic = true
		}
		if found := invalidChars.FindAllString(line, -1); len(found) > 0 {
			r.Warnings = append(r.Warnings,
				fmt.Sprintf("line %d: potentially invalid characters: %s", i+1, uniqueJoined(found)))
		}
	}
	if !hasMusic {
		r.Warnings = append(r.Warnings, "no musical content found")
	}
	return r
}

// RequireContent returns ErrNoContent when content is blank.
func RequireContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrNoContent
	}
	return nil
}

func uniqueJoined(chars []string) string {
	seen := make(map[string]struct{}, len(chars))
	out := make([]string, 0, len(chars))
	for _, c := range chars {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return strings.Join(out, " ")
}
