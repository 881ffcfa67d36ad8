// Package abc handles ABC music notation: pulling tunes out of free text,
// validating and naming them, and rendering them to files.
package abc

import (
	"errors"
	"strings"
)

// ErrNoContent is returned when no usable ABC notation was supplied.
var ErrNoContent = errors.New("abc: no content")

// Extractor finds ABC notation in generated text.
type Extractor struct{}

// ExtractContent returns the first tune found in raw.
func (Extractor) ExtractContent(raw string) (string, bool) {
	return ExtractContent(raw)
}

// ExtractContent returns the first tune found in raw, or false when the
// text holds no block with both an X: and a K: header.
func ExtractContent(raw string) (string, bool) {
	tunes := ExtractAll(raw)
	if len(tunes) == 0 {
		return "", false
	}
	return tunes[0], true
}

// ExtractAll returns every tune in raw. Fenced ```abc blocks win over bare
// X:-headed blocks; a tune must carry a K: header.
func ExtractAll(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	if tunes := fencedBlocks(raw); len(tunes) > 0 {
		return tunes
	}
	return headedBlocks(raw)
}

func fencedBlocks(raw string) []string {
	var tunes []string
	lines := strings.Split(raw, "\n")
	for i := 0; i < len(lines); i++ {
		open := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(open, "```") {
			continue
		}
		lang := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(open, "```")))
		var body []string
		j := i + 1
		for ; j < len(lines); j++ {
			if strings.HasPrefix(strings.TrimSpace(lines[j]), "```") {
				break
			}
			body = append(body, lines[j])
		}
		i = j
		if lang != "" && lang != "abc" {
			continue
		}
		tune := strings.TrimSpace(strings.Join(body, "\n"))
		if hasHeader(tune, "X:") && hasHeader(tune, "K:") {
			tunes = append(tunes, tune)
		}
	}
	return tunes
}

// headedBlocks collects blocks starting at an X: line and ending at the next
// blank line or X: line.
func headedBlocks(raw string) []string {
	var (
		tunes   []string
		current []string
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		tune := strings.TrimSpace(strings.Join(current, "\n"))
		if hasHeader(tune, "K:") {
			tunes = append(tunes, tune)
		}
		current = nil
	}
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "X:"):
			flush()
			current = append(current, trimmed)
		case current == nil:
		case trimmed == "":
			flush()
		default:
			current = append(current, strings.TrimRight(line, " \t"))
		}
	}
	flush()
	return tunes
}

func hasHeader(content, prefix string) bool {
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), prefix) {
			return true
		}
	}
	return false
}
