package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/orpheus-ai/orpheus/pkg/models"
)

// FormatReport renders the markdown comparison of the original and enhanced
// versions. Paths are shown relative to the creation's output directory.
func FormatReport(res ProcessResult, generated time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Music Generation Report: %s\n\n", res.Name)
	fmt.Fprintf(&b, "Generated: %s\n\n", generated.Format(time.RFC3339))

	b.WriteString("## Original Version\n\n")
	if res.Original != nil {
		writeBundle(&b, res.OutputDir, *res.Original, "Original Score")
	} else {
		fmt.Fprintf(&b, "**Original rendering failed**: %s\n", res.OriginalError)
	}

	b.WriteString("\n## Enhanced Version\n\n")
	switch {
	case !res.EnhanceRequested:
		b.WriteString("Enhancement not requested.\n")
	case res.Enhancement == nil:
		b.WriteString("**Enhancement failed**: no result\n")
	case !res.Enhancement.Enhanced:
		fmt.Fprintf(&b, "**Enhancement declined**: %s\n", res.Enhancement.ReasonText())
	default:
		e := res.Enhancement
		if e.Cached {
			b.WriteString("- **Source**: cache\n")
		}
		fmt.Fprintf(&b, "- **Processing Time**: %.1fs\n", e.ProcessingTime.Seconds())
		fmt.Fprintf(&b, "- **Cost**: $%.3f\n", e.ActualCost)
		if res.Enhanced != nil {
			writeBundle(&b, res.OutputDir, *res.Enhanced, "Enhanced Score")
		} else {
			fmt.Fprintf(&b, "\n**Enhanced rendering failed**: %s\n", res.EnhancedError)
		}
	}
	return b.String()
}

func writeBundle(b *strings.Builder, base string, bundle models.OutputBundle, scoreAlt string) {
	link := func(label, path string) {
		if path == "" {
			return
		}
		rel := relPath(base, path)
		fmt.Fprintf(b, "- **%s**: [%s](%s)\n", label, filepath.Base(path), rel)
	}
	link("ABC Source", bundle.ContentFile)
	link("MIDI File", bundle.MIDIFile)
	link("Audio File", bundle.AudioFile)
	if bundle.ScoreFile != "" {
		fmt.Fprintf(b, "\n![%s](%s)\n", scoreAlt, relPath(base, bundle.ScoreFile))
	}
}

func relPath(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
