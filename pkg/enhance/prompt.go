package enhance

import (
	"strings"
	"time"
)

// DefaultPromptTemplate asks the model to arrange the tune. {content} is
// replaced by the notation; {custom_prompt} by the caller's extra
// requirements, or removed when there are none.
const DefaultPromptTemplate = `Please enhance this ABC music notation with professional arranging and creative harmonization:

{content}

Enhancement instructions:
- Keep the original melodic structure but add sophisticated harmonies
- Add dynamic markings and articulations for expressive performance
- Ensure all ABC notation syntax is correct and complete
- Make it sound more professional and engaging
{custom_prompt}`

// CostBaseline is the processing time at which an attempt is billed its full
// estimate.
const CostBaseline = 30 * time.Second

// RenderPrompt fills template. A template without {custom_prompt} gets the
// custom requirements appended.
func RenderPrompt(template, content, custom string) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultPromptTemplate
	}
	extra := ""
	if c := strings.TrimSpace(custom); c != "" {
		extra = "\nAdditional requirements: " + c
	}

	out := strings.ReplaceAll(template, "{content}", strings.TrimSpace(content))
	if strings.Contains(out, "{custom_prompt}") {
		out = strings.ReplaceAll(out, "{custom_prompt}", extra)
	} else {
		out += extra
	}
	return strings.TrimRight(out, "\n") + "\n"
}

// ActualCost is min(estimate, estimate*elapsed/CostBaseline). It approximates
// provider billing, which is per compute-second and not visible here.
func ActualCost(estimate float64, elapsed time.Duration) float64 {
	if estimate <= 0 || elapsed <= 0 {
		return 0
	}
	return min(estimate, estimate*elapsed.Seconds()/CostBaseline.Seconds())
}
