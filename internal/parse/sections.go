package parse

import (
	"strings"

	"github.com/opencourt/registrar/internal/model"
)

// maxHeadingLen bounds how long a line may be to count as a heading. Body
// prose that merely mentions a keyword mid-paragraph must not open a block.
const maxHeadingLen = 80

// sectionKeywords maps heading keywords (lower-cased) to section types.
// Order matters: the first matching entry wins.
var sectionKeywords = []struct {
	keyword     string
	sectionType string
}{
	{"встановив", model.SectionFacts},
	{"обставини справи", model.SectionFacts},
	{"позовні вимоги", model.SectionClaims},
	{"зміст позовних вимог", model.SectionClaims},
	{"доводи", model.SectionArguments},
	{"заперечення", model.SectionArguments},
	{"керуючись", model.SectionLawRefs},
	{"норми права", model.SectionLawRefs},
	{"мотив", model.SectionReasoning},
	{"оцінка суду", model.SectionReasoning},
	{"висновки суду", model.SectionReasoning},
	{"вирішив", model.SectionDecision},
	{"ухвалив", model.SectionDecision},
	{"постановив", model.SectionDecision},
}

// splitSections partitions plain text into ordered typed blocks. A short
// line containing a heading keyword opens a block of that type; everything
// before the first heading, and any unclassified run, is TEXT. Block order
// equals input order.
func splitSections(text string) []model.TextBlock {
	var blocks []model.TextBlock
	currentType := model.SectionText
	var current []string

	flush := func() {
		body := strings.TrimSpace(strings.Join(current, "\n"))
		if body != "" {
			blocks = append(blocks, model.TextBlock{Type: currentType, Text: body})
		}
		current = current[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if t, ok := headingType(trimmed); ok {
			flush()
			currentType = t
			current = append(current, trimmed)
			continue
		}
		current = append(current, line)
	}
	flush()

	if blocks == nil {
		blocks = []model.TextBlock{}
	}
	return blocks
}

// headingType reports whether a line is a section heading and for which type.
func headingType(line string) (string, bool) {
	if line == "" || len([]rune(line)) > maxHeadingLen {
		return "", false
	}
	lower := strings.ToLower(line)
	for _, kw := range sectionKeywords {
		if strings.Contains(lower, kw.keyword) {
			return kw.sectionType, true
		}
	}
	return "", false
}
