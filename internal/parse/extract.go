package parse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/opencourt/registrar/internal/model"
)

// Confidence weights: did we find court, judge, date.
const (
	weightCourt = 0.3
	weightJudge = 0.3
	weightDate  = 0.4
)

// Registry documents use Ukrainian Cyrillic; the classes below include the
// letters outside the base А-Я range (І, Ї, Є, Ґ).
var (
	reCaseNumber = regexp.MustCompile(`(?i)справа\s*№?\s*(\d+[/-]\d+[/-]\d+)`)
	reCourt      = regexp.MustCompile(`([А-Яа-яІіЇїЄєҐґ'-]+ський\s+[А-Яа-яІіЇїЄєҐґ'-]+\s+суд)`)
	reJudge      = regexp.MustCompile(`(?i)суддя[:\s]+([А-ЯІЇЄҐ][а-яА-ЯіІїЇєЄґҐ'-]+\s+[А-ЯІЇЄҐ]\.\s?[А-ЯІЇЄҐ]\.)`)
	reDate       = regexp.MustCompile(`(\d{2}\.\d{2}\.\d{4})`)
	reLawRef     = regexp.MustCompile(`(?i)ст\.\s*(\d+)\s+([А-ЯІЇЄҐ]{2,})`)
	reAmount     = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(грн|UAH|USD|EUR)`)
)

// extractFields runs all pattern extractors over plain text and computes
// the confidence score.
func extractFields(text string) model.ParsedDocument {
	doc := model.ParsedDocument{
		Parties:       model.Parties{Plaintiff: []string{}, Defendant: []string{}},
		LawReferences: []string{},
		Amounts:       []model.Amount{},
	}

	if m := reCourt.FindStringSubmatch(text); m != nil {
		court := normalizeSpace(m[1])
		doc.Court = &court
	}
	if m := reJudge.FindStringSubmatch(text); m != nil {
		judge := normalizeSpace(m[1])
		doc.Judge = &judge
	}
	if m := reDate.FindStringSubmatch(text); m != nil {
		doc.Date = &m[1]
	}
	if m := reCaseNumber.FindStringSubmatch(text); m != nil {
		doc.CaseNumber = &m[1]
	}

	seen := make(map[string]bool)
	for _, m := range reLawRef.FindAllStringSubmatch(text, -1) {
		// Normalized form is "{corpus} {article}", e.g. "ЦКУ 625".
		code := strings.ToUpper(m[2]) + " " + m[1]
		if !seen[code] {
			seen[code] = true
			doc.LawReferences = append(doc.LawReferences, code)
		}
	}

	for _, m := range reAmount.FindAllStringSubmatch(text, -1) {
		value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
		if err != nil {
			continue
		}
		currency := m[2]
		if currency == "грн" {
			currency = "UAH"
		}
		doc.Amounts = append(doc.Amounts, model.Amount{Value: value, Currency: currency})
	}

	doc.Confidence = confidence(doc)
	return doc
}

// confidence is the weighted presence of court, judge, and date, capped at 1.
func confidence(doc model.ParsedDocument) float64 {
	score := 0.0
	if doc.Court != nil {
		score += weightCourt
	}
	if doc.Judge != nil {
		score += weightJudge
	}
	if doc.Date != nil {
		score += weightDate
	}
	if score > 1 {
		score = 1
	}
	return score
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
