package model

import "time"

// TextBlock is one semantically typed block of a parsed document body,
// in input order.
type TextBlock struct {
	Type string `json:"type"` // one of the Section* constants
	Text string `json:"text"`
}

// Amount is a monetary amount found in the document text.
type Amount struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

// Parties holds the named participants by role. Either list may be empty;
// party extraction is best-effort.
type Parties struct {
	Plaintiff []string `json:"plaintiff"`
	Defendant []string `json:"defendant"`
}

// ParsedDocument is the structured record produced by the parser. Missing
// fields are nil, never an error: a fully empty record with Confidence 0
// is a valid parse result and is still persisted.
type ParsedDocument struct {
	Court         *string   `json:"court"`
	Judge         *string   `json:"judge"`
	Date          *string   `json:"date"`
	CaseNumber    *string   `json:"case_number"`
	Parties       Parties   `json:"parties"`
	LawReferences []string  `json:"law_references"`
	Decision      *string   `json:"decision"`
	Amounts       []Amount  `json:"amounts"`
	TextBlocks    []TextBlock `json:"text_blocks"`
	Confidence    float64   `json:"confidence"`
	ParserVersion string    `json:"parser_version"`
	ParsedAt      time.Time `json:"parsed_at"`
}

// Empty reports whether the parser found none of the identifying fields.
func (p ParsedDocument) Empty() bool {
	return p.Court == nil && p.Judge == nil && p.Date == nil
}

// Discovery is one tuple produced by the change monitor: a document the
// pipeline should fetch. HashHint is set when the upstream exposed a
// content hash ahead of the fetch.
type Discovery struct {
	DocID        string    `json:"doc_id"`
	CaseID       string    `json:"case_id"`
	URL          string    `json:"url"`
	DiscoveredAt time.Time `json:"discovered_at"`
	HashHint     *string   `json:"hash_hint,omitempty"`
}
