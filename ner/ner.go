// Package ner implements named-entity recognition for Dutch government
// text. Extraction is pattern- and dictionary-driven: a fixed, ordered
// rule table is applied in priority order and overlapping matches are
// resolved deterministically, so the same text always yields the same
// mentions in the same order.
package ner

// Entity types produced by the built-in rule set.
const (
	TypeOrganization = "organization"
	TypeLaw          = "law"
	TypeLocation     = "location"
	TypePerson       = "person"
	TypeProject      = "project"
	TypeDate         = "date"
	TypeMoney        = "money"
	TypePolicy       = "policy"
	TypeCaseNumber   = "case_number"
)

// Mention is one occurrence of a named entity in a document. Offsets are
// byte offsets into the original text. Mentions produced by a single
// extraction pass never overlap.
type Mention struct {
	// Text is the raw matched span.
	Text string `json:"text"`

	// Normalized is the canonical surface form ("gemeente almere" becomes
	// "Gemeente Almere"). Together with Type it determines graph node
	// identity.
	Normalized string `json:"normalized"`

	Type string `json:"type"`

	// DocumentID is stamped by the caller that owns the extraction result;
	// the extractor itself leaves it empty.
	DocumentID string `json:"document_id,omitempty"`

	Start int `json:"start"`
	End   int `json:"end"`

	// Sentence is the zero-based index of the sentence containing the
	// mention, used downstream for relation-kind inference.
	Sentence int `json:"sentence"`

	// Confidence is rule-intrinsic: exact gazetteer hits score 1.0,
	// pattern rules a configured value below that.
	Confidence float64 `json:"confidence"`
}
