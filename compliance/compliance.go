// Package compliance assesses documents against Dutch public-sector
// information rules: Woo disclosure relevance, AVG personal-data
// classification and Archiefwet retention. Assessment applies a fixed,
// ordered rule table to document text, entity mentions and graph context;
// the same input always produces the same outcome. Rules only ever raise
// the outcome: the most restrictive classification wins, disclosure
// relevance is never revoked by a later rule, and the longest retention
// period applies.
package compliance

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jbekkers/kennisgraaf/ner"
)

// ErrInvalidInput is returned for assessments of malformed inputs.
var ErrInvalidInput = errors.New("compliance: invalid input")

// Classification levels, least to most restrictive.
type Classification string

const (
	ClassOpenbaar      Classification = "openbaar"
	ClassIntern        Classification = "intern"
	ClassVertrouwelijk Classification = "vertrouwelijk"
	ClassGeheim        Classification = "geheim"
)

var classificationRank = map[Classification]int{
	ClassOpenbaar:      0,
	ClassIntern:        1,
	ClassVertrouwelijk: 2,
	ClassGeheim:        3,
}

// Privacy levels, least to most sensitive.
type PrivacyLevel string

const (
	PrivacyNone     PrivacyLevel = "geen"
	PrivacyNormal   PrivacyLevel = "persoonsgegevens"
	PrivacySpecial  PrivacyLevel = "bijzondere persoonsgegevens"
	PrivacyCriminal PrivacyLevel = "strafrechtelijke gegevens"
)

var privacyRank = map[PrivacyLevel]int{
	PrivacyNone:     0,
	PrivacyNormal:   1,
	PrivacySpecial:  2,
	PrivacyCriminal: 3,
}

// Disclosure outcomes for Woo requests.
const (
	DisclosureOpenbaar = "openbaar"
	DisclosurePartial  = "gedeeltelijk openbaar"
	DisclosurePending  = "nog niet beoordeeld"
)

// GraphContext carries the knowledge-graph signals relevant to an
// assessment.
type GraphContext struct {
	// PublicBody is true when the document's entities include a public
	// body (gemeente, provincie, ministerie, waterschap).
	PublicBody bool

	// Laws lists the canonical statute labels connected to the document's
	// entities.
	Laws []string
}

// publicBodyPrefixes mark organization entities that are bestuursorganen
// under the Woo.
var publicBodyPrefixes = []string{
	"gemeente ", "provincie ", "ministerie", "waterschap", "hoogheemraadschap",
}

// ContextFromMentions derives assessment context from extracted mentions
// alone: an organization naming a bestuursorgaan sets PublicBody, and law
// mentions become the linked statutes, deduplicated and sorted. Callers
// with a populated graph may substitute node labels afterwards.
func ContextFromMentions(mentions []ner.Mention) GraphContext {
	var gc GraphContext
	laws := map[string]string{}
	for _, m := range mentions {
		switch m.Type {
		case ner.TypeOrganization:
			lower := strings.ToLower(m.Normalized)
			for _, prefix := range publicBodyPrefixes {
				if strings.HasPrefix(lower, prefix) {
					gc.PublicBody = true
					break
				}
			}
		case ner.TypeLaw:
			key := strings.ToLower(m.Normalized)
			if cur, ok := laws[key]; !ok || m.Normalized < cur {
				laws[key] = m.Normalized
			}
		}
	}
	for _, label := range laws {
		gc.Laws = append(gc.Laws, label)
	}
	sort.Strings(gc.Laws)
	return gc
}

// Input is one document offered for assessment.
type Input struct {
	DocumentID string
	Text       string
	Domain     string // zaak, project, beleid, expertise
	ObjectType string // besluit, document, email, ...

	// DeclaredClassification is the classification the source system
	// declared, if any. The assessed classification never drops below it.
	DeclaredClassification Classification

	Mentions []ner.Mention
	Context  GraphContext
}

// Signal is one rule's contribution to an assessment.
type Signal struct {
	Rule           string         `json:"rule"`
	Description    string         `json:"description"`
	Classification Classification `json:"classification,omitempty"`
	Privacy        PrivacyLevel   `json:"privacy,omitempty"`
	Basis          string         `json:"basis,omitempty"`
	WooRelevant    bool           `json:"woo_relevant,omitempty"`
	WooScore       float64        `json:"woo_score,omitempty"`
	RetentionYears int            `json:"retention_years,omitempty"`
	Permanent      bool           `json:"permanent,omitempty"`
}

// Issue is a compliance concern found during assessment.
type Issue struct {
	Severity    string  `json:"severity"`
	Rule        string  `json:"rule"`
	Description string  `json:"description"`
	Deduction   float64 `json:"deduction"`
}

// Issue severities and their score deductions.
const (
	SeverityCritical = "kritiek"
	SeverityHigh     = "hoog"
	SeverityMedium   = "middel"
	SeverityLow      = "laag"
)

// Result is the complete outcome of one assessment.
type Result struct {
	AssessmentID   string         `json:"assessment_id"`
	DocumentID     string         `json:"document_id"`
	Classification Classification `json:"classification"`
	Privacy        PrivacyLevel   `json:"privacy"`
	WooRelevant    bool           `json:"woo_relevant"`
	WooScore       float64        `json:"woo_score"`
	Disclosure     string         `json:"disclosure"`
	RetentionYears int            `json:"retention_years"`
	Permanent      bool           `json:"permanent"`
	RetentionBasis string         `json:"retention_basis"`
	LegalBasis     []string       `json:"legal_basis,omitempty"`
	Signals        []Signal       `json:"signals,omitempty"`
	Issues         []Issue        `json:"issues,omitempty"`
	Score          float64        `json:"score"`
}

// Assessor applies the rule table. It is stateless and safe for concurrent
// use.
type Assessor struct {
	rules []rule
}

// NewAssessor returns an assessor with the built-in rule table.
func NewAssessor() *Assessor {
	return &Assessor{rules: builtinRuleTable()}
}

// Assess runs the rule table over one input and resolves the signals into
// a single outcome.
func (a *Assessor) Assess(in Input) (Result, error) {
	if strings.TrimSpace(in.DocumentID) == "" {
		return Result{}, fmt.Errorf("%w: empty document id", ErrInvalidInput)
	}

	var signals []Signal
	for _, r := range a.rules {
		signals = append(signals, r.apply(in)...)
	}

	res := Result{
		AssessmentID:   uuid.NewString(),
		DocumentID:     in.DocumentID,
		Classification: ClassOpenbaar,
		Privacy:        PrivacyNone,
		Disclosure:     DisclosurePending,
		RetentionBasis: retentionBasis,
		Signals:        signals,
		Score:          1.0,
	}
	if in.DeclaredClassification != "" {
		if _, ok := classificationRank[in.DeclaredClassification]; !ok {
			return Result{}, fmt.Errorf("%w: unknown classification %q", ErrInvalidInput, in.DeclaredClassification)
		}
		res.Classification = in.DeclaredClassification
	}

	bases := map[string]struct{}{}
	for _, s := range signals {
		if s.Classification != "" && classificationRank[s.Classification] > classificationRank[res.Classification] {
			res.Classification = s.Classification
		}
		if s.Privacy != "" && privacyRank[s.Privacy] > privacyRank[res.Privacy] {
			res.Privacy = s.Privacy
		}
		if s.WooRelevant {
			res.WooRelevant = true
		}
		res.WooScore += s.WooScore
		if s.RetentionYears > res.RetentionYears {
			res.RetentionYears = s.RetentionYears
		}
		if s.Permanent {
			res.Permanent = true
		}
		if s.Basis != "" {
			bases[s.Basis] = struct{}{}
		}
	}
	if res.WooScore > 1.0 {
		res.WooScore = 1.0
	}
	if res.WooScore > wooRelevantThreshold {
		res.WooRelevant = true
	}
	switch {
	case res.WooScore > wooDisclosureOpen:
		res.Disclosure = DisclosureOpenbaar
	case res.WooScore > wooDisclosurePartial:
		res.Disclosure = DisclosurePartial
	}

	res.LegalBasis = make([]string, 0, len(bases))
	for b := range bases {
		res.LegalBasis = append(res.LegalBasis, b)
	}
	sort.Strings(res.LegalBasis)

	res.Issues = deriveIssues(res, signals)
	for _, issue := range res.Issues {
		res.Score -= issue.Deduction
	}
	if res.Score < 0 {
		res.Score = 0
	}
	return res, nil
}

// deriveIssues translates the assessed state into reviewable concerns.
// Severities follow a fixed deduction ladder so the overall score is a
// deterministic function of the findings.
func deriveIssues(res Result, signals []Signal) []Issue {
	var issues []Issue
	switch res.Privacy {
	case PrivacyCriminal:
		issues = append(issues, Issue{
			Severity:    SeverityCritical,
			Rule:        "avg-strafrechtelijk",
			Description: "strafrechtelijke gegevens vereisen verwerking onder AVG art. 10",
			Deduction:   0.4,
		})
	case PrivacySpecial:
		issues = append(issues, Issue{
			Severity:    SeverityCritical,
			Rule:        "avg-bijzonder",
			Description: "bijzondere persoonsgegevens vereisen een grondslag onder AVG art. 9",
			Deduction:   0.4,
		})
	case PrivacyNormal:
		issues = append(issues, Issue{
			Severity:    SeverityMedium,
			Rule:        "avg-persoonsgegevens",
			Description: "persoonsgegevens aangetroffen; toets de grondslag onder AVG art. 6",
			Deduction:   0.15,
		})
	}
	if res.WooRelevant && classificationRank[res.Classification] >= classificationRank[ClassVertrouwelijk] {
		issues = append(issues, Issue{
			Severity:    SeverityHigh,
			Rule:        "woo-uitzondering",
			Description: "voor openbaarmaking verwacht document: toets de Woo-uitzonderingsgronden",
			Deduction:   0.25,
		})
	}
	for _, s := range signals {
		if s.Rule == ruleRetentionFallback {
			issues = append(issues, Issue{
				Severity:    SeverityLow,
				Rule:        ruleRetentionFallback,
				Description: "bewaartermijn teruggevallen op de standaardtermijn: domein of objecttype onbekend",
				Deduction:   0.05,
			})
			break
		}
	}
	return issues
}
