package compliance

import (
	"fmt"
	"strings"

	"github.com/jbekkers/kennisgraaf/ner"
)

// Woo thresholds: above wooRelevantThreshold a document is expected to be
// disclosed on request; the disclosure outcome refines with the score.
const (
	wooRelevantThreshold = 0.5
	wooDisclosureOpen    = 0.7
	wooDisclosurePartial = 0.4
)

const retentionBasis = "Selectielijst provincies 2024"

// Legal bases cited in signals.
const (
	basisWoo          = "Woo"
	basisWooExemption = "Woo art. 5.1"
	basisAVGNormal    = "AVG art. 6"
	basisAVGSpecial   = "AVG art. 9"
	basisAVGCriminal  = "AVG art. 10"
	basisArchiefwet   = "Archiefwet"
)

const (
	ruleRetention         = "bewaartermijn"
	ruleRetentionFallback = "bewaartermijn-standaard"
)

type rule struct {
	name  string
	apply func(in Input) []Signal
}

// wooTermWeights scores content markers of decision-making. Each term
// counts once per document, however often it occurs.
var wooTermWeights = []struct {
	term   string
	weight float64
}{
	{"besluit", 0.15},
	{"vergunning", 0.12},
	{"beschikking", 0.12},
	{"bezwaar", 0.10},
	{"subsidie", 0.08},
	{"aanvraag", 0.05},
	{"beleid", 0.05},
	{"advies", 0.05},
}

var normalPrivacyTerms = []string{
	"bsn", "burgerservicenummer", "geboortedatum", "adres",
	"telefoonnummer", "e-mail", "persoonsgegevens",
}

// Special categories of personal data under AVG art. 9.
var specialPrivacyTerms = []string{
	"gezondheidsgegeven", "medisch", "religie", "geloof", "politieke",
	"vakbond", "seksueel", "biometrisch", "genetisch", "ras", "etnisch",
}

// Criminal-law personal data under AVG art. 10.
var criminalPrivacyTerms = []string{
	"strafblad", "veroordeling", "delict", "strafrechtelijk", "verdacht", "boete",
}

var secrecyTerms = []string{"staatsgeheim", "nationale veiligheid"}

func builtinRuleTable() []rule {
	return []rule{
		{name: "woo-besluit", apply: wooDecisionRule},
		{name: "woo-classificatie", apply: wooDeclaredOpenRule},
		{name: "woo-termen", apply: wooTermRule},
		{name: "woo-context", apply: wooContextRule},
		{name: "avg-persoonsgegevens", apply: normalPrivacyRule},
		{name: "avg-bijzonder", apply: specialPrivacyRule},
		{name: "avg-strafrechtelijk", apply: criminalPrivacyRule},
		{name: "geheimhouding", apply: secrecyRule},
		{name: ruleRetention, apply: retentionRule},
	}
}

func wooDecisionRule(in Input) []Signal {
	if in.ObjectType != "besluit" {
		return nil
	}
	return []Signal{{
		Rule:        "woo-besluit",
		Description: "objecttype besluit valt onder de actieve openbaarmakingsplicht",
		WooRelevant: true,
		WooScore:    0.8,
		Basis:       basisWoo,
	}}
}

func wooDeclaredOpenRule(in Input) []Signal {
	if in.DeclaredClassification != ClassOpenbaar {
		return nil
	}
	return []Signal{{
		Rule:        "woo-classificatie",
		Description: "document is als openbaar geclassificeerd",
		WooScore:    0.3,
		Basis:       basisWoo,
	}}
}

func wooTermRule(in Input) []Signal {
	text := strings.ToLower(in.Text)
	var signals []Signal
	for _, tw := range wooTermWeights {
		if !strings.Contains(text, tw.term) {
			continue
		}
		signals = append(signals, Signal{
			Rule:        "woo-termen",
			Description: fmt.Sprintf("term %q duidt op bestuurlijke besluitvorming", tw.term),
			WooScore:    tw.weight,
			Basis:       basisWoo,
		})
	}
	return signals
}

func wooContextRule(in Input) []Signal {
	var signals []Signal
	if in.Context.PublicBody {
		signals = append(signals, Signal{
			Rule:        "woo-context",
			Description: "document noemt een bestuursorgaan",
			WooScore:    0.1,
			Basis:       basisWoo,
		})
	}
	for _, law := range in.Context.Laws {
		if strings.Contains(law, "Woo") {
			signals = append(signals, Signal{
				Rule:        "woo-context",
				Description: "document is via de kennisgraaf verbonden met de Woo",
				WooScore:    0.1,
				Basis:       basisWoo,
			})
			break
		}
	}
	return signals
}

func normalPrivacyRule(in Input) []Signal {
	text := strings.ToLower(in.Text)
	found := containsAny(text, normalPrivacyTerms)
	if found == "" {
		for _, m := range in.Mentions {
			if m.Type == ner.TypePerson {
				found = "persoonsvermelding " + m.Normalized
				break
			}
		}
	}
	if found == "" {
		return nil
	}
	return []Signal{{
		Rule:           "avg-persoonsgegevens",
		Description:    fmt.Sprintf("persoonsgegevens aangetroffen (%s)", found),
		Classification: ClassIntern,
		Privacy:        PrivacyNormal,
		Basis:          basisAVGNormal,
	}}
}

func specialPrivacyRule(in Input) []Signal {
	found := containsAny(strings.ToLower(in.Text), specialPrivacyTerms)
	if found == "" {
		return nil
	}
	return []Signal{{
		Rule:           "avg-bijzonder",
		Description:    fmt.Sprintf("bijzondere persoonsgegevens aangetroffen (%s)", found),
		Classification: ClassVertrouwelijk,
		Privacy:        PrivacySpecial,
		Basis:          basisAVGSpecial,
	}}
}

func criminalPrivacyRule(in Input) []Signal {
	found := containsAny(strings.ToLower(in.Text), criminalPrivacyTerms)
	if found == "" {
		return nil
	}
	return []Signal{{
		Rule:           "avg-strafrechtelijk",
		Description:    fmt.Sprintf("strafrechtelijke gegevens aangetroffen (%s)", found),
		Classification: ClassVertrouwelijk,
		Privacy:        PrivacyCriminal,
		Basis:          basisAVGCriminal,
	}}
}

func secrecyRule(in Input) []Signal {
	found := containsAny(strings.ToLower(in.Text), secrecyTerms)
	if found == "" {
		return nil
	}
	return []Signal{{
		Rule:           "geheimhouding",
		Description:    fmt.Sprintf("geheimhoudingsindicator aangetroffen (%s)", found),
		Classification: ClassGeheim,
		Basis:          basisWooExemption,
	}}
}

// retentionRule assigns the archival term for the document's domain and
// object type. Unknown combinations fall back to the default term under a
// separate rule name so the fallback is visible in the outcome.
func retentionRule(in Input) []Signal {
	s := Signal{
		Rule:  ruleRetention,
		Basis: basisArchiefwet,
	}
	switch {
	case in.ObjectType == "besluit":
		s.RetentionYears, s.Permanent = 20, true
		s.Description = "besluiten blijven permanent bewaard"
	case in.Domain == "zaak" && in.ObjectType == "document":
		s.RetentionYears = 10
		s.Description = "zaakdocumenten kennen een bewaartermijn van 10 jaar"
	case in.Domain == "zaak" && in.ObjectType == "email":
		s.RetentionYears = 5
		s.Description = "zaakgebonden e-mail kent een bewaartermijn van 5 jaar"
	case in.Domain == "zaak":
		s.RetentionYears = 7
		s.Description = "overige zaakstukken kennen een bewaartermijn van 7 jaar"
	case in.Domain == "project" && in.ObjectType == "document":
		s.RetentionYears = 10
		s.Description = "projectdocumenten kennen een bewaartermijn van 10 jaar"
	case in.Domain == "project":
		s.RetentionYears = 7
		s.Description = "overige projectstukken kennen een bewaartermijn van 7 jaar"
	case in.Domain == "beleid" && in.ObjectType == "document":
		s.RetentionYears, s.Permanent = 15, true
		s.Description = "beleidsdocumenten blijven permanent bewaard"
	case in.Domain == "beleid":
		s.RetentionYears = 10
		s.Description = "overige beleidsstukken kennen een bewaartermijn van 10 jaar"
	case in.Domain == "expertise":
		s.RetentionYears = 5
		s.Description = "expertisemateriaal kent een bewaartermijn van 5 jaar"
	default:
		s.Rule = ruleRetentionFallback
		s.RetentionYears = 7
		s.Description = "domein of objecttype onbekend: standaardtermijn van 7 jaar"
	}
	return []Signal{s}
}

func containsAny(text string, terms []string) string {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return term
		}
	}
	return ""
}
