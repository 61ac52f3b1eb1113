package ner

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Rule is one deterministic extraction rule. Lower Priority wins when two
// rules claim overlapping spans of text.
type Rule struct {
	Name       string
	Type       string
	Priority   int
	Confidence float64

	re *regexp.Regexp

	// canon derives the normalized form from the submatches; nil keeps the
	// whitespace-collapsed match text.
	canon func(groups []string) string

	// accept vetoes a match after capture; nil accepts everything.
	accept func(groups []string) bool
}

var provinceNames = []string{
	"Flevoland", "Noord-Holland", "Zuid-Holland", "Utrecht", "Gelderland",
	"Overijssel", "Drenthe", "Groningen", "Friesland", "Zeeland",
	"Noord-Brabant", "Limburg",
}

var municipalityNames = []string{
	"Almere", "Amsterdam", "Rotterdam", "Den Haag", "Utrecht", "Eindhoven",
	"Groningen", "Tilburg", "Almelo", "Lelystad", "Dronten", "Zeewolde",
	"Urk", "Noordoostpolder",
}

var ministryNames = []string{
	"Binnenlandse Zaken", "Infrastructuur en Waterstaat", "Economische Zaken",
	"Justitie en Veiligheid", "Onderwijs", "Volksgezondheid", "Sociale Zaken",
	"Buitenlandse Zaken", "Landbouw", "BZK", "I&W", "EZK", "J&V", "OCW",
	"VWS", "SZW", "BZ", "LNV",
}

// ministryAbbrev maps the short department forms onto the full names from
// the same vocabulary, so "ministerie van BZK" and "ministerie van
// Binnenlandse Zaken" collapse to one entity.
var ministryAbbrev = map[string]string{
	"bzk": "Binnenlandse Zaken",
	"i&w": "Infrastructuur en Waterstaat",
	"ezk": "Economische Zaken",
	"j&v": "Justitie en Veiligheid",
	"ocw": "Onderwijs",
	"vws": "Volksgezondheid",
	"szw": "Sociale Zaken",
	"bz":  "Buitenlandse Zaken",
	"lnv": "Landbouw",
}

var policyTerms = []string{
	"mobiliteit", "duurzaamheid", "energietransitie", "circulaire economie",
	"klimaatadaptatie", "woningbouw", "stikstof", "biodiversiteit",
	"ruimtelijke ordening", "omgevingsvisie",
}

// locationNames is the bare-place-name gazetteer: province and municipality
// names without their organization prefix.
var locationNames = dedupe(append(append([]string{}, provinceNames...), municipalityNames...))

var (
	reLaw = regexp.MustCompile(`(?i)\b(Wet\s+open\s+overheid|Woo|WOO|Algemene\s+verordening\s+gegevensbescherming|AVG|GDPR|Archiefwet|Omgevingswet|Wet\s+openbaarheid\s+van\s+bestuur|Wob|Gemeentewet|Provinciewet|Waterschapswet|Algemene\s+wet\s+bestuursrecht|Awb)\b`)

	reArticle = regexp.MustCompile(`(?i)\b(artikel|art\.?)\s*(\d+(?:\.\d+)?(?:\s*(?:lid|sub)\s*\d+)?)\b`)

	reMinistry = regexp.MustCompile(`(?i)\bministerie\s+van\s+(` + alternation(ministryNames) + `)\b`)

	reProvince = regexp.MustCompile(`(?i)\bprovincie\s+(` + alternation(provinceNames) + `)\b`)

	reMunicipality = regexp.MustCompile(`(?i)\bgemeente\s+(` + alternation(municipalityNames) + `)\b`)

	reWaterBoard = regexp.MustCompile(`\b(?i:waterschap|hoogheemraadschap)\s+([A-Z][\p{L}'-]*(?:(?:\s+(?:en|de|van|het))*\s+[A-Z][\p{L}'-]*)*)`)

	rePersonTitled = regexp.MustCompile(`(?:[Dd]e\s+heer|[Mm]evrouw|[Dd]hr\.|[Mm]evr\.|[Mm]w\.)\s+((?:[A-Z]\.\s?)*(?:(?:van|de|der|den|ten|ter|het)\s+)*[A-Z][\p{Ll}'-]+(?:\s+[A-Z][\p{Ll}'-]+)?)`)

	rePersonInitials = regexp.MustCompile(`\b((?:[A-Z]\.\s?){1,3}(?:(?:van|de|der|den|ten|ter)\s+){0,2}[A-Z][\p{Ll}'-]+)\b`)

	reProject = regexp.MustCompile(`\b[Pp]roject\s+((?:[A-Z0-9][\p{L}\d'-]*)(?:\s+[A-Z0-9][\p{L}\d'-]*){0,3})`)

	reCaseNumber = regexp.MustCompile(`\b([A-Z]{1,5}[-/]?\d{4}[-/]\d{3,6}|Z[-/]?\d{4}[-/]\d{3,6})\b`)

	reDate = regexp.MustCompile(`\b(\d{1,2}[-/]\d{1,2}[-/]\d{2,4}|\d{1,2}\s+(?:januari|februari|maart|april|mei|juni|juli|augustus|september|oktober|november|december)\s+\d{4})\b`)

	reMoney = regexp.MustCompile(`€\s*(\d{1,3}(?:\.\d{3})*(?:,\d{2})?)\b|\b(\d{1,3}(?:\.\d{3})*(?:,\d{2})?)\s*(?i:euro|eur)\b`)

	rePolicy = regexp.MustCompile(`(?i)\b(` + alternation(policyTerms) + `)\b`)

	reLocation = regexp.MustCompile(`(?i)\b(` + alternation(locationNames) + `)\b`)

	reSpaces = regexp.MustCompile(`\s+`)
)

// lawCanonical collapses the many surface forms of a statute onto its
// official citation, so "Woo", "WOO" and "Wet open overheid" become one
// graph node.
func lawCanonical(groups []string) string {
	s := strings.ToLower(collapse(groups[1]))
	switch {
	case strings.Contains(s, "woo") || strings.Contains(s, "open overheid"):
		return "Wet open overheid (Woo)"
	case strings.Contains(s, "avg") || strings.Contains(s, "gegevensbescherming") || strings.Contains(s, "gdpr"):
		return "Algemene verordening gegevensbescherming (AVG)"
	case strings.Contains(s, "archiefwet"):
		return "Archiefwet"
	case strings.Contains(s, "omgevingswet"):
		return "Omgevingswet"
	case strings.Contains(s, "awb") || strings.Contains(s, "bestuursrecht"):
		return "Algemene wet bestuursrecht (Awb)"
	case strings.Contains(s, "wob") || strings.Contains(s, "openbaarheid van bestuur"):
		return "Wet openbaarheid van bestuur (Wob)"
	case strings.Contains(s, "gemeentewet"):
		return "Gemeentewet"
	case strings.Contains(s, "provinciewet"):
		return "Provinciewet"
	case strings.Contains(s, "waterschapswet"):
		return "Waterschapswet"
	}
	return collapse(groups[1])
}

func articleCanonical(groups []string) string {
	return "artikel " + strings.ToLower(collapse(groups[2]))
}

func ministryCanonical(groups []string) string {
	name := collapse(groups[1])
	if full, ok := ministryAbbrev[strings.ToLower(name)]; ok {
		name = full
	} else {
		name = properCase(name, ministryNames)
	}
	return "Ministerie van " + name
}

func provinceCanonical(groups []string) string {
	return "Provincie " + properCase(collapse(groups[1]), provinceNames)
}

func municipalityCanonical(groups []string) string {
	return "Gemeente " + properCase(collapse(groups[1]), municipalityNames)
}

func waterBoardCanonical(groups []string) string {
	return "Waterschap " + collapse(groups[1])
}

func personCanonical(groups []string) string {
	return collapse(groups[1])
}

func projectCanonical(groups []string) string {
	return "Project " + collapse(groups[1])
}

// moneyCanonical renders the amount as a plain euro value: "1.500.000,50"
// becomes "€ 1500000.50".
func moneyCanonical(groups []string) string {
	v, ok := parseAmount(moneyGroup(groups))
	if !ok {
		return collapse(groups[0])
	}
	return fmt.Sprintf("€ %.2f", v)
}

// moneyAccept keeps only amounts above 100, which filters out years and
// list numbers that happen to sit next to a currency marker.
func moneyAccept(groups []string) bool {
	v, ok := parseAmount(moneyGroup(groups))
	return ok && v > 100
}

func moneyGroup(groups []string) string {
	if groups[1] != "" {
		return groups[1]
	}
	return groups[2]
}

func parseAmount(s string) (float64, bool) {
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func policyCanonical(groups []string) string {
	return strings.ToLower(collapse(groups[1]))
}

func locationCanonical(groups []string) string {
	return properCase(collapse(groups[1]), locationNames)
}

// builtinRules returns the default Dutch rule table. Priorities run from
// most to least specific: statute citations beat organization prefixes,
// organization prefixes beat the bare place names they contain.
func builtinRules() []Rule {
	return []Rule{
		{Name: "wet", Type: TypeLaw, Priority: 10, Confidence: 0.98, re: reLaw, canon: lawCanonical},
		{Name: "artikel", Type: TypeLaw, Priority: 15, Confidence: 0.85, re: reArticle, canon: articleCanonical},
		{Name: "ministerie", Type: TypeOrganization, Priority: 20, Confidence: 0.97, re: reMinistry, canon: ministryCanonical},
		{Name: "waterschap", Type: TypeOrganization, Priority: 30, Confidence: 0.92, re: reWaterBoard, canon: waterBoardCanonical},
		{Name: "provincie", Type: TypeOrganization, Priority: 40, Confidence: 0.95, re: reProvince, canon: provinceCanonical},
		{Name: "gemeente", Type: TypeOrganization, Priority: 50, Confidence: 0.93, re: reMunicipality, canon: municipalityCanonical},
		{Name: "persoon-aanhef", Type: TypePerson, Priority: 60, Confidence: 0.90, re: rePersonTitled, canon: personCanonical},
		{Name: "persoon-initialen", Type: TypePerson, Priority: 65, Confidence: 0.85, re: rePersonInitials, canon: personCanonical},
		{Name: "project", Type: TypeProject, Priority: 70, Confidence: 0.85, re: reProject, canon: projectCanonical},
		{Name: "zaaknummer", Type: TypeCaseNumber, Priority: 80, Confidence: 0.90, re: reCaseNumber, canon: nil},
		{Name: "plaats", Type: TypeLocation, Priority: 90, Confidence: 1.0, re: reLocation, canon: locationCanonical},
		{Name: "datum", Type: TypeDate, Priority: 100, Confidence: 0.90, re: reDate, canon: nil},
		{Name: "geld", Type: TypeMoney, Priority: 110, Confidence: 0.85, re: reMoney, canon: moneyCanonical, accept: moneyAccept},
		{Name: "beleid", Type: TypePolicy, Priority: 120, Confidence: 0.80, re: rePolicy, canon: policyCanonical},
	}
}

// alternation joins gazetteer entries into a regexp alternation, longest
// entry first so leftmost-first matching cannot truncate a longer name.
func alternation(names []string) string {
	sorted := append([]string{}, names...)
	sort.Slice(sorted, func(i, j int) bool {
		if len(sorted[i]) != len(sorted[j]) {
			return len(sorted[i]) > len(sorted[j])
		}
		return sorted[i] < sorted[j]
	})
	quoted := make([]string, len(sorted))
	for i, n := range sorted {
		quoted[i] = regexp.QuoteMeta(n)
	}
	return strings.Join(quoted, "|")
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := names[:0:0]
	for _, n := range names {
		k := strings.ToLower(n)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, n)
	}
	return out
}

// properCase maps a case-insensitive gazetteer hit back onto the
// vocabulary's canonical casing.
func properCase(name string, vocabulary []string) string {
	lower := strings.ToLower(name)
	for _, v := range vocabulary {
		if strings.ToLower(v) == lower {
			return v
		}
	}
	return name
}

func collapse(s string) string {
	return reSpaces.ReplaceAllString(strings.TrimSpace(s), " ")
}
