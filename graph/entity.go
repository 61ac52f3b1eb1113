package graph

import (
	"strings"

	"github.com/jbekkers/kennisgraaf/ner"
)

// Relation kinds carried on edges. Co-occurrence is the default; the more
// specific kinds are inferred when the mention pattern supports them.
const (
	KindCoOccurrence = "co_occurrence"
	KindReference    = "explicit_reference"
	KindHierarchy    = "hierarchical"
)

// NodeID derives the stable identity of a node from an entity type and its
// normalized surface form. The same (type, form) pair always maps to the
// same id, regardless of which document mentioned it. Callers should treat
// the result as opaque.
func NodeID(entityType, normalized string) string {
	return entityType + ":" + strings.ToLower(normalized)
}

// municipalityProvince records which province each known municipality
// belongs to, keyed and valued by lowercased place name.
var municipalityProvince = map[string]string{
	"almere":          "flevoland",
	"lelystad":        "flevoland",
	"dronten":         "flevoland",
	"zeewolde":        "flevoland",
	"urk":             "flevoland",
	"noordoostpolder": "flevoland",
	"amsterdam":       "noord-holland",
	"rotterdam":       "zuid-holland",
	"den haag":        "zuid-holland",
	"utrecht":         "utrecht",
	"eindhoven":       "noord-brabant",
	"tilburg":         "noord-brabant",
	"groningen":       "groningen",
	"almelo":          "overijssel",
}

var provinceSet = map[string]struct{}{
	"flevoland": {}, "noord-holland": {}, "zuid-holland": {}, "utrecht": {},
	"gelderland": {}, "overijssel": {}, "drenthe": {}, "groningen": {},
	"friesland": {}, "zeeland": {}, "noord-brabant": {}, "limburg": {},
}

// place extracts the lowercased place name a node refers to, if any, and
// whether that place is a municipality or a province. Organization nodes
// qualify through their "Gemeente X" / "Provincie X" labels, location
// nodes through the bare place name.
func place(nodeType, label string) (name string, municipality, province bool) {
	switch nodeType {
	case ner.TypeOrganization:
		if rest, ok := strings.CutPrefix(label, "Gemeente "); ok {
			name = strings.ToLower(rest)
			_, municipality = municipalityProvince[name]
			return name, municipality, false
		}
		if rest, ok := strings.CutPrefix(label, "Provincie "); ok {
			name = strings.ToLower(rest)
			_, province = provinceSet[name]
			return name, false, province
		}
	case ner.TypeLocation:
		name = strings.ToLower(label)
		_, municipality = municipalityProvince[name]
		_, province = provinceSet[name]
		return name, municipality, province
	}
	return "", false, false
}

// containedIn reports whether a names a municipality lying in province b.
func containedIn(aName string, aMunicipality bool, bName string, bProvince bool) bool {
	return aMunicipality && bProvince && municipalityProvince[aName] == bName
}
