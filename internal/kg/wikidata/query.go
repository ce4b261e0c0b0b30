package wikidata

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultEventsQuery selects historical events with a start or point in time,
// optional end, country (with ISO 3166-1 alpha-3 code) and coordinates.
// Placeholders are substituted by PageQuery.
const DefaultEventsQuery = `SELECT ?item ?itemLabel ?itemDescription ?start ?end ?country ?countryLabel ?countryCode ?coord WHERE {
  ?item wdt:P31/wdt:P279* wd:Q13418847 .
  ?item wdt:P585|wdt:P580 ?start .
  OPTIONAL { ?item wdt:P582 ?end . }
  OPTIONAL {
    ?item wdt:P17 ?country .
    OPTIONAL { ?country wdt:P298 ?countryCode . }
  }
  OPTIONAL { ?item wdt:P625 ?coord . }
  FILTER(YEAR(?start) >= {minYear})
  SERVICE wikibase:label { bd:serviceParam wikibase:language "{lang},en". }
}
ORDER BY ?item
LIMIT {limit}
OFFSET {offset}`

// IdentifierQuery selects the same fields as DefaultEventsQuery for an
// explicit list of items. {values} is replaced with "wd:Q1 wd:Q2 ...".
const IdentifierQuery = `SELECT ?item ?itemLabel ?itemDescription ?start ?end ?country ?countryLabel ?countryCode ?coord WHERE {
  VALUES ?item { {values} }
  OPTIONAL { ?item wdt:P585|wdt:P580 ?start . }
  OPTIONAL { ?item wdt:P582 ?end . }
  OPTIONAL {
    ?item wdt:P17 ?country .
    OPTIONAL { ?country wdt:P298 ?countryCode . }
  }
  OPTIONAL { ?item wdt:P625 ?coord . }
  SERVICE wikibase:label { bd:serviceParam wikibase:language "{lang},en". }
}`

var qidPattern = regexp.MustCompile(`^Q[1-9][0-9]*$`)

// PageParams are substituted into a paged query template.
type PageParams struct {
	Limit    int
	Offset   int
	MinYear  int
	Language string
}

// PageQuery renders template for one page.
func PageQuery(template string, p PageParams) string {
	lang := p.Language
	if lang == "" {
		lang = "en"
	}
	return strings.NewReplacer(
		"{limit}", strconv.Itoa(p.Limit),
		"{offset}", strconv.Itoa(p.Offset),
		"{minYear}", strconv.Itoa(p.MinYear),
		"{lang}", lang,
	).Replace(template)
}

// ValuesQuery embeds identifiers inline in IdentifierQuery. Identifiers that
// are not well-formed item ids are dropped so they cannot alter the query.
func ValuesQuery(ids []string, language string) string {
	if language == "" {
		language = "en"
	}
	terms := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.ToUpper(strings.TrimSpace(id))
		if !IsItemID(id) {
			continue
		}
		terms = append(terms, "wd:"+id)
	}
	return strings.NewReplacer(
		"{values}", strings.Join(terms, " "),
		"{lang}", language,
	).Replace(IdentifierQuery)
}

// IsItemID reports whether id looks like a Wikidata item identifier (Q123).
func IsItemID(id string) bool {
	return qidPattern.MatchString(id)
}
