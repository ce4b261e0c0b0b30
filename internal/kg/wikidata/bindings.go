package wikidata

import "strings"

// Response is the SPARQL JSON results document:
// { "results": { "bindings": [ { "<var>": { "value": "..." } } ] } }
type Response struct {
	Results Results `json:"results"`
}

// Results holds the solution sequence of a SELECT query.
type Results struct {
	Bindings []Binding `json:"bindings"`
}

// Binding is one solution. Variables left unbound by OPTIONAL clauses are
// simply missing from the map.
type Binding map[string]*Value

// Value is a single RDF term in a binding.
type Value struct {
	Type     string `json:"type,omitempty"`
	Value    string `json:"value"`
	Lang     string `json:"xml:lang,omitempty"`
	Datatype string `json:"datatype,omitempty"`
}

// Field returns the plain text of a variable, or "" when it is unbound.
func (b Binding) Field(name string) string {
	if b == nil {
		return ""
	}
	v, ok := b[name]
	if !ok || v == nil {
		return ""
	}
	return v.Value
}

// EntityID reduces an entity URI such as http://www.wikidata.org/entity/Q42
// to its identifier (Q42). Values without a path are returned trimmed.
func EntityID(uri string) string {
	uri = strings.TrimSpace(uri)
	if idx := strings.LastIndex(uri, "/"); idx >= 0 {
		return uri[idx+1:]
	}
	return uri
}
