package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// plainPolicy removes every tag and attribute.
var plainPolicy = bluemonday.StrictPolicy()

// Text strips markup from labels and descriptions returned by external
// sources and collapses runs of whitespace. Entities escaped by the policy
// are decoded again since the result is stored as plain text.
func Text(input string) string {
	if input == "" {
		return ""
	}
	return strings.Join(strings.Fields(html.UnescapeString(plainPolicy.Sanitize(input))), " ")
}
