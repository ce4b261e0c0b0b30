package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// URLValidationError names the setting that holds a bad URL.
type URLValidationError struct {
	Field   string
	Message string
	URL     string
}

func (e URLValidationError) Error() string {
	return fmt.Sprintf("%s: %s (url: %s)", e.Field, e.Message, e.URL)
}

// ValidateEndpoint checks an upstream API URL such as the SPARQL endpoint or
// the MediaWiki action API. A path and query are allowed; a fragment or user
// info is not, since neither is ever sent upstream.
func ValidateEndpoint(raw, field string, requireHTTPS bool) error {
	if strings.TrimSpace(raw) == "" {
		return URLValidationError{Field: field, Message: "endpoint is required", URL: raw}
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return URLValidationError{Field: field, Message: "invalid URL format", URL: raw}
	}

	scheme := strings.ToLower(parsed.Scheme)
	switch {
	case scheme == "":
		return URLValidationError{Field: field, Message: "URL must include a scheme (http:// or https://)", URL: raw}
	case scheme != "http" && scheme != "https":
		return URLValidationError{Field: field, Message: "URL scheme must be http or https", URL: raw}
	case parsed.Host == "":
		return URLValidationError{Field: field, Message: "URL must include a host", URL: raw}
	case requireHTTPS && scheme != "https":
		return URLValidationError{Field: field, Message: "URL must use HTTPS in production", URL: raw}
	case parsed.Fragment != "":
		return URLValidationError{Field: field, Message: "endpoint must not contain a fragment", URL: raw}
	case parsed.User != nil:
		return URLValidationError{Field: field, Message: "endpoint must not embed credentials", URL: raw}
	}
	return nil
}
