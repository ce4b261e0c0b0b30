package postgres

import "strings"

// nullableText stores blank strings as NULL so partial unique indexes
// ignore them.
func nullableText(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func textValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
