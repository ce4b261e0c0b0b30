package sanitize

import "testing"

func TestText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain label unchanged",
			input:    "Battle of Waterloo",
			expected: "Battle of Waterloo",
		},
		{
			name:     "script removed",
			input:    `May Revolution <script>alert('x')</script>`,
			expected: "May Revolution",
		},
		{
			name:     "inline markup stripped",
			input:    `<i>1810</i> uprising in <a href="/wiki/Buenos_Aires">Buenos Aires</a>`,
			expected: "1810 uprising in Buenos Aires",
		},
		{
			name:     "whitespace collapsed",
			input:    "  revolt \n in   the  colony ",
			expected: "revolt in the colony",
		},
		{
			name:     "apostrophes and ampersands kept readable",
			input:    "O'Higgins & San Martín",
			expected: "O'Higgins & San Martín",
		},
		{
			name:     "empty",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.input); got != tt.expected {
				t.Errorf("Text(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
