package acceptlang

import "testing"

func TestPrimary(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"single tag", "en-US", "en-US"},
		{"with quality values", "en-US,en;q=0.9", "en-US"},
		{"quality on first tag", "fr;q=0.8,en;q=0.5", "fr"},
		{"leading whitespace", " de-DE, de;q=0.9", "de-DE"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Primary(tc.in)
			if got != tc.want {
				t.Errorf("Primary(%q): got %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
