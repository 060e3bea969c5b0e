package conversion

import "testing"

func TestExternalEventName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"view", "ViewContent"},
		{"click", "CustomizeProduct"},
		{"download", "Lead"},
		{"contact", "Contact"},
		{"subscribe", "Subscribe"},
		{"purchase", "Purchase"},
		{"unknown_xyz", "CustomEvent"},
		{"", "CustomEvent"},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got := ExternalEventName(tc.in)
			if got == "" {
				t.Fatal("mapping must never return an empty name")
			}
			if got != tc.want {
				t.Errorf("ExternalEventName(%q): got %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
