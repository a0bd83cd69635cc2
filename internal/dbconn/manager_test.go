package dbconn

import "testing"

func TestDatabaseName(t *testing.T) {
	got := DatabaseName("acme")
	want := "omni_p_acme"
	if got != want {
		t.Fatalf("DatabaseName() = %q, want %q", got, want)
	}
}

func TestPlatformNameRegex(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"acme", true},
		{"acme_corp", true},
		{"a", false}, // too short
		{"1acme", false},
		{"Acme", false},
		{"acme-corp", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := platformNameRegex.MatchString(tt.name); got != tt.ok {
				t.Errorf("platformNameRegex.MatchString(%q) = %v, want %v", tt.name, got, tt.ok)
			}
		})
	}
}
